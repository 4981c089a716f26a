//go:build darwin && cgo

package macos

/*
#cgo CFLAGS: -x objective-c -fblocks
#cgo LDFLAGS: -framework Foundation -framework CoreFoundation -lobjc

#import <Foundation/Foundation.h>
#include <CoreFoundation/CoreFoundation.h>
#include <dlfcn.h>
#include <objc/message.h>
#include <objc/runtime.h>
#include <stdbool.h>
#include <stdint.h>

// Every function returns -1 when the library or symbol cannot be resolved.
#define VB_UNAVAILABLE -1

enum {
	VB_AVFOUNDATION,
	VB_APPSERVICES,
	VB_IOKIT,
	VB_COREGRAPHICS,
	VB_NLIBS,
};

static const char *vb_paths[VB_NLIBS] = {
	"/System/Library/Frameworks/AVFoundation.framework/AVFoundation",
	"/System/Library/Frameworks/ApplicationServices.framework/ApplicationServices",
	"/System/Library/Frameworks/IOKit.framework/IOKit",
	"/System/Library/Frameworks/CoreGraphics.framework/CoreGraphics",
};

// Handles are opened once and kept for the life of the process. A failed
// open is retried on the next call.
static void *vb_handles[VB_NLIBS];

static void *vb_lib(int lib) {
	void *h = __atomic_load_n(&vb_handles[lib], __ATOMIC_ACQUIRE);
	if (h != NULL) {
		return h;
	}
	h = dlopen(vb_paths[lib], RTLD_LAZY | RTLD_LOCAL);
	if (h == NULL) {
		return NULL;
	}
	void *expected = NULL;
	if (!__atomic_compare_exchange_n(&vb_handles[lib], &expected, h, false, __ATOMIC_ACQ_REL, __ATOMIC_ACQUIRE)) {
		// Another thread won; drop the extra reference.
		dlclose(h);
		return expected;
	}
	return h;
}

static void *vb_sym(int lib, const char *name) {
	void *h = vb_lib(lib);
	if (h == NULL) {
		return NULL;
	}
	return dlsym(h, name);
}

static void *vb_handle(int lib) {
	return __atomic_load_n(&vb_handles[lib], __ATOMIC_ACQUIRE);
}

// AVAuthorizationStatus: 0 not determined, 1 restricted, 2 denied, 3 authorized.
static int vb_mic_status(void) {
	NSString **mediaType = (NSString **)vb_sym(VB_AVFOUNDATION, "AVMediaTypeAudio");
	Class cls = NSClassFromString(@"AVCaptureDevice");
	SEL sel = sel_registerName("authorizationStatusForMediaType:");
	if (mediaType == NULL || cls == Nil || !class_respondsToSelector(object_getClass((id)cls), sel)) {
		return VB_UNAVAILABLE;
	}
	return (int)((NSInteger (*)(id, SEL, NSString *))objc_msgSend)((id)cls, sel, *mediaType);
}

static int vb_mic_request(void) {
	NSString **mediaType = (NSString **)vb_sym(VB_AVFOUNDATION, "AVMediaTypeAudio");
	Class cls = NSClassFromString(@"AVCaptureDevice");
	SEL sel = sel_registerName("requestAccessForMediaType:completionHandler:");
	if (mediaType == NULL || cls == Nil || !class_respondsToSelector(object_getClass((id)cls), sel)) {
		return VB_UNAVAILABLE;
	}
	((void (*)(id, SEL, NSString *, void (^)(BOOL)))objc_msgSend)((id)cls, sel, *mediaType, ^(BOOL granted) {});
	return 0;
}

static int vb_ax_trusted(void) {
	bool (*fn)(void) = (bool (*)(void))vb_sym(VB_APPSERVICES, "AXIsProcessTrusted");
	if (fn == NULL) {
		return VB_UNAVAILABLE;
	}
	return fn() ? 1 : 0;
}

static int vb_ax_prompt(void) {
	bool (*fn)(CFDictionaryRef) = (bool (*)(CFDictionaryRef))vb_sym(VB_APPSERVICES, "AXIsProcessTrustedWithOptions");
	CFStringRef *key = (CFStringRef *)vb_sym(VB_APPSERVICES, "kAXTrustedCheckOptionPrompt");
	if (fn == NULL || key == NULL) {
		return VB_UNAVAILABLE;
	}
	const void *keys[] = {*key};
	const void *values[] = {kCFBooleanTrue};
	CFDictionaryRef opts = CFDictionaryCreate(NULL, keys, values, 1,
		&kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
	bool trusted = fn(opts);
	CFRelease(opts);
	return trusted ? 1 : 0;
}

// kIOHIDRequestTypeListenEvent = 1.
// IOHIDAccessType: 0 granted, 1 denied, 2 unknown.
static int vb_hid_status(void) {
	uint32_t (*fn)(uint32_t) = (uint32_t (*)(uint32_t))vb_sym(VB_IOKIT, "IOHIDCheckAccess");
	if (fn == NULL) {
		return VB_UNAVAILABLE;
	}
	return (int)fn(1);
}

static int vb_hid_request(void) {
	bool (*fn)(uint32_t) = (bool (*)(uint32_t))vb_sym(VB_IOKIT, "IOHIDRequestAccess");
	if (fn == NULL) {
		return VB_UNAVAILABLE;
	}
	return fn(1) ? 1 : 0;
}

static int vb_screen_preflight(void) {
	bool (*fn)(void) = (bool (*)(void))vb_sym(VB_COREGRAPHICS, "CGPreflightScreenCaptureAccess");
	if (fn == NULL) {
		return VB_UNAVAILABLE;
	}
	return fn() ? 1 : 0;
}

static int vb_screen_request(void) {
	bool (*fn)(void) = (bool (*)(void))vb_sym(VB_COREGRAPHICS, "CGRequestScreenCaptureAccess");
	if (fn == NULL) {
		return VB_UNAVAILABLE;
	}
	return fn() ? 1 : 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"voicebar/permission"
)

const unavailable = -1

// cachedHandles returns the framework handles opened so far, indexed like
// vb_paths. Unopened libraries are 0.
func cachedHandles() []uintptr {
	handles := make([]uintptr, int(C.VB_NLIBS))
	for i := range handles {
		handles[i] = uintptr(unsafe.Pointer(C.vb_handle(C.int(i))))
	}
	return handles
}

// NewAccess returns the native adapter for kind.
func NewAccess(kind permission.Kind) permission.Access {
	switch kind {
	case permission.Microphone:
		return microphoneAccess{}
	case permission.Accessibility:
		return accessibilityAccess{}
	case permission.InputMonitoring:
		return inputMonitoringAccess{}
	case permission.ScreenCapture:
		return screenCaptureAccess{}
	}
	return unavailableAccess{}
}

// NativeAvailable reports whether the primary check for kind resolves.
func NativeAvailable(kind permission.Kind) bool {
	_, err := NewAccess(kind).CheckAccess()
	return err == nil
}

type microphoneAccess struct{}

func (microphoneAccess) CheckAccess() (permission.Status, error) {
	switch v := int(C.vb_mic_status()); v {
	case unavailable:
		return permission.StatusError, permission.ErrUnavailable
	case 0:
		return permission.StatusNotDetermined, nil
	case 1, 2:
		return permission.StatusDenied, nil
	case 3:
		return permission.StatusGranted, nil
	default:
		return permission.StatusError, fmt.Errorf("unexpected AVAuthorizationStatus %d", v)
	}
}

func (microphoneAccess) RequestAccess() error {
	if C.vb_mic_request() == unavailable {
		return permission.ErrUnavailable
	}
	return nil
}

// accessibilityAccess cannot tell denied from undecided; an untrusted
// process reports not determined.
type accessibilityAccess struct{}

func (accessibilityAccess) CheckAccess() (permission.Status, error) {
	switch C.vb_ax_trusted() {
	case unavailable:
		return permission.StatusError, permission.ErrUnavailable
	case 1:
		return permission.StatusGranted, nil
	default:
		return permission.StatusNotDetermined, nil
	}
}

func (accessibilityAccess) RequestAccess() error {
	if C.vb_ax_prompt() == unavailable {
		return permission.ErrUnavailable
	}
	return nil
}

type inputMonitoringAccess struct{}

func (inputMonitoringAccess) CheckAccess() (permission.Status, error) {
	switch v := int(C.vb_hid_status()); v {
	case unavailable:
		return permission.StatusError, permission.ErrUnavailable
	case 0:
		return permission.StatusGranted, nil
	case 1:
		return permission.StatusDenied, nil
	case 2:
		return permission.StatusNotDetermined, nil
	default:
		return permission.StatusError, fmt.Errorf("unexpected IOHIDAccessType %d", v)
	}
}

func (inputMonitoringAccess) RequestAccess() error {
	if C.vb_hid_request() == unavailable {
		return permission.ErrUnavailable
	}
	return nil
}

type screenCaptureAccess struct{}

func (screenCaptureAccess) CheckAccess() (permission.Status, error) {
	switch C.vb_screen_preflight() {
	case unavailable:
		return permission.StatusError, permission.ErrUnavailable
	case 1:
		return permission.StatusGranted, nil
	default:
		return permission.StatusNotDetermined, nil
	}
}

// RequestAccess shows the dialog only the first time per app; after that
// the user has to use System Settings.
func (screenCaptureAccess) RequestAccess() error {
	switch C.vb_screen_request() {
	case unavailable:
		return permission.ErrUnavailable
	case 1:
		return nil
	default:
		return permission.ErrPromptUnsupported
	}
}
