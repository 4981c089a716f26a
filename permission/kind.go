package permission

import "fmt"

// Kind identifies a privacy capability the app needs from the OS.
type Kind string

const (
	Microphone      Kind = "microphone"
	Accessibility   Kind = "accessibility"
	InputMonitoring Kind = "input_monitoring"
	ScreenCapture   Kind = "screen_capture"
)

// Kinds lists every kind in the order they are evaluated and prompted.
var Kinds = []Kind{Microphone, Accessibility, InputMonitoring, ScreenCapture}

// ParseKind returns the Kind named by s
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown permission kind %q", s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case Microphone, Accessibility, InputMonitoring, ScreenCapture:
		return true
	}
	return false
}

// TCCService is the service column used for this kind in the privacy database.
func (k Kind) TCCService() string {
	switch k {
	case Microphone:
		return "kTCCServiceMicrophone"
	case Accessibility:
		return "kTCCServiceAccessibility"
	case InputMonitoring:
		return "kTCCServiceListenEvent"
	case ScreenCapture:
		return "kTCCServiceScreenCapture"
	}
	return ""
}

// SettingsAnchor names the Privacy & Security pane for this kind.
func (k Kind) SettingsAnchor() string {
	switch k {
	case Microphone:
		return "Privacy_Microphone"
	case Accessibility:
		return "Privacy_Accessibility"
	case InputMonitoring:
		return "Privacy_ListenEvent"
	case ScreenCapture:
		return "Privacy_ScreenCapture"
	}
	return ""
}

func (k Kind) String() string { return string(k) }

// Status is the authorization state of one kind.
type Status string

const (
	StatusGranted       Status = "granted"
	StatusDenied        Status = "denied"
	StatusNotDetermined Status = "not_determined"
	StatusError         Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusGranted, StatusDenied, StatusNotDetermined, StatusError:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// settled reports whether a status needs no consent prompt.
func (s Status) settled() bool {
	return s == StatusGranted || s == StatusDenied
}
