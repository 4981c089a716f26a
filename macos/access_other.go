//go:build !darwin || !cgo

package macos

import "voicebar/permission"

// NewAccess returns an adapter that always reports ErrUnavailable, so
// checks go straight to the privacy record fallback.
func NewAccess(kind permission.Kind) permission.Access {
	return unavailableAccess{}
}

// NativeAvailable is always false without the macOS frameworks.
func NativeAvailable(kind permission.Kind) bool { return false }
