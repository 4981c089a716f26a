//go:build darwin

package macos

import "golang.org/x/sys/unix"

// ProductVersion returns the macOS version, e.g. "14.4.1", or "" when it
// cannot be read.
func ProductVersion() string {
	v, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return ""
	}
	return v
}
