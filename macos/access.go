// Package macos adapts the macOS privacy APIs to the permission package.
package macos

import "voicebar/permission"

type unavailableAccess struct{}

func (unavailableAccess) CheckAccess() (permission.Status, error) {
	return permission.StatusError, permission.ErrUnavailable
}

func (unavailableAccess) RequestAccess() error { return permission.ErrUnavailable }
