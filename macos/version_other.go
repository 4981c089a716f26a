//go:build !darwin

package macos

func ProductVersion() string { return "" }
