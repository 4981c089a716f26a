package macos

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/mod/semver"

	"voicebar/permission"
)

const (
	// System Settings (macOS 13+) Privacy & Security extension.
	settingsPrivacyURL = "x-apple.systempreferences:com.apple.settings.PrivacySecurity.extension"
	// System Preferences Security & Privacy pane.
	legacyPrivacyURL = "x-apple.systempreferences:com.apple.preference.security"
)

// SettingsURL returns the deep link to the privacy pane for kind on the
// given macOS version. Unknown versions get the legacy link, which newer
// releases still honour.
func SettingsURL(kind permission.Kind, version string) string {
	base := legacyPrivacyURL
	if v := canonical(version); v != "" && semver.Compare(v, "v13.0.0") >= 0 {
		base = settingsPrivacyURL
	}
	return base + "?" + kind.SettingsAnchor()
}

// canonical turns "14.4.1" into "v14.4.1"; invalid input yields "".
func canonical(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	return semver.Canonical("v" + version)
}

// CommandOpener opens settings links with the open(1) command.
type CommandOpener struct {
	Version string
	// Command defaults to "open".
	Command string
}

func (o CommandOpener) OpenSettings(ctx context.Context, kind permission.Kind) error {
	name := o.Command
	if name == "" {
		name = "open"
	}
	url := SettingsURL(kind, o.Version)
	if out, err := exec.CommandContext(ctx, name, url).CombinedOutput(); err != nil {
		return fmt.Errorf("open %s: %w: %s", url, err, strings.TrimSpace(string(out)))
	}
	return nil
}
