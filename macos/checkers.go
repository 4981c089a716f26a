package macos

import (
	"log/slog"
	"time"

	"voicebar/permission"
)

// CheckerOptions configures the checkers built by NewCheckers.
type CheckerOptions struct {
	BundleID      string
	Records       permission.PrivacyRecords
	Opener        permission.SettingsOpener
	LookupTimeout time.Duration
	Logger        *slog.Logger
}

// NewCheckers builds one checker per kind, in priority order, backed by
// the native adapters.
func NewCheckers(opts CheckerOptions) []permission.Checker {
	checkers := make([]permission.Checker, 0, len(permission.Kinds))
	for _, k := range permission.Kinds {
		checkers = append(checkers, permission.NewSystemChecker(permission.CheckerConfig{
			Kind:          k,
			Access:        NewAccess(k),
			Records:       opts.Records,
			Client:        opts.BundleID,
			Opener:        opts.Opener,
			Logger:        opts.Logger,
			LookupTimeout: opts.LookupTimeout,
		}))
	}
	return checkers
}
