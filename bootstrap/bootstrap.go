// Package bootstrap assembles the permission subsystem from configuration.
package bootstrap

import (
	"fmt"
	"log/slog"

	"voicebar/config"
	"voicebar/macos"
	"voicebar/permission"
	"voicebar/permission/tcc"
)

// Options carries the collaborators supplied by the host process.
type Options struct {
	Emitter permission.EventEmitter
	Opener  permission.SettingsOpener // defaults to macos.CommandOpener
	Logger  *slog.Logger
	// Checkers replaces the native checkers, for tests.
	Checkers []permission.Checker
}

// Subsystem is the assembled permission stack.
type Subsystem struct {
	Gate        *permission.Gate
	Coordinator *permission.Coordinator
	FirstRun    *permission.FirstRun
	Records     *tcc.Store
	Marker      permission.FileMarker
	Critical    []permission.Kind

	watcher *tcc.Watcher
}

// Build wires checkers, coordinator, first-run tracking and the gate.
func Build(cfg *config.Config, opts Options) (*Subsystem, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	critical, err := cfg.CriticalKinds()
	if err != nil {
		return nil, err
	}
	markerPath, err := cfg.MarkerPath()
	if err != nil {
		return nil, err
	}

	paths := cfg.Permissions.Databases
	if len(paths) == 0 {
		paths = tcc.DefaultPaths()
	}
	records := tcc.NewStore(paths, logger.With("component", "tcc"))

	opener := opts.Opener
	if opener == nil {
		opener = macos.CommandOpener{Version: macos.ProductVersion()}
	}
	checkers := opts.Checkers
	if checkers == nil {
		checkers = macos.NewCheckers(macos.CheckerOptions{
			BundleID:      cfg.BundleID,
			Records:       records,
			Opener:        opener,
			LookupTimeout: cfg.Permissions.LookupTimeout,
			Logger:        logger,
		})
	}

	coord := permission.NewCoordinator(permission.CoordinatorConfig{
		Checkers:    checkers,
		SettleDelay: cfg.Permissions.SettleDelay,
		Logger:      logger,
	})
	marker := permission.FileMarker{Path: markerPath}
	firstRun := permission.NewFirstRun(marker, opts.Emitter, logger)
	gate := permission.NewGate(permission.GateConfig{
		Coordinator: coord,
		FirstRun:    firstRun,
		Critical:    critical,
		Freshness:   cfg.Permissions.Freshness,
		Bypass:      cfg.Permissions.Bypass,
		Logger:      logger,
	})

	s := &Subsystem{
		Gate:        gate,
		Coordinator: coord,
		FirstRun:    firstRun,
		Records:     records,
		Marker:      marker,
		Critical:    critical,
	}
	if cfg.Permissions.WatchDatabase && !cfg.Permissions.Bypass {
		w, err := tcc.Watch(paths, tcc.DefaultDebounce, gate.Invalidate, logger)
		if err != nil {
			logger.Info("privacy database changes will not be observed", "error", err)
		} else {
			s.watcher = w
		}
	}
	return s, nil
}

// Close releases the database watcher.
func (s *Subsystem) Close() error {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			return fmt.Errorf("close watcher: %w", err)
		}
	}
	return nil
}
