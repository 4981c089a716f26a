package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

var (
	// ErrUnavailable means the native library or entry point backing a
	// capability is missing on this system.
	ErrUnavailable = errors.New("permission: native access unavailable")

	// ErrPromptUnsupported means the platform does not allow the app to
	// show a consent dialog for this kind.
	ErrPromptUnsupported = errors.New("permission: programmatic prompt unsupported")

	// ErrNoRecord means the privacy database has no entry for the app.
	ErrNoRecord = errors.New("permission: no privacy record")
)

// Checker evaluates and requests a single kind.
type Checker interface {
	Kind() Kind
	// Check returns the current status without side effects. The error only
	// explains a StatusError and is nil for every other status.
	Check(ctx context.Context) (Status, error)
	// Request triggers the consent flow at most once per checker.
	Request(ctx context.Context) Result
	// Prompted reports whether Request has already run.
	Prompted() bool
}

// AccessChecker queries a native authorization source.
type AccessChecker interface {
	CheckAccess() (Status, error)
}

// AccessRequester asks the platform to show its consent dialog.
type AccessRequester interface {
	RequestAccess() error
}

// Access is the native capability backing one kind.
type Access interface {
	AccessChecker
	AccessRequester
}

// PrivacyRecords reads persisted authorization records. Implementations
// return ErrNoRecord when no row exists for service and client.
type PrivacyRecords interface {
	Lookup(ctx context.Context, service, client string) (Status, error)
}

// SettingsOpener navigates the user to the System Settings pane for a kind.
type SettingsOpener interface {
	OpenSettings(ctx context.Context, kind Kind) error
}

// DefaultLookupTimeout bounds a privacy record read.
const DefaultLookupTimeout = 2 * time.Second

// CheckerConfig wires a SystemChecker.
type CheckerConfig struct {
	Kind    Kind
	Access  Access         // primary source; nil means unavailable
	Records PrivacyRecords // fallback source; optional
	Client  string         // app identity used in privacy records
	Opener  SettingsOpener // optional
	Logger  *slog.Logger

	LookupTimeout time.Duration
}

// SystemChecker checks one kind against a native source, falling back to
// the privacy database when the native source fails.
type SystemChecker struct {
	kind          Kind
	access        Access
	records       PrivacyRecords
	client        string
	opener        SettingsOpener
	logger        *slog.Logger
	lookupTimeout time.Duration

	prompted  atomic.Bool
	navigated atomic.Bool
}

// NewSystemChecker creates a checker for cfg.Kind.
func NewSystemChecker(cfg CheckerConfig) *SystemChecker {
	if !cfg.Kind.Valid() {
		panic(fmt.Sprintf("permission: checker for invalid kind %q", cfg.Kind))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &SystemChecker{
		kind:          cfg.Kind,
		access:        cfg.Access,
		records:       cfg.Records,
		client:        cfg.Client,
		opener:        cfg.Opener,
		logger:        logger.With("permission", string(cfg.Kind)),
		lookupTimeout: timeout,
	}
}

func (c *SystemChecker) Kind() Kind     { return c.kind }
func (c *SystemChecker) Prompted() bool { return c.prompted.Load() }

// Check returns the primary source's status, or the fallback status when
// the primary source fails.
func (c *SystemChecker) Check(ctx context.Context) (Status, error) {
	return c.check(ctx)
}

func (c *SystemChecker) check(ctx context.Context) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("permission check panicked", "panic", r)
			status, err = StatusError, fmt.Errorf("check %s: panic: %v", c.kind, r)
		}
	}()

	primaryErr := ErrUnavailable
	if c.access != nil {
		s, err := c.access.CheckAccess()
		if err == nil && s.Valid() {
			return s, nil
		}
		if err == nil {
			err = fmt.Errorf("invalid status %q", s)
		}
		primaryErr = err
	}
	if errors.Is(primaryErr, ErrUnavailable) {
		c.logger.Debug("native access unavailable, using privacy record")
	} else {
		c.logger.Warn("native access check failed", "error", primaryErr)
	}
	return c.fallback(ctx, primaryErr)
}

func (c *SystemChecker) fallback(ctx context.Context, primaryErr error) (Status, error) {
	if c.records == nil {
		return StatusError, fmt.Errorf("check %s: %w", c.kind, primaryErr)
	}
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()
	status, err := c.records.Lookup(ctx, c.kind.TCCService(), c.client)
	switch {
	case errors.Is(err, ErrNoRecord):
		return StatusNotDetermined, nil
	case err != nil:
		c.logger.Warn("privacy record lookup failed", "error", err)
		return StatusError, fmt.Errorf("check %s: %w", c.kind, errors.Join(primaryErr, err))
	case !status.Valid():
		return StatusError, fmt.Errorf("check %s: invalid privacy record status %q", c.kind, status)
	}
	return status, nil
}

// Request triggers the consent dialog once. When the platform will not
// prompt, it opens the kind's System Settings pane instead and reports
// StatusNotDetermined.
func (c *SystemChecker) Request(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("permission request panicked", "panic", r)
			res = NewResult(ResultFields{
				Permission: c.kind,
				Status:     StatusError,
				Message:    "request failed",
				Err:        fmt.Errorf("request %s: panic: %v", c.kind, r),
			})
		}
	}()

	if !c.prompted.CompareAndSwap(false, true) {
		status, err := c.check(ctx)
		return NewResult(ResultFields{
			Permission: c.kind,
			Status:     status,
			Message:    "already requested this session",
			Err:        err,
		})
	}

	reqErr := ErrUnavailable
	if c.access != nil {
		reqErr = c.access.RequestAccess()
	}
	switch {
	case reqErr == nil:
		c.logger.Info("consent dialog requested")
		status, err := c.check(ctx)
		return NewResult(ResultFields{
			Permission: c.kind,
			Status:     status,
			Message:    "consent requested",
			Err:        err,
		})
	case errors.Is(reqErr, ErrPromptUnsupported), errors.Is(reqErr, ErrUnavailable):
		c.logger.Info("consent dialog unavailable, opening settings", "reason", reqErr)
		return NewResult(ResultFields{
			Permission: c.kind,
			Status:     StatusNotDetermined,
			Message:    c.openSettings(ctx),
			Err:        reqErr,
		})
	default:
		c.logger.Warn("consent request failed", "error", reqErr)
		return NewResult(ResultFields{
			Permission: c.kind,
			Status:     StatusError,
			Message:    "consent request failed",
			Err:        fmt.Errorf("request %s: %w", c.kind, reqErr),
		})
	}
}

// openSettings navigates to System Settings once per checker and returns
// a message describing what happened.
func (c *SystemChecker) openSettings(ctx context.Context) string {
	if c.opener == nil {
		return "grant access in System Settings"
	}
	if !c.navigated.CompareAndSwap(false, true) {
		return "System Settings already opened"
	}
	if err := c.opener.OpenSettings(ctx, c.kind); err != nil {
		c.logger.Warn("failed to open System Settings", "error", err)
		return "grant access in System Settings"
	}
	return "opened System Settings"
}
