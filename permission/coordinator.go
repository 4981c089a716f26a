package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSettleDelay is how long a pass waits after a consent request
// before checking the kind again.
const DefaultSettleDelay = 2 * time.Second

// CoordinatorConfig for creating a Coordinator
type CoordinatorConfig struct {
	Checkers    []Checker
	SettleDelay time.Duration
	Logger      *slog.Logger
}

// CoordinatorOption customizes a Coordinator
type CoordinatorOption func(*Coordinator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithSleep replaces the settle wait, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) CoordinatorOption {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

// Coordinator runs evaluation passes over every kind in priority order and
// remembers which kinds have been requested during this process.
type Coordinator struct {
	checkers map[Kind]Checker
	settle   time.Duration
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	mu        sync.Mutex
	requested map[Kind]bool
}

// NewCoordinator creates a Coordinator. A later checker for the same kind
// replaces an earlier one.
func NewCoordinator(cfg CoordinatorConfig, opts ...CoordinatorOption) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settle := cfg.SettleDelay
	if settle < 0 {
		settle = 0
	}
	c := &Coordinator{
		checkers:  make(map[Kind]Checker, len(cfg.Checkers)),
		settle:    settle,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		requested: make(map[Kind]bool),
	}
	for _, ch := range cfg.Checkers {
		c.checkers[ch.Kind()] = ch
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one full pass and returns a complete snapshot.
func (c *Coordinator) Run(ctx context.Context, critical []Kind) *Snapshot {
	passID := uuid.New().String()
	log := c.logger.With("pass", passID)
	log.Debug("permission pass started")

	results := make(map[Kind]Result, len(Kinds))
	for _, k := range Kinds {
		results[k] = c.evaluate(ctx, log, k)
	}

	snap := newSnapshot(snapshotParams{
		passID:    passID,
		takenAt:   c.now(),
		results:   results,
		exhausted: c.requestedKinds(),
		critical:  critical,
	})
	log.Info("permission pass finished",
		"critical_granted", snap.CriticalGranted(),
		"missing", snap.Missing(),
		"terminal", snap.Terminal())
	return snap
}

func (c *Coordinator) evaluate(ctx context.Context, log *slog.Logger, k Kind) Result {
	checker, ok := c.checkers[k]
	if !ok {
		return noChecker(k)
	}

	status, err := checker.Check(ctx)
	switch {
	case status.settled():
		return NewResult(ResultFields{Permission: k, Status: status, Message: "checked"})
	case status != StatusNotDetermined:
		return checkFailed(k, err)
	}

	if !c.markRequested(k) {
		return NewResult(ResultFields{
			Permission: k,
			Status:     StatusNotDetermined,
			Message:    "already requested this session",
		})
	}

	log.Info("requesting permission", "permission", string(k))
	req := checker.Request(ctx)
	c.sleep(ctx, c.settle)
	status, err = checker.Check(ctx)
	log.Debug("permission settled", "permission", string(k), "status", string(status))

	res := ResultFields{Permission: k, Status: status, Message: req.Message()}
	switch {
	case status == StatusError && err != nil:
		res.Err = err
	case status != StatusGranted:
		res.Err = req.Err()
	}
	if res.Message == "" {
		res.Message = fmt.Sprintf("requested; %s after settle", status)
	}
	return NewResult(res)
}

// Inspect checks every kind without requesting any of them. The result
// reflects what the platform reports right now; nothing is marked as
// requested and no dialog or System Settings pane is ever shown.
func (c *Coordinator) Inspect(ctx context.Context, critical []Kind) *Snapshot {
	passID := uuid.New().String()
	results := make(map[Kind]Result, len(Kinds))
	for _, k := range Kinds {
		checker, ok := c.checkers[k]
		if !ok {
			results[k] = noChecker(k)
			continue
		}
		status, err := checker.Check(ctx)
		if status == StatusError || !status.Valid() {
			results[k] = checkFailed(k, err)
			continue
		}
		results[k] = NewResult(ResultFields{Permission: k, Status: status, Message: "checked"})
	}
	c.logger.Debug("permission inspection finished", "pass", passID)
	return newSnapshot(snapshotParams{
		passID:    passID,
		takenAt:   c.now(),
		results:   results,
		exhausted: c.requestedKinds(),
		critical:  critical,
	})
}

func noChecker(k Kind) Result {
	return NewResult(ResultFields{Permission: k, Status: StatusError, Message: "no checker configured"})
}

func checkFailed(k Kind, err error) Result {
	return NewResult(ResultFields{Permission: k, Status: StatusError, Message: "check failed", Err: err})
}

// markRequested records k as requested and reports whether it was not
// requested before.
func (c *Coordinator) markRequested(k Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requested[k] {
		return false
	}
	c.requested[k] = true
	return true
}

// Requested reports whether k has been requested during this process.
func (c *Coordinator) Requested(k Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested[k]
}

func (c *Coordinator) requestedKinds() map[Kind]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]bool, len(c.requested))
	for k, v := range c.requested {
		out[k] = v
	}
	return out
}

// Checker returns the checker registered for k.
func (c *Coordinator) Checker(k Kind) (Checker, bool) {
	ch, ok := c.checkers[k]
	return ch, ok
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
