package permission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotInitialized is returned by Gate.Status before any pass completed.
var ErrNotInitialized = errors.New("permission: status requested before first evaluation")

// DefaultFreshness is how long a snapshot is served from cache.
const DefaultFreshness = 30 * time.Second

// GateConfig for creating a Gate
type GateConfig struct {
	Coordinator *Coordinator
	FirstRun    *FirstRun // optional
	Critical    []Kind
	Freshness   time.Duration
	// Bypass grants every critical kind without touching any checker.
	// Only automated tests set it.
	Bypass bool
	Logger *slog.Logger
	Now    func() time.Time
}

// Gate caches the latest snapshot and makes sure only one evaluation pass
// runs at a time.
type Gate struct {
	coord     *Coordinator
	firstRun  *FirstRun
	critical  []Kind
	freshness time.Duration
	bypass    bool
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	snapshot *Snapshot
	stale    bool
	// generation counts Invalidate calls so a pass can tell whether it
	// raced with one.
	generation uint64
}

// NewGate creates a Gate.
func NewGate(cfg GateConfig) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	freshness := cfg.Freshness
	if freshness < 0 {
		freshness = 0
	}
	if cfg.Coordinator == nil && !cfg.Bypass {
		panic("permission: gate needs a coordinator unless bypassed")
	}
	return &Gate{
		coord:     cfg.Coordinator,
		firstRun:  cfg.FirstRun,
		critical:  append([]Kind(nil), cfg.Critical...),
		freshness: freshness,
		bypass:    cfg.Bypass,
		logger:    logger,
		now:       now,
	}
}

// Initialize runs a forced evaluation. Call it once at startup.
func (g *Gate) Initialize(ctx context.Context) (*Snapshot, error) {
	return g.Refresh(ctx, true)
}

// Refresh returns the cached snapshot when it is fresh and force is false.
// Otherwise it evaluates again, joining any pass already in flight. The
// pass is not canceled when ctx ends; only the wait is.
func (g *Gate) Refresh(ctx context.Context, force bool) (*Snapshot, error) {
	if !force {
		if snap := g.fresh(); snap != nil {
			return snap, nil
		}
	}

	ch := g.group.DoChan("refresh", func() (any, error) {
		return g.pass(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RefreshAsync runs Refresh in the background and calls done with the
// outcome.
func (g *Gate) RefreshAsync(ctx context.Context, force bool, done func(*Snapshot, error)) {
	go func() {
		snap, err := g.Refresh(ctx, force)
		if done != nil {
			done(snap, err)
		}
	}()
}

// Status returns the last snapshot without evaluating.
func (g *Gate) Status() (*Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil {
		return nil, ErrNotInitialized
	}
	return g.snapshot, nil
}

// Invalidate marks the cached snapshot stale so the next Refresh evaluates.
// An invalidation that arrives while a pass is running also applies to
// that pass's snapshot.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stale = true
	g.generation++
}

// Inspect returns the cached snapshot while it is fresh, and otherwise a
// check-only snapshot that never requests consent or opens System
// Settings. The check-only snapshot is not cached and does not advance
// the first run.
func (g *Gate) Inspect(ctx context.Context) (*Snapshot, error) {
	if g.bypass {
		return g.bypassSnapshot(), nil
	}
	if snap := g.fresh(); snap != nil {
		return snap, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.coord.Inspect(ctx, g.critical), nil
}

func (g *Gate) fresh() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshot == nil || g.stale {
		return nil
	}
	if g.now().Sub(g.snapshot.TakenAt()) >= g.freshness {
		return nil
	}
	return g.snapshot
}

func (g *Gate) pass(ctx context.Context) *Snapshot {
	g.mu.Lock()
	generation := g.generation
	g.mu.Unlock()

	var snap *Snapshot
	if g.bypass {
		snap = g.bypassSnapshot()
	} else {
		if g.firstRun != nil {
			g.firstRun.BeforePass()
		}
		snap = g.coord.Run(ctx, g.critical)
		if g.firstRun != nil {
			g.firstRun.AfterPass(snap)
		}
	}

	g.mu.Lock()
	g.snapshot = snap
	g.stale = g.generation != generation
	g.mu.Unlock()
	return snap
}

func (g *Gate) bypassSnapshot() *Snapshot {
	g.logger.Warn("permission checks bypassed")
	results := make(map[Kind]Result, len(Kinds))
	for _, k := range Kinds {
		results[k] = NewResult(ResultFields{
			Permission: k,
			Status:     StatusNotDetermined,
			Message:    "not evaluated (bypass)",
		})
	}
	for _, k := range g.critical {
		results[k] = NewResult(ResultFields{
			Permission: k,
			Status:     StatusGranted,
			Message:    "granted by bypass",
		})
	}
	return newSnapshot(snapshotParams{
		passID:   "bypass",
		takenAt:  g.now(),
		results:  results,
		critical: g.critical,
		bypassed: true,
	})
}
