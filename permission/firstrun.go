package permission

import (
	"log/slog"
	"sync"
	"time"
)

// FirstRun tracks the first evaluation of an installation and emits its
// two lifecycle events.
type FirstRun struct {
	marker  MarkerStore
	emitter EventEmitter
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	started   bool
	completed bool
}

// NewFirstRun creates a FirstRun. A nil emitter drops events.
func NewFirstRun(marker MarkerStore, emitter EventEmitter, logger *slog.Logger) *FirstRun {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FirstRun{marker: marker, emitter: emitter, logger: logger, now: time.Now}
}

// BeforePass emits first_run_started the first time it is called in a
// process where no marker exists.
func (f *FirstRun) BeforePass() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed || f.started {
		return
	}
	exists, err := f.marker.Exists()
	if err != nil {
		f.logger.Warn("first-run marker unreadable", "error", err)
	}
	if exists {
		f.completed = true
		return
	}
	f.started = true
	f.emitter.Emit(EventFirstRunStarted, FirstRunStarted{Timestamp: f.now()})
}

// AfterPass writes the marker and emits first_run_completed for the first
// terminal snapshot. Later calls do nothing.
func (f *FirstRun) AfterPass(s *Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed || !s.Terminal() {
		return
	}
	if exists, _ := f.marker.Exists(); exists {
		f.completed = true
		return
	}
	at := f.now()
	err := f.marker.Write(Marker{CompletedAt: at, Granted: s.Granted(), Missing: s.Missing()})
	if err != nil {
		// Retried on the next terminal pass.
		f.logger.Error("failed to write first-run marker", "error", err)
		return
	}
	f.completed = true
	f.logger.Info("first run completed", "missing", s.Missing())
	f.emitter.Emit(EventFirstRunCompleted, FirstRunCompleted{
		Timestamp: at,
		Granted:   s.Granted(),
		Missing:   s.Missing(),
	})
}

// Completed reports whether the first run has been recorded.
func (f *FirstRun) Completed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}
