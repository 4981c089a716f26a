package permission

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terminalSnapshot(t *testing.T, statuses map[Kind]Status) *Snapshot {
	t.Helper()
	results := make(map[Kind]Result, len(Kinds))
	for _, k := range Kinds {
		s, ok := statuses[k]
		if !ok {
			s = StatusGranted
		}
		results[k] = NewResult(ResultFields{Permission: k, Status: s})
	}
	return newSnapshot(snapshotParams{
		passID:    "test",
		takenAt:   newFakeClock().Now(),
		results:   results,
		exhausted: map[Kind]bool{Microphone: true, Accessibility: true, InputMonitoring: true, ScreenCapture: true},
		critical:  allCritical,
	})
}

func newTestFirstRun(marker *memMarker, emitter *mockEmitter) *FirstRun {
	f := NewFirstRun(marker, emitter, nil)
	f.now = newFakeClock().Now
	return f
}

func TestFirstRun_CompletesWithMissingKinds(t *testing.T) {
	r := require.New(t)

	// given - a fresh install where the microphone was declined
	marker := &memMarker{}
	emitter := &mockEmitter{}
	f := newTestFirstRun(marker, emitter)

	// when
	f.BeforePass()
	f.AfterPass(terminalSnapshot(t, map[Kind]Status{Microphone: StatusDenied}))

	// then
	events := emitter.getEvents()
	r.Len(events, 2)
	r.Equal(EventFirstRunStarted, events[0].name)
	r.Equal(EventFirstRunCompleted, events[1].name)

	completed, ok := events[1].data.(FirstRunCompleted)
	r.True(ok)
	r.Equal([]Kind{Microphone}, completed.Missing)
	r.Equal([]Kind{Accessibility, InputMonitoring, ScreenCapture}, completed.Granted)
	r.Equal(newFakeClock().Now(), completed.Timestamp)

	r.Equal(1, marker.writes)
	r.Equal([]Kind{Microphone}, marker.marker.Missing)
	r.True(f.Completed())
}

func TestFirstRun_IdempotentAfterCompletion(t *testing.T) {
	a := assert.New(t)

	marker := &memMarker{}
	emitter := &mockEmitter{}
	f := newTestFirstRun(marker, emitter)
	snap := terminalSnapshot(t, nil)

	for i := 0; i < 3; i++ {
		f.BeforePass()
		f.AfterPass(snap)
	}

	a.Len(emitter.named(EventFirstRunStarted), 1)
	a.Len(emitter.named(EventFirstRunCompleted), 1)
	a.Equal(1, marker.writes)
}

func TestFirstRun_NonTerminalPassWritesNothing(t *testing.T) {
	a := assert.New(t)

	// given - a pass that could not evaluate input monitoring
	marker := &memMarker{}
	emitter := &mockEmitter{}
	f := newTestFirstRun(marker, emitter)
	snap := terminalSnapshot(t, map[Kind]Status{InputMonitoring: StatusError})

	// when
	f.BeforePass()
	f.AfterPass(snap)

	// then
	a.False(snap.Terminal())
	a.Zero(marker.writes)
	a.Len(emitter.named(EventFirstRunStarted), 1)
	a.Empty(emitter.named(EventFirstRunCompleted))
	a.False(f.Completed())
}

func TestFirstRun_ExistingMarkerEmitsNothing(t *testing.T) {
	a := assert.New(t)

	marker := &memMarker{marker: &Marker{CompletedAt: time.Unix(0, 0)}}
	emitter := &mockEmitter{}
	f := newTestFirstRun(marker, emitter)

	f.BeforePass()
	f.AfterPass(terminalSnapshot(t, nil))

	a.Empty(emitter.getEvents())
	a.Zero(marker.writes)
	a.True(f.Completed())
}

func TestFirstRun_MarkerWriteFailureRetries(t *testing.T) {
	r := require.New(t)

	// given
	marker := &memMarker{err: errors.New("disk full")}
	emitter := &mockEmitter{}
	f := newTestFirstRun(marker, emitter)
	snap := terminalSnapshot(t, nil)

	// when - the first write fails
	f.BeforePass()
	f.AfterPass(snap)

	// then - nothing is reported complete
	r.Empty(emitter.named(EventFirstRunCompleted))
	r.False(f.Completed())

	// when - the disk recovers
	marker.mu.Lock()
	marker.err = nil
	marker.mu.Unlock()
	f.BeforePass()
	f.AfterPass(snap)

	// then
	r.Len(emitter.named(EventFirstRunStarted), 1)
	r.Len(emitter.named(EventFirstRunCompleted), 1)
	r.Equal(1, marker.writes)
}
