package permission

import (
	"context"
	"sync"
	"time"
)

// fakeChecker is a scripted Checker. Request moves it to afterRequest
// when that is set.
type fakeChecker struct {
	kind         Kind
	afterRequest Status
	checkErr     error // returned alongside StatusError
	log          *callLog
	release      chan struct{} // when set, Request blocks until closed
	requested    chan struct{} // closed when Request starts

	mu       sync.Mutex
	status   Status
	checks   int
	requests int
}

func newFakeChecker(kind Kind, status Status) *fakeChecker {
	return &fakeChecker{kind: kind, status: status}
}

func (f *fakeChecker) Kind() Kind { return f.kind }

func (f *fakeChecker) Check(ctx context.Context) (Status, error) {
	f.log.add(string(f.kind) + ":check")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.status == StatusError {
		return f.status, f.checkErr
	}
	return f.status, nil
}

func (f *fakeChecker) Request(ctx context.Context) Result {
	f.log.add(string(f.kind) + ":request")
	f.mu.Lock()
	f.requests++
	first := f.requests == 1
	f.mu.Unlock()
	if f.requested != nil && first {
		close(f.requested)
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.afterRequest != "" {
		f.status = f.afterRequest
	}
	return NewResult(ResultFields{Permission: f.kind, Status: f.status, Message: "consent requested"})
}

func (f *fakeChecker) Prompted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests > 0
}

func (f *fakeChecker) counts() (checks, requests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks, f.requests
}

func (f *fakeChecker) setStatus(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

// fakeSet builds one fake checker per kind, all starting at status.
func fakeSet(status Status) map[Kind]*fakeChecker {
	set := make(map[Kind]*fakeChecker, len(Kinds))
	for _, k := range Kinds {
		set[k] = newFakeChecker(k, status)
	}
	return set
}

func checkersOf(set map[Kind]*fakeChecker) []Checker {
	out := make([]Checker, 0, len(set))
	for _, k := range Kinds {
		if c, ok := set[k]; ok {
			out = append(out, c)
		}
	}
	return out
}

// callLog records checker calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.calls...)
}

// mockEmitter captures emitted events for testing
type mockEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

type emittedEvent struct {
	name string
	data any
}

func (m *mockEmitter) Emit(eventName string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, emittedEvent{name: eventName, data: data})
}

func (m *mockEmitter) getEvents() []emittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]emittedEvent{}, m.events...)
}

func (m *mockEmitter) named(name string) []emittedEvent {
	var out []emittedEvent
	for _, e := range m.getEvents() {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

// memMarker is an in-memory MarkerStore.
type memMarker struct {
	mu     sync.Mutex
	marker *Marker
	writes int
	err    error
}

func (m *memMarker) Exists() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marker != nil, nil
}

func (m *memMarker) Write(mk Marker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes++
	m.marker = &mk
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSleep(context.Context, time.Duration) {}

var allCritical = []Kind{Microphone, Accessibility, InputMonitoring}
