package permission

import "time"

// EventEmitter abstracts event emission (decoupled from Wails)
type EventEmitter interface {
	Emit(eventName string, data any)
}

// Lifecycle event names.
const (
	EventFirstRunStarted   = "permissions.first_run_started"
	EventFirstRunCompleted = "permissions.first_run_completed"
)

// FirstRunStarted is emitted before the first evaluation pass of an
// installation.
type FirstRunStarted struct {
	Timestamp time.Time `json:"timestamp"`
}

// FirstRunCompleted is emitted once the first terminal pass has finished.
type FirstRunCompleted struct {
	Timestamp time.Time `json:"timestamp"`
	Granted   []Kind    `json:"granted"`
	Missing   []Kind    `json:"missing"`
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, any) {}
