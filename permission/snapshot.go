package permission

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the complete, immutable outcome of one evaluation pass.
// It holds exactly one Result per Kind.
type Snapshot struct {
	passID    string
	takenAt   time.Time
	results   map[Kind]Result
	exhausted map[Kind]bool
	critical  []Kind
	bypassed  bool
}

type snapshotParams struct {
	passID    string
	takenAt   time.Time
	results   map[Kind]Result
	exhausted map[Kind]bool
	critical  []Kind
	bypassed  bool
}

// newSnapshot copies p into a Snapshot. Kinds missing from p.results are
// filled with an error result so a snapshot is never partial.
func newSnapshot(p snapshotParams) *Snapshot {
	s := &Snapshot{
		passID:    p.passID,
		takenAt:   p.takenAt,
		results:   make(map[Kind]Result, len(Kinds)),
		exhausted: make(map[Kind]bool, len(p.exhausted)),
		critical:  append([]Kind(nil), p.critical...),
		bypassed:  p.bypassed,
	}
	for _, k := range Kinds {
		r, ok := p.results[k]
		if !ok || r.Permission() != k {
			r = NewResult(ResultFields{
				Permission: k,
				Status:     StatusError,
				Message:    "not evaluated",
			})
		}
		s.results[k] = r
	}
	for k, v := range p.exhausted {
		if v {
			s.exhausted[k] = true
		}
	}
	return s
}

// Result returns the result recorded for k.
func (s *Snapshot) Result(k Kind) Result { return s.results[k] }

// Results returns every result in priority order.
func (s *Snapshot) Results() []Result {
	out := make([]Result, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, s.results[k])
	}
	return out
}

func (s *Snapshot) PassID() string     { return s.passID }
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }
func (s *Snapshot) Bypassed() bool     { return s.bypassed }

// Critical returns the critical set the snapshot was evaluated against.
func (s *Snapshot) Critical() []Kind { return append([]Kind(nil), s.critical...) }

// CriticalGranted reports whether every critical kind is granted.
func (s *Snapshot) CriticalGranted() bool { return len(s.Missing()) == 0 }

// Missing returns the critical kinds that are not granted, in priority order.
func (s *Snapshot) Missing() []Kind {
	missing := []Kind{}
	for _, k := range Kinds {
		if s.isCritical(k) && s.results[k].Status() != StatusGranted {
			missing = append(missing, k)
		}
	}
	return missing
}

// Granted returns every granted kind in priority order.
func (s *Snapshot) Granted() []Kind {
	granted := []Kind{}
	for _, k := range Kinds {
		if s.results[k].Status() == StatusGranted {
			granted = append(granted, k)
		}
	}
	return granted
}

// Terminal reports whether every kind is granted, denied, or still
// undetermined after its single request attempt.
func (s *Snapshot) Terminal() bool {
	for _, k := range Kinds {
		switch s.results[k].Status() {
		case StatusGranted, StatusDenied:
		case StatusNotDetermined:
			if !s.exhausted[k] {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (s *Snapshot) isCritical(k Kind) bool {
	for _, c := range s.critical {
		if c == k {
			return true
		}
	}
	return false
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot{pass=%s critical_granted=%t missing=%v}", s.passID, s.CriticalGranted(), s.Missing())
}

type snapshotJSON struct {
	PassID          string    `json:"passId"`
	TakenAt         time.Time `json:"takenAt"`
	CriticalGranted bool      `json:"criticalGranted"`
	Missing         []Kind    `json:"missing"`
	Terminal        bool      `json:"terminal"`
	Bypassed        bool      `json:"bypassed,omitempty"`
	Results         []Result  `json:"results"`
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		PassID:          s.passID,
		TakenAt:         s.takenAt,
		CriticalGranted: s.CriticalGranted(),
		Missing:         s.Missing(),
		Terminal:        s.Terminal(),
		Bypassed:        s.bypassed,
		Results:         s.Results(),
	})
}
