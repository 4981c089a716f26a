package permission

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	a := assert.New(t)

	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		a.NoError(err)
		a.Equal(k, got)
		a.NotEmpty(k.TCCService(), "kind %s needs a TCC service", k)
		a.NotEmpty(k.SettingsAnchor(), "kind %s needs a settings anchor", k)
	}

	_, err := ParseKind("camera")
	a.Error(err)
}

func TestKindsPriorityOrder(t *testing.T) {
	assert.Equal(t, []Kind{Microphone, Accessibility, InputMonitoring, ScreenCapture}, Kinds)
}

func TestNewResult_SuccessFollowsStatus(t *testing.T) {
	a := assert.New(t)

	for _, s := range []Status{StatusGranted, StatusDenied, StatusNotDetermined, StatusError} {
		r := NewResult(ResultFields{Permission: Accessibility, Status: s})
		a.Equal(s == StatusGranted, r.Success(), "status %s", s)
		a.Equal(Accessibility, r.Permission())
		a.Equal(s, r.Status())
	}
}

func TestNewResult_InvalidStatusBecomesError(t *testing.T) {
	a := assert.New(t)

	// given - a status outside the closed set
	r := NewResult(ResultFields{Permission: Microphone, Status: Status("limited"), Message: "partial"})

	// then
	a.Equal(StatusError, r.Status())
	a.False(r.Success())
	a.Contains(r.Message(), "limited")
}

func TestNewResult_InvalidKindPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewResult(ResultFields{Permission: Kind("camera"), Status: StatusGranted})
	})
}

func TestResultJSON(t *testing.T) {
	r := require.New(t)

	res := NewResult(ResultFields{
		Permission: InputMonitoring,
		Status:     StatusDenied,
		Message:    "checked",
		Err:        errors.New("boom"),
	})
	b, err := json.Marshal(res)
	r.NoError(err)
	r.JSONEq(`{"success":false,"permission":"input_monitoring","status":"denied","message":"checked","error":"boom"}`, string(b))
}

func TestSnapshot_FillsMissingKinds(t *testing.T) {
	a := assert.New(t)

	// given - results for only one kind
	snap := newSnapshot(snapshotParams{
		results: map[Kind]Result{
			Microphone: NewResult(ResultFields{Permission: Microphone, Status: StatusGranted}),
		},
		critical: []Kind{Microphone, Accessibility},
	})

	// then - every kind is present and the gaps are errors
	a.Len(snap.Results(), len(Kinds))
	for _, k := range Kinds[1:] {
		a.Equal(StatusError, snap.Result(k).Status())
		a.Equal(k, snap.Result(k).Permission())
	}
	a.Equal([]Kind{Accessibility}, snap.Missing())
	a.False(snap.CriticalGranted())
	a.False(snap.Terminal())
}

func TestSnapshot_RejectsMislabelledResult(t *testing.T) {
	// given - a result filed under the wrong kind
	snap := newSnapshot(snapshotParams{
		results: map[Kind]Result{
			Microphone: NewResult(ResultFields{Permission: ScreenCapture, Status: StatusGranted}),
		},
	})

	// then - the slot is not trusted
	assert.Equal(t, Microphone, snap.Result(Microphone).Permission())
	assert.Equal(t, StatusError, snap.Result(Microphone).Status())
}

func TestSnapshot_DerivedFields(t *testing.T) {
	a := assert.New(t)

	results := map[Kind]Result{
		Microphone:      NewResult(ResultFields{Permission: Microphone, Status: StatusDenied}),
		Accessibility:   NewResult(ResultFields{Permission: Accessibility, Status: StatusGranted}),
		InputMonitoring: NewResult(ResultFields{Permission: InputMonitoring, Status: StatusNotDetermined}),
		ScreenCapture:   NewResult(ResultFields{Permission: ScreenCapture, Status: StatusGranted}),
	}
	snap := newSnapshot(snapshotParams{
		passID:   "p1",
		takenAt:  time.Unix(100, 0),
		results:  results,
		critical: allCritical,
	})

	a.Equal([]Kind{Microphone, InputMonitoring}, snap.Missing())
	a.Equal([]Kind{Accessibility, ScreenCapture}, snap.Granted())
	a.False(snap.CriticalGranted())
	a.False(snap.Terminal(), "not_determined without a request attempt is not terminal")

	exhausted := newSnapshot(snapshotParams{
		results:   results,
		critical:  allCritical,
		exhausted: map[Kind]bool{InputMonitoring: true},
	})
	a.True(exhausted.Terminal())
}

func TestSnapshot_EmptyCriticalSet(t *testing.T) {
	snap := newSnapshot(snapshotParams{})
	assert.True(t, snap.CriticalGranted())
	assert.Equal(t, []Kind{}, snap.Missing())
}

func TestSnapshotJSON(t *testing.T) {
	r := require.New(t)

	snap := newSnapshot(snapshotParams{
		passID:   "p1",
		takenAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		critical: []Kind{Microphone},
		results: map[Kind]Result{
			Microphone: NewResult(ResultFields{Permission: Microphone, Status: StatusGranted}),
		},
	})
	b, err := json.Marshal(snap)
	r.NoError(err)

	var out struct {
		PassID          string   `json:"passId"`
		CriticalGranted bool     `json:"criticalGranted"`
		Missing         []string `json:"missing"`
		Results         []struct {
			Permission string `json:"permission"`
			Status     string `json:"status"`
		} `json:"results"`
	}
	r.NoError(json.Unmarshal(b, &out))
	r.Equal("p1", out.PassID)
	r.True(out.CriticalGranted)
	r.Empty(out.Missing)
	r.Len(out.Results, 4)
	r.Equal("microphone", out.Results[0].Permission)
	r.Equal("granted", out.Results[0].Status)
}
