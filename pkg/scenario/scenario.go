// Package scenario runs end-to-end scenarios against browser sessions.
//
// Each scenario runs through an ordered pipeline on its own goroutine:
// setup opens a session, steps drive it, and teardown always runs,
// persisting credential state, capturing failure artifacts while the page is
// still open, then releasing the browser. Scenarios come either from Go code
// or from YAML step scripts (LoadScript).
package scenario

import (
	"context"
	"time"

	"github.com/entrhq/uitest/pkg/artifact"
	"github.com/entrhq/uitest/pkg/browser"
)

// Status is a scenario's final state.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Scenario is one independently executable test case.
type Scenario struct {
	Title string
	Tags  []string

	// Source is where the scenario was defined, for reporting
	Source string

	Run func(ctx context.Context, a *browser.Actions) error
}

// Outcome is the result of running a scenario. The capturer reads it but
// never changes it.
type Outcome struct {
	Title         string
	Tags          []string
	Status        Status
	Err           error
	SessionID     string
	StateAttached bool
	StartTime     time.Time
	EndTime       time.Time

	// TeardownErr holds teardown failures; it never changes Status
	TeardownErr error

	Artifacts []artifact.Artifact
}

var _ artifact.Result = (*Outcome)(nil)

// Name returns the scenario title.
func (o *Outcome) Name() string {
	return o.Title
}

// Failed reports whether the scenario failed.
func (o *Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Duration returns how long the scenario ran.
func (o *Outcome) Duration() time.Duration {
	if o.EndTime.IsZero() {
		return 0
	}
	return o.EndTime.Sub(o.StartTime)
}

func (o *Outcome) fail(err error) {
	o.Status = StatusFailed
	if o.Err == nil {
		o.Err = err
	}
}

func (o *Outcome) result() artifact.ScenarioResult {
	r := artifact.ScenarioResult{
		Title:         o.Title,
		Tags:          o.Tags,
		Status:        string(o.Status),
		SessionID:     o.SessionID,
		StateAttached: o.StateAttached,
		StartTime:     o.StartTime,
		Duration:      o.Duration(),
		Artifacts:     o.Artifacts,
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	if o.TeardownErr != nil {
		for _, err := range unjoin(o.TeardownErr) {
			r.TeardownErrors = append(r.TeardownErrors, err.Error())
		}
	}
	return r
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
