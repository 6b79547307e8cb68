package projection

import (
	"errors"
	"fmt"
	"time"
)

// RunState is the orchestrator state of a projection run.
type RunState string

const (
	RunInitializing RunState = "initializing"
	RunResolving    RunState = "resolving"
	RunSimulating   RunState = "simulating"
	RunRecorded     RunState = "recorded"
	RunCompleted    RunState = "completed"
	RunFailed       RunState = "failed"
)

// ErrInvalidTransition is returned for a state change the run does not allow.
var ErrInvalidTransition = errors.New("projection: invalid run state transition")

var runTransitions = map[RunState][]RunState{
	RunInitializing: {RunResolving, RunCompleted, RunFailed},
	RunResolving:    {RunSimulating, RunFailed},
	RunSimulating:   {RunRecorded, RunFailed},
	RunRecorded:     {RunResolving, RunCompleted, RunFailed},
}

// IsTerminal reports whether no further transitions are possible.
func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// ProjectionRun records one orchestrator execution.
type ProjectionRun struct {
	ID               string            `json:"id"`
	SystemConfigID   string            `json:"system_config_id"`
	ScenarioID       string            `json:"scenario_id"`
	StartDate        time.Time         `json:"start_date"`
	EndDate          time.Time         `json:"end_date"`
	Granularity      Granularity       `json:"granularity"`
	State            RunState          `json:"state"`
	CurrentDate      *time.Time        `json:"current_date,omitempty"`
	LastRecordedDate *time.Time        `json:"last_recorded_date,omitempty"`
	DaysRecorded     int               `json:"days_recorded"`
	FailedDate       *time.Time        `json:"failed_date,omitempty"`
	FailedComponent  string            `json:"failed_component,omitempty"`
	ErrorKind        string            `json:"error_kind,omitempty"`
	Error            string            `json:"error,omitempty"`
	Summary          *FinancialSummary `json:"summary,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       *time.Time        `json:"finished_at,omitempty"`
}

// NewProjectionRun starts a run in the initializing state.
func NewProjectionRun(id, configID, scenarioID string, start, end time.Time, g Granularity, now time.Time) (*ProjectionRun, error) {
	if id == "" {
		return nil, errors.New("projection: empty run id")
	}
	start, end = TruncateToDay(start), TruncateToDay(end)
	if start.IsZero() || end.Before(start) {
		return nil, ErrInvalidDateRange
	}
	if !g.IsValid() {
		return nil, ErrInvalidGranularity
	}
	return &ProjectionRun{
		ID:             id,
		SystemConfigID: configID,
		ScenarioID:     scenarioID,
		StartDate:      start,
		EndDate:        end,
		Granularity:    g,
		State:          RunInitializing,
		StartedAt:      now,
	}, nil
}

// Transition moves the run to next, rejecting moves the state machine does not allow.
func (r *ProjectionRun) Transition(next RunState) error {
	for _, allowed := range runTransitions[r.State] {
		if allowed == next {
			r.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
}

// Enter moves to Resolving for date.
func (r *ProjectionRun) Enter(date time.Time) error {
	if err := r.Transition(RunResolving); err != nil {
		return err
	}
	d := date
	r.CurrentDate = &d
	return nil
}

// MarkRecorded notes that every date up to and including date is persisted.
func (r *ProjectionRun) MarkRecorded(date time.Time, days int) {
	d := date
	r.LastRecordedDate = &d
	r.DaysRecorded += days
}

// Complete finishes the run with its summary.
func (r *ProjectionRun) Complete(summary FinancialSummary, now time.Time) error {
	if err := r.Transition(RunCompleted); err != nil {
		return err
	}
	r.Summary = &summary
	r.FinishedAt = &now
	return nil
}

// Fail finishes the run with the failing date and component taken from err.
func (r *ProjectionRun) Fail(err error, now time.Time) {
	if r.State.IsTerminal() {
		return
	}
	r.State = RunFailed
	r.FinishedAt = &now
	r.ErrorKind = ErrorKind(err)
	if err != nil {
		r.Error = err.Error()
	}
	var step *StepError
	if errors.As(err, &step) {
		r.FailedComponent = step.Component
		if !step.Date.IsZero() {
			d := step.Date
			r.FailedDate = &d
		}
	}
}
