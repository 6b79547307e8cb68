package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

// RunRepository persists projection run records.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun upserts the run record.
func (r *RunRepository) SaveRun(ctx context.Context, run *projection.ProjectionRun) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run == nil {
		return errors.New("run repo: nil run")
	}
	var summary []byte
	if run.Summary != nil {
		var err error
		if summary, err = json.Marshal(run.Summary); err != nil {
			return err
		}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO projection_runs (
	id, system_config_id, scenario_id, start_date, end_date, granularity, state,
	in_progress_date, last_recorded_date, failed_date, days_recorded, failed_component,
	error_kind, error, summary, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state, in_progress_date = EXCLUDED.in_progress_date,
	last_recorded_date = EXCLUDED.last_recorded_date, failed_date = EXCLUDED.failed_date,
	days_recorded = EXCLUDED.days_recorded, failed_component = EXCLUDED.failed_component,
	error_kind = EXCLUDED.error_kind, error = EXCLUDED.error, summary = EXCLUDED.summary,
	finished_at = EXCLUDED.finished_at`,
		run.ID, run.SystemConfigID, run.ScenarioID, run.StartDate, run.EndDate, string(run.Granularity), string(run.State),
		nullTime(run.CurrentDate), nullTime(run.LastRecordedDate), nullTime(run.FailedDate), run.DaysRecorded, run.FailedComponent,
		run.ErrorKind, run.Error, nullableJSON(summary), run.StartedAt, nullTime(run.FinishedAt))
	return err
}

// GetRun returns nil, nil when id is unknown.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*projection.ProjectionRun, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	var (
		run                            projection.ProjectionRun
		granularity, state             string
		current, recorded, failed, fin sql.NullTime
		summary                        []byte
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, system_config_id, scenario_id, start_date, end_date, granularity, state,
	in_progress_date, last_recorded_date, failed_date, days_recorded, failed_component,
	error_kind, error, summary, started_at, finished_at
FROM projection_runs
WHERE id = $1`, id).Scan(
		&run.ID, &run.SystemConfigID, &run.ScenarioID, &run.StartDate, &run.EndDate, &granularity, &state,
		&current, &recorded, &failed, &run.DaysRecorded, &run.FailedComponent,
		&run.ErrorKind, &run.Error, &summary, &run.StartedAt, &fin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Granularity = projection.Granularity(granularity)
	run.State = projection.RunState(state)
	run.StartDate = run.StartDate.UTC()
	run.EndDate = run.EndDate.UTC()
	run.StartedAt = run.StartedAt.UTC()
	run.CurrentDate = timePtr(current)
	run.LastRecordedDate = timePtr(recorded)
	run.FailedDate = timePtr(failed)
	run.FinishedAt = timePtr(fin)
	if len(summary) > 0 {
		run.Summary = &projection.FinancialSummary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
