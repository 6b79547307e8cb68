package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
)

// ReplaceRange deletes the key's rows in [from, to] and inserts rows in one transaction.
func (s *Store) ReplaceRange(ctx context.Context, configID, scenarioID string, from, to time.Time, rows []projection.ProjectionResult) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store: nil db")
	}
	if to.Before(from) {
		return projection.ErrInvalidDateRange
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
DELETE FROM projection_results
WHERE system_config_id = ? AND scenario_id = ? AND projection_date >= ? AND projection_date <= ?`,
		configID, scenarioID, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, row := range rows {
		if row.SystemConfigID != configID || row.ScenarioID != scenarioID {
			_ = tx.Rollback()
			return errors.New("sqlite store: row key mismatch")
		}
		payload, err := json.Marshal(row)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO projection_results (system_config_id, scenario_id, projection_date, net_profit_usd, payload)
VALUES (?, ?, ?, ?, ?)`, configID, scenarioID, row.Date.UTC().Format(dateLayout), row.NetProfitUSD, string(payload))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite store: insert %s: %w", row.Date.Format(dateLayout), err)
		}
	}
	return tx.Commit()
}

// ListResults returns rows in date order.
func (s *Store) ListResults(ctx context.Context, query application.ResultQuery) ([]projection.ProjectionResult, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store: nil db")
	}
	to := "9999-12-31"
	if !query.To.IsZero() {
		to = query.To.UTC().Format(dateLayout)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM projection_results
WHERE system_config_id = ? AND scenario_id = ? AND projection_date >= ? AND projection_date <= ?
ORDER BY projection_date ASC`, query.SystemConfigID, query.ScenarioID, query.From.UTC().Format(dateLayout), to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []projection.ProjectionResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var row projection.ProjectionResult
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveRun upserts the run record.
func (s *Store) SaveRun(ctx context.Context, run *projection.ProjectionRun) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store: nil db")
	}
	if run == nil {
		return errors.New("sqlite store: nil run")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO projection_runs (id, system_config_id, scenario_id, state, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET state = excluded.state, payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		run.ID, run.SystemConfigID, run.ScenarioID, string(run.State), string(payload))
	return err
}

// GetRun returns nil, nil when id is unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*projection.ProjectionRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM projection_runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var payload string
	if err := rows.Scan(&payload); err != nil {
		return nil, err
	}
	var run projection.ProjectionRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, err
	}
	return &run, nil
}
