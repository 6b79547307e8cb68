package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
)

// ResultRepository persists daily projection rows. The full row lives in
// payload; the summary columns exist for ad-hoc SQL.
type ResultRepository struct {
	db *sql.DB
}

// NewResultRepository constructs a repository.
func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// ReplaceRange deletes the key's rows in [from, to] and inserts rows in one transaction.
func (r *ResultRepository) ReplaceRange(ctx context.Context, configID, scenarioID string, from, to time.Time, rows []projection.ProjectionResult) error {
	if r == nil || r.db == nil {
		return errors.New("result repo: nil db")
	}
	from, to = projection.TruncateToDay(from), projection.TruncateToDay(to)
	if to.Before(from) {
		return projection.ErrInvalidDateRange
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
DELETE FROM projection_results
WHERE system_config_id = $1 AND scenario_id = $2 AND projection_date >= $3 AND projection_date <= $4`,
		configID, scenarioID, from, to)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, row := range rows {
		if row.SystemConfigID != configID || row.ScenarioID != scenarioID {
			_ = tx.Rollback()
			return errors.New("result repo: row key mismatch")
		}
		payload, err := json.Marshal(row)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO projection_results (
	system_config_id, scenario_id, projection_date, btc_mined, mining_revenue_usd,
	total_operating_cost_usd, net_profit_usd, cumulative_cash_flow_usd, payload
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			configID, scenarioID, projection.TruncateToDay(row.Date), row.BTCMined, row.MiningRevenueUSD,
			row.TotalOperatingCostUSD, row.NetProfitUSD, row.CumulativeCashFlowUSD, string(payload))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("result repo: insert %s: %w", row.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// ListResults returns rows in date order.
func (r *ResultRepository) ListResults(ctx context.Context, query application.ResultQuery) ([]projection.ProjectionResult, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("result repo: nil db")
	}
	to := query.To
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT payload
FROM projection_results
WHERE system_config_id = $1 AND scenario_id = $2 AND projection_date >= $3 AND projection_date <= $4
ORDER BY projection_date ASC`, query.SystemConfigID, query.ScenarioID, projection.TruncateToDay(query.From), projection.TruncateToDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []projection.ProjectionResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var row projection.ProjectionResult
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, err
		}
		row.Date = row.Date.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
