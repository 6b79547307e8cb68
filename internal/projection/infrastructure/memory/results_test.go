package memory

import (
	"context"
	"testing"
	"time"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
)

func resultRow(configID, scenarioID string, date time.Time, net float64) projection.ProjectionResult {
	return projection.ProjectionResult{SystemConfigID: configID, ScenarioID: scenarioID, Date: date, Days: 1, NetProfitUSD: net}
}

func TestResultStoreReplaceRangeRejectsMismatchWithoutMutating(t *testing.T) {
	store := NewResultStore()
	ctx := context.Background()
	d1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	if err := store.ReplaceRange(ctx, "cfg", "sc", d1, d2, []projection.ProjectionResult{
		resultRow("cfg", "sc", d1, 1), resultRow("cfg", "sc", d2, 2),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.ReplaceRange(ctx, "cfg", "sc", d1, d2, []projection.ProjectionResult{
		resultRow("cfg", "sc", d1, 10), resultRow("other", "sc", d2, 20),
	})
	if err == nil {
		t.Fatalf("expected key mismatch error")
	}
	rows, err := store.ListResults(ctx, application.ResultQuery{SystemConfigID: "cfg", ScenarioID: "sc"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].NetProfitUSD != 1 || rows[1].NetProfitUSD != 2 {
		t.Fatalf("store mutated by rejected replace: %+v", rows)
	}
}

func TestResultStoreReplaceRangeWithNoRowsDeletes(t *testing.T) {
	store := NewResultStore()
	ctx := context.Background()
	d1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	d3 := d1.AddDate(0, 0, 2)
	if err := store.ReplaceRange(ctx, "cfg", "sc", d1, d3, []projection.ProjectionResult{
		resultRow("cfg", "sc", d1, 1), resultRow("cfg", "sc", d2, 2), resultRow("cfg", "sc", d3, 3),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.ReplaceRange(ctx, "cfg", "sc", d2, d3, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Count() != 1 {
		t.Fatalf("count mismatch: got=%d want=1", store.Count())
	}
}
