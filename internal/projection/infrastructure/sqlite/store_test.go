package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	store, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func dailyRows(from time.Time, n int, profit float64) []projection.ProjectionResult {
	rows := make([]projection.ProjectionResult, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, projection.ProjectionResult{
			SystemConfigID: "cfg-1",
			ScenarioID:     "sc-1",
			Date:           from.AddDate(0, 0, i),
			Granularity:    projection.GranularityDaily,
			Days:           1,
			NetProfitUSD:   profit,
		})
	}
	return rows
}

func TestReplaceRangeOverwritesWithoutDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 9)

	if err := store.ReplaceRange(ctx, "cfg-1", "sc-1", start, end, dailyRows(start, 10, 1)); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := store.ReplaceRange(ctx, "cfg-1", "sc-1", start, start.AddDate(0, 0, 4), dailyRows(start, 5, 2)); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	rows, err := store.ListResults(ctx, application.ResultQuery{SystemConfigID: "cfg-1", ScenarioID: "sc-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("row count mismatch: got=%d want=10", len(rows))
	}
	for i, row := range rows {
		want := 1.0
		if i < 5 {
			want = 2
		}
		if row.NetProfitUSD != want {
			t.Fatalf("row %d profit mismatch: got=%v want=%v", i, row.NetProfitUSD, want)
		}
		if !row.Date.Equal(start.AddDate(0, 0, i)) {
			t.Fatalf("row %d date mismatch: got=%s", i, row.Date)
		}
	}

	window, err := store.ListResults(ctx, application.ResultQuery{SystemConfigID: "cfg-1", ScenarioID: "sc-1", From: start.AddDate(0, 0, 3), To: start.AddDate(0, 0, 5)})
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("window count mismatch: got=%d want=3", len(window))
	}
}

func TestReplaceRangeRollsBackOnKeyMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := store.ReplaceRange(ctx, "cfg-1", "sc-1", start, start.AddDate(0, 0, 2), dailyRows(start, 3, 1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	bad := dailyRows(start, 3, 5)
	bad[2].ScenarioID = "other"
	if err := store.ReplaceRange(ctx, "cfg-1", "sc-1", start, start.AddDate(0, 0, 2), bad); err == nil {
		t.Fatalf("expected key mismatch error")
	}
	rows, err := store.ListResults(ctx, application.ResultQuery{SystemConfigID: "cfg-1", ScenarioID: "sc-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 || rows[0].NetProfitUSD != 1 {
		t.Fatalf("rollback mismatch: got=%d rows, first=%v", len(rows), rows[0].NetProfitUSD)
	}
}

func TestRunRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	run, err := projection.NewProjectionRun("run-1", "cfg-1", "sc-1", start, start.AddDate(0, 0, 3), projection.GranularityDaily, start)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	run.State = projection.RunFailed
	run.ErrorKind = "NoMarketDataError"
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.State != projection.RunFailed || got.ErrorKind != "NoMarketDataError" {
		t.Fatalf("run mismatch: got=%+v", got)
	}
	missing, err := store.GetRun(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing run mismatch: got=%v err=%v", missing, err)
	}
}
