package metrics

import (
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"
)

func TestStoreCollectorReportsRowsAndRunStates(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`CREATE TABLE projection_results (projection_date TEXT)`,
		`CREATE TABLE projection_runs (id TEXT, state TEXT)`,
		`INSERT INTO projection_results VALUES ('2025-03-01'), ('2025-03-02'), ('2025-03-03')`,
		`INSERT INTO projection_runs VALUES ('a', 'completed'), ('b', 'completed'), ('c', 'failed')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(newStoreCollector(db, nil))
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	got := map[string]float64{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			key := family.GetName()
			for _, label := range m.GetLabel() {
				key += "/" + label.GetValue()
			}
			got[key] = m.GetGauge().GetValue()
		}
	}
	want := map[string]float64{
		"solarmine_projection_result_rows":    3,
		"solarmine_projection_runs/completed": 2,
		"solarmine_projection_runs/failed":    1,
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("%s mismatch: got=%v want=%v", key, got[key], value)
		}
	}
}

func TestStoreCollectorSkipsMissingTables(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(newStoreCollector(db, nil))
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 0 {
		t.Fatalf("families mismatch: got=%d want=0", len(families))
	}
}
