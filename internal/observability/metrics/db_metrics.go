package metrics

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const storeScrapeTimeout = 5 * time.Second

// storeCollector reports projection table sizes at scrape time.
type storeCollector struct {
	db     *sql.DB
	logger *log.Logger

	resultRows *prometheus.Desc
	runs       *prometheus.Desc
}

func newStoreCollector(db *sql.DB, logger *log.Logger) *storeCollector {
	return &storeCollector{
		db:     db,
		logger: logger,
		resultRows: prometheus.NewDesc(metricPrefix+"projection_result_rows",
			"Stored daily projection result rows", nil, nil),
		runs: prometheus.NewDesc(metricPrefix+"projection_runs",
			"Stored projection runs by state", []string{"state"}, nil),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.resultRows
	ch <- c.runs
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	if c.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeScrapeTimeout)
	defer cancel()

	var rows int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projection_results").Scan(&rows); err != nil {
		c.logf("metrics result count failed: %v", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.resultRows, prometheus.GaugeValue, float64(rows))
	}

	states, err := c.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM projection_runs GROUP BY state")
	if err != nil {
		c.logf("metrics run count failed: %v", err)
		return
	}
	defer states.Close()
	for states.Next() {
		var (
			state string
			count int64
		)
		if err := states.Scan(&state, &count); err != nil {
			c.logf("metrics run scan failed: %v", err)
			return
		}
		ch <- prometheus.MustNewConstMetric(c.runs, prometheus.GaugeValue, float64(count), state)
	}
	if err := states.Err(); err != nil {
		c.logf("metrics run rows failed: %v", err)
	}
}

func (c *storeCollector) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
