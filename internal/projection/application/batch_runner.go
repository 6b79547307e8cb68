package application

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"
)

// Runner executes a single projection run.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunOutput, error)
}

// BatchResult pairs a request with its outcome.
type BatchResult struct {
	Request RunRequest
	Output  *RunOutput
	Err     error
}

// BatchRunner runs independent projections on a bounded worker pool.
// Runs share no mutable state, so a failing run never cancels the others.
type BatchRunner struct {
	runner  Runner
	workers int
	logger  *log.Logger
}

// NewBatchRunner constructs a BatchRunner.
func NewBatchRunner(runner Runner, workers int, logger *log.Logger) (*BatchRunner, error) {
	if runner == nil {
		return nil, errors.New("batch runner: nil runner")
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BatchRunner{runner: runner, workers: workers, logger: logger}, nil
}

// RunAll executes every request and returns results in request order.
func (b *BatchRunner) RunAll(ctx context.Context, requests []RunRequest) []BatchResult {
	results := make([]BatchResult, len(requests))
	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, req := range requests {
		g.Go(func() error {
			out, err := b.runner.Run(ctx, req)
			results[i] = BatchResult{Request: req, Output: out, Err: err}
			if err != nil {
				b.logger.Printf("batch projection failed: config=%s scenario=%s err=%v", req.SystemConfigID, req.ScenarioID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
