package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
)

// ResultStore keeps daily rows unique per (config, scenario, date).
type ResultStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]projection.ProjectionResult
}

// NewResultStore constructs an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{rows: make(map[string]map[string]projection.ProjectionResult)}
}

// ReplaceRange deletes the key's rows in [from, to] and inserts rows.
func (s *ResultStore) ReplaceRange(ctx context.Context, configID, scenarioID string, from, to time.Time, rows []projection.ProjectionResult) error {
	_ = ctx
	if to.Before(from) {
		return projection.ErrInvalidDateRange
	}
	for _, row := range rows {
		if row.SystemConfigID != configID || row.ScenarioID != scenarioID {
			return errors.New("memory result store: row key mismatch")
		}
	}
	key := configID + "|" + scenarioID
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.rows[key]
	if bucket == nil {
		bucket = make(map[string]projection.ProjectionResult)
		s.rows[key] = bucket
	}
	for k, row := range bucket {
		if !row.Date.Before(from) && !row.Date.After(to) {
			delete(bucket, k)
		}
	}
	for _, row := range rows {
		bucket[row.Date.Format("20060102")] = row
	}
	return nil
}

// ListResults returns rows in date order.
func (s *ResultStore) ListResults(ctx context.Context, query application.ResultQuery) ([]projection.ProjectionResult, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.rows[query.SystemConfigID+"|"+query.ScenarioID]
	out := make([]projection.ProjectionResult, 0, len(bucket))
	for _, row := range bucket {
		if !query.From.IsZero() && row.Date.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && row.Date.After(query.To) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Count returns the number of stored rows.
func (s *ResultStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, bucket := range s.rows {
		n += len(bucket)
	}
	return n
}

// RunStore keeps run records by id.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]projection.ProjectionRun
}

// NewRunStore constructs an empty store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]projection.ProjectionRun)}
}

// SaveRun upserts a run record.
func (s *RunStore) SaveRun(ctx context.Context, run *projection.ProjectionRun) error {
	_ = ctx
	if run == nil {
		return errors.New("memory run store: nil run")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

// GetRun returns a run or nil.
func (s *RunStore) GetRun(ctx context.Context, id string) (*projection.ProjectionRun, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}
