package application

import (
	"context"
	"log"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

// ScheduledJob is a recurring projection of one configuration and scenario
// over a horizon starting on the run day.
type ScheduledJob struct {
	SystemConfigID string                 `yaml:"system_config_id"`
	ScenarioID     string                 `yaml:"scenario_id"`
	HorizonDays    int                    `yaml:"horizon_days"`
	Granularity    projection.Granularity `yaml:"granularity"`
}

// Scheduler recomputes scheduled jobs once a day.
type Scheduler struct {
	batch   *BatchRunner
	jobs    []ScheduledJob
	dailyAt string
	logger  *log.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(batch *BatchRunner, jobs []ScheduledJob, dailyAt string, logger *log.Logger) *Scheduler {
	return &Scheduler{
		batch:   batch,
		jobs:    jobs,
		dailyAt: dailyAt,
		logger:  logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.batch == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.RunOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

// RunOnce projects every job from the day of now.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) []BatchResult {
	requests := s.Requests(now)
	if len(requests) == 0 {
		return nil
	}
	results := s.batch.RunAll(ctx, requests)
	for _, res := range results {
		if res.Err != nil && s.logger != nil {
			s.logger.Printf("projection schedule error: config=%s scenario=%s err=%v", res.Request.SystemConfigID, res.Request.ScenarioID, res.Err)
		}
	}
	return results
}

// Requests builds the run requests for the day of now.
func (s *Scheduler) Requests(now time.Time) []RunRequest {
	start := projection.TruncateToDay(now.UTC())
	var out []RunRequest
	for _, job := range s.jobs {
		if job.SystemConfigID == "" || job.ScenarioID == "" {
			continue
		}
		horizon := job.HorizonDays
		if horizon <= 0 {
			horizon = 365
		}
		out = append(out, RunRequest{
			SystemConfigID: job.SystemConfigID,
			ScenarioID:     job.ScenarioID,
			StartDate:      start,
			EndDate:        start.AddDate(0, 0, horizon-1),
			Granularity:    job.Granularity,
		})
	}
	return out
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
