package notify

import (
	"context"
	"errors"
	"log"

	"solarmine-planner/internal/projection/application"
)

// LoggingPublisher logs run finished events.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishRunFinished logs the event.
func (p *LoggingPublisher) PublishRunFinished(ctx context.Context, event application.RunFinished) error {
	_ = ctx
	if p == nil {
		return errors.New("projection publisher: nil publisher")
	}
	run := event.Run
	if run.Summary != nil {
		p.logger.Printf("projection run %s: run=%s config=%s scenario=%s days=%d npv=%.2f roi=%.2f%%",
			run.State, run.ID, run.SystemConfigID, run.ScenarioID, run.DaysRecorded, run.Summary.NPVUSD, run.Summary.ROIPercent)
		return nil
	}
	p.logger.Printf("projection run %s: run=%s config=%s scenario=%s kind=%s component=%s err=%s",
		run.State, run.ID, run.SystemConfigID, run.ScenarioID, run.ErrorKind, run.FailedComponent, run.Error)
	return nil
}

// MultiPublisher forwards events to several publishers and joins their errors.
type MultiPublisher struct {
	publishers []application.RunPublisher
}

// NewMultiPublisher constructs a MultiPublisher.
func NewMultiPublisher(publishers ...application.RunPublisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// PublishRunFinished forwards the event to all publishers.
func (m *MultiPublisher) PublishRunFinished(ctx context.Context, event application.RunFinished) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, p := range m.publishers {
		if p == nil {
			continue
		}
		if err := p.PublishRunFinished(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
