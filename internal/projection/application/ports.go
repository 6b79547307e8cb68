package application

import (
	"context"
	"time"

	projection "solarmine-planner/internal/projection/domain"
)

// ConfigurationRepository loads system configurations. A missing id returns nil, nil.
type ConfigurationRepository interface {
	GetConfiguration(ctx context.Context, id string) (*projection.SystemConfiguration, error)
}

// ScenarioRepository loads scenarios. A missing id returns nil, nil.
type ScenarioRepository interface {
	GetScenario(ctx context.Context, id string) (*projection.Scenario, error)
}

// EquipmentCatalog resolves the catalog entries referenced by a configuration.
type EquipmentCatalog interface {
	LoadEquipment(ctx context.Context, cfg projection.SystemConfiguration) (projection.Equipment, error)
}

// SampleLookup is one link of the environmental fallback chain. It returns
// nil, nil when it has no sample for the date.
type SampleLookup interface {
	Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error)
}

// MarketSource returns the latest market snapshot at or before at, or nil, nil.
type MarketSource interface {
	SnapshotAt(ctx context.Context, at time.Time) (*projection.MarketSnapshot, error)
}

// ResultQuery selects stored rows for one configuration and scenario.
type ResultQuery struct {
	SystemConfigID string
	ScenarioID     string
	From           time.Time
	To             time.Time // inclusive; zero means open-ended
}

// ResultRepository stores daily projection rows keyed by (config, scenario, date).
type ResultRepository interface {
	// ReplaceRange atomically deletes every row for the key in [from, to] and
	// inserts rows.
	ReplaceRange(ctx context.Context, configID, scenarioID string, from, to time.Time, rows []projection.ProjectionResult) error
	ListResults(ctx context.Context, query ResultQuery) ([]projection.ProjectionResult, error)
}

// RunRepository stores run records.
type RunRepository interface {
	SaveRun(ctx context.Context, run *projection.ProjectionRun) error
	GetRun(ctx context.Context, id string) (*projection.ProjectionRun, error)
}

// RunFinished is emitted when a run reaches a terminal state.
type RunFinished struct {
	Run        projection.ProjectionRun
	OccurredAt time.Time
}

// RunPublisher emits run finished events.
type RunPublisher interface {
	PublishRunFinished(ctx context.Context, event RunFinished) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator creates run ids.
type IDGenerator func() string
