package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"solarmine-planner/internal/observability/metrics"
	projection "solarmine-planner/internal/projection/domain"
)

const (
	defaultChunkDays   = 31
	defaultDateTimeout = 10 * time.Second
)

// Options tunes the orchestrator.
type Options struct {
	// ChunkDays is the number of dates persisted per ReplaceRange call.
	ChunkDays int
	// DateTimeout bounds external data resolution for a single date.
	DateTimeout time.Duration
}

// RunRequest names the configuration, scenario and horizon to project.
type RunRequest struct {
	RunID          string
	SystemConfigID string
	ScenarioID     string
	StartDate      time.Time
	EndDate        time.Time
	Granularity    projection.Granularity
}

// RunOutput is what a run produced, including partial output on failure.
type RunOutput struct {
	Run            projection.ProjectionRun
	Rows           []projection.ProjectionResult
	MonthlyRollups []projection.ProjectionResult
	AnnualRollups  []projection.ProjectionResult
	Summary        *projection.FinancialSummary
}

// ProjectionService drives the per-date projection loop.
type ProjectionService struct {
	configs   ConfigurationRepository
	scenarios ScenarioRepository
	catalog   EquipmentCatalog
	env       *EnvironmentalResolver
	market    MarketSource
	results   ResultRepository
	runs      RunRepository
	publisher RunPublisher
	clock     Clock
	newID     IDGenerator
	logger    *log.Logger
	opts      Options
}

// NewProjectionService constructs the service. Runs and publisher are optional.
func NewProjectionService(
	configs ConfigurationRepository,
	scenarios ScenarioRepository,
	catalog EquipmentCatalog,
	env *EnvironmentalResolver,
	market MarketSource,
	results ResultRepository,
	runs RunRepository,
	publisher RunPublisher,
	clock Clock,
	logger *log.Logger,
	opts Options,
) (*ProjectionService, error) {
	if configs == nil {
		return nil, errors.New("projection service: nil configuration repository")
	}
	if scenarios == nil {
		return nil, errors.New("projection service: nil scenario repository")
	}
	if catalog == nil {
		return nil, errors.New("projection service: nil equipment catalog")
	}
	if env == nil {
		return nil, errors.New("projection service: nil environmental resolver")
	}
	if market == nil {
		return nil, errors.New("projection service: nil market source")
	}
	if results == nil {
		return nil, errors.New("projection service: nil result repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.ChunkDays <= 0 {
		opts.ChunkDays = defaultChunkDays
	}
	if opts.DateTimeout <= 0 {
		opts.DateTimeout = defaultDateTimeout
	}
	return &ProjectionService{
		configs:   configs,
		scenarios: scenarios,
		catalog:   catalog,
		env:       env,
		market:    market,
		results:   results,
		runs:      runs,
		publisher: publisher,
		clock:     clock,
		newID:     uuid.NewString,
		logger:    logger,
		opts:      opts,
	}, nil
}

// WithIDGenerator replaces the run id generator.
func (s *ProjectionService) WithIDGenerator(gen IDGenerator) *ProjectionService {
	if gen != nil {
		s.newID = gen
	}
	return s
}

// runInputs is everything loaded in the initializing state.
type runInputs struct {
	cfg        projection.SystemConfiguration
	scenario   projection.Scenario
	equipment  projection.Equipment
	params     projection.ResolvedParameters
	marketAt   time.Time
	investment float64
}

// Run executes one projection. On failure the returned output carries the
// failed run record and every row that was recorded before the failure.
func (s *ProjectionService) Run(ctx context.Context, req RunRequest) (*RunOutput, error) {
	started := s.clock.Now()
	g, err := projection.ParseGranularity(string(req.Granularity))
	if err != nil {
		return nil, err
	}
	runID := req.RunID
	if runID == "" {
		runID = s.newID()
	}
	run, err := projection.NewProjectionRun(runID, req.SystemConfigID, req.ScenarioID, req.StartDate, req.EndDate, g, started)
	if err != nil {
		return nil, err
	}
	s.saveRun(ctx, run)

	out := &RunOutput{}
	err = s.execute(ctx, run, out)
	if err != nil {
		run.Fail(err, s.clock.Now())
		metrics.IncProjectionFailure(run.ErrorKind, run.FailedComponent)
		metrics.ObserveProjectionRun(metrics.ResultError, s.clock.Now().Sub(started))
		s.logger.Printf("projection run failed: run=%s config=%s scenario=%s date=%s component=%s err=%v",
			run.ID, run.SystemConfigID, run.ScenarioID, formatOptionalDate(run.FailedDate), run.FailedComponent, err)
	} else {
		metrics.ObserveProjectionRun(metrics.ResultSuccess, s.clock.Now().Sub(started))
	}
	s.saveRun(ctx, run)
	out.Run = *run
	s.publish(ctx, *run)
	return out, err
}

func (s *ProjectionService) execute(ctx context.Context, run *projection.ProjectionRun, out *RunOutput) error {
	in, err := s.initialize(ctx, run)
	if err != nil {
		return err
	}
	if err := s.project(ctx, run, in, out); err != nil {
		s.discardUnrecorded(ctx, run)
		return err
	}
	return nil
}

func (s *ProjectionService) project(ctx context.Context, run *projection.ProjectionRun, in runInputs, out *RunOutput) error {
	acc := projection.NewAccumulator(in.cfg.ID, in.scenario.ID, in.investment)
	inServiceFrom := projection.TruncateToDay(in.cfg.InstallationDate)

	var (
		daily     []projection.ProjectionResult
		pending   []projection.ProjectionResult
		monthRows []projection.ProjectionResult
		yearRows  []projection.ProjectionResult
		soc       float64
	)
	flush := func(ctx context.Context) error {
		if len(pending) == 0 {
			return nil
		}
		from, last := pending[0].Date, pending[len(pending)-1].Date
		if err := s.results.ReplaceRange(ctx, in.cfg.ID, in.scenario.ID, from, last, pending); err != nil {
			return &projection.StepError{Date: last, Component: projection.ComponentPersistence, Err: err}
		}
		run.MarkRecorded(last, len(pending))
		metrics.AddProjectionDates(len(pending))
		daily = append(daily, pending...)
		pending = nil
		out.Rows = daily
		s.saveRun(ctx, run)
		return nil
	}
	// abort persists dates that already reached Recorded before the run fails.
	abort := func(err error) error {
		if ferr := flush(context.WithoutCancel(ctx)); ferr != nil {
			s.logger.Printf("projection flush on failure failed: run=%s err=%v", run.ID, ferr)
		}
		return err
	}

	for date := run.StartDate; !date.After(run.EndDate); date = date.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return abort(&projection.StepError{Date: date, Component: projection.ComponentOrchestrator, Err: err})
		}
		if err := run.Enter(date); err != nil {
			return abort(err)
		}

		sample, err := s.resolveSample(ctx, in, date)
		if err != nil {
			return abort(&projection.StepError{Date: date, Component: projection.ComponentEnvironment, Err: err})
		}

		if err := run.Transition(projection.RunSimulating); err != nil {
			return abort(err)
		}
		row, nextSOC, err := s.simulateDate(in, acc, run.StartDate, inServiceFrom, date, sample, soc)
		if err != nil {
			return abort(err)
		}
		soc = nextSOC

		pending = append(pending, row)
		monthRows = append(monthRows, row)
		yearRows = append(yearRows, row)
		if err := run.Transition(projection.RunRecorded); err != nil {
			return abort(err)
		}

		last := date.Equal(run.EndDate)
		next := date.AddDate(0, 0, 1)
		if len(pending) >= s.opts.ChunkDays || last {
			if err := flush(ctx); err != nil {
				return err
			}
		}
		if next.Month() != date.Month() || last {
			out.MonthlyRollups = append(out.MonthlyRollups, rollupOne(monthRows, projection.GranularityMonthly)...)
			monthRows = nil
		}
		if next.Year() != date.Year() || last {
			out.AnnualRollups = append(out.AnnualRollups, rollupOne(yearRows, projection.GranularityYearly)...)
			yearRows = nil
		}
	}

	rows, err := projection.Rollup(daily, run.Granularity)
	if err != nil {
		return err
	}
	out.Rows = rows
	summary := projection.Summarize(daily, in.investment, in.params.Economics)
	out.Summary = &summary
	return run.Complete(summary, s.clock.Now())
}

// discardUnrecorded removes stored rows after the run's last recorded date so
// a failed rerun never leaves rows of an earlier run behind its own.
func (s *ProjectionService) discardUnrecorded(ctx context.Context, run *projection.ProjectionRun) {
	from := run.StartDate
	if run.LastRecordedDate != nil {
		from = run.LastRecordedDate.AddDate(0, 0, 1)
	}
	if from.After(run.EndDate) {
		return
	}
	if err := s.results.ReplaceRange(context.WithoutCancel(ctx), run.SystemConfigID, run.ScenarioID, from, run.EndDate, nil); err != nil {
		s.logger.Printf("projection discard failed: run=%s from=%s err=%v", run.ID, from.Format("2006-01-02"), err)
	}
}

func (s *ProjectionService) initialize(ctx context.Context, run *projection.ProjectionRun) (runInputs, error) {
	var in runInputs
	fail := func(component string, err error) (runInputs, error) {
		return runInputs{}, &projection.StepError{Component: component, Err: err}
	}

	cfg, err := s.configs.GetConfiguration(ctx, run.SystemConfigID)
	if err != nil {
		return fail(projection.ComponentOrchestrator, err)
	}
	if cfg == nil {
		return fail(projection.ComponentOrchestrator, projection.ErrConfigurationNotFound)
	}
	scenario, err := s.scenarios.GetScenario(ctx, run.ScenarioID)
	if err != nil {
		return fail(projection.ComponentOrchestrator, err)
	}
	if scenario == nil {
		return fail(projection.ComponentOrchestrator, projection.ErrScenarioNotFound)
	}
	if scenario.SystemConfigID != "" && scenario.SystemConfigID != cfg.ID {
		return fail(projection.ComponentOrchestrator, projection.ErrScenarioMismatch)
	}
	if err := cfg.Validate(); err != nil {
		return fail(projection.ComponentScenario, err)
	}

	// Malformed overrides are rejected before any data is fetched.
	if _, err := projection.ParseOverrides(*scenario); err != nil {
		return fail(projection.ComponentScenario, err)
	}

	equipment, err := s.catalog.LoadEquipment(ctx, *cfg)
	if err != nil {
		return fail(projection.ComponentDegradation, err)
	}

	mctx, cancel := context.WithTimeout(ctx, s.opts.DateTimeout)
	market, err := s.market.SnapshotAt(mctx, run.StartDate)
	cancel()
	if err != nil {
		return fail(projection.ComponentMarket, s.timeoutErr(ctx, err))
	}
	params, err := projection.ResolveScenario(*cfg, *scenario, market)
	if err != nil {
		component := projection.ComponentScenario
		if errors.Is(err, projection.ErrNoMarketData) {
			component = projection.ComponentMarket
		}
		return runInputs{}, &projection.StepError{Date: run.StartDate, Component: component, Err: err}
	}

	investment, err := projection.TotalInvestmentUSD(*cfg, equipment, params.Economics.EquipmentCostMultiplier, params.Economics.InstallationCostUSD)
	if err != nil {
		return fail(projection.ComponentFinancial, err)
	}

	in.cfg = *cfg
	if in.cfg.InstallationDate.IsZero() {
		// Equipment without an installation date ages from the first projected day.
		in.cfg.InstallationDate = run.StartDate
	}
	in.scenario = *scenario
	in.equipment = equipment
	in.params = params
	in.investment = investment
	in.marketAt = run.StartDate
	if market != nil && !market.At.IsZero() {
		in.marketAt = market.At
	}
	return in, nil
}

func (s *ProjectionService) resolveSample(ctx context.Context, in runInputs, date time.Time) (projection.EnvironmentalSample, error) {
	dctx, cancel := context.WithTimeout(ctx, s.opts.DateTimeout)
	defer cancel()
	sample, err := s.env.Resolve(dctx, in.cfg.Location, date, in.params.Environmental)
	if err != nil {
		return projection.EnvironmentalSample{}, s.timeoutErr(ctx, err)
	}
	return sample, nil
}

// timeoutErr maps a per-date deadline to ErrDataTimeout while leaving run
// cancellation untouched.
func (s *ProjectionService) timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", projection.ErrDataTimeout, err)
	}
	return err
}

func (s *ProjectionService) simulateDate(
	in runInputs,
	acc *projection.Accumulator,
	runStart, inServiceFrom, date time.Time,
	sample projection.EnvironmentalSample,
	soc float64,
) (projection.ProjectionResult, float64, error) {
	stepErr := func(component string, err error) error {
		return &projection.StepError{Date: date, Component: component, Err: err}
	}

	fleet, err := projection.BuildFleet(in.cfg, in.equipment, in.params.Equipment, date)
	if err != nil {
		return projection.ProjectionResult{}, 0, stepErr(projection.ComponentDegradation, err)
	}

	energy, err := projection.SimulateDay(projection.EnergyFlowInput{
		Date:                        date,
		Latitude:                    in.cfg.Location.Latitude,
		Fleet:                       fleet,
		Sample:                      sample,
		PerformanceRatio:            in.params.Equipment.PerformanceRatio,
		TemperatureImpactMultiplier: in.params.Environmental.TemperatureImpactMultiplier,
		Mode:                        in.cfg.MiningMode,
		HasGrid:                     in.cfg.HasGrid(),
		MaxGridPowerKW:              in.params.Economics.MaxGridPowerKW,
		InitialSOCKWh:               soc,
	})
	if err != nil {
		return projection.ProjectionResult{}, 0, stepErr(projection.ComponentEnergyFlow, err)
	}

	years := date.Sub(runStart).Hours() / 24 / 365.25
	btc := in.params.Bitcoin
	reward := btc.BlockRewardBTC
	if !btc.FixedBlockReward {
		elapsedDays := date.Sub(projection.TruncateToDay(in.marketAt)).Hours() / 24
		height := btc.BlockHeight + int64(math.Max(0, elapsedDays)*projection.BlocksPerDay(btc.AvgBlockTimeSeconds))
		reward = projection.SubsidyAtHeight(height)
	}
	mining, err := projection.ComputeMining(projection.MiningInput{
		Miners:               fleet.Miners,
		EffectiveMiningHours: energy.EffectiveMiningHours,
		NetworkHashrateHS:    btc.NetworkHashrateAt(years),
		BlockTimeSeconds:     btc.AvgBlockTimeSeconds,
		BlockRewardBTC:       reward,
		FeesPerBlockBTC:      btc.FeesPerBlockBTC,
		PoolFeePercent:       btc.PoolFeePercent,
		PriceUSD:             btc.PriceAt(years),
	})
	if err != nil {
		return projection.ProjectionResult{}, 0, stepErr(projection.ComponentMining, err)
	}

	daysInService := 0
	if date.After(inServiceFrom) {
		daysInService = int(date.Sub(inServiceFrom).Hours() / 24)
	}
	costs := in.params.Economics.CostModelAt(in.investment, years, daysInService)
	row, err := acc.Accumulate(projection.DayStep{Date: date, Energy: energy, Mining: mining}, costs)
	if err != nil {
		return projection.ProjectionResult{}, 0, stepErr(projection.ComponentFinancial, err)
	}
	return row, energy.StorageSOCEndKWh, nil
}

func rollupOne(rows []projection.ProjectionResult, g projection.Granularity) []projection.ProjectionResult {
	out, err := projection.Rollup(rows, g)
	if err != nil {
		return nil
	}
	return out
}

func (s *ProjectionService) saveRun(ctx context.Context, run *projection.ProjectionRun) {
	if s.runs == nil {
		return
	}
	// Run bookkeeping must survive cancellation of the run itself.
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Printf("projection run save failed: run=%s err=%v", run.ID, err)
	}
}

func (s *ProjectionService) publish(ctx context.Context, run projection.ProjectionRun) {
	if s.publisher == nil {
		return
	}
	event := RunFinished{Run: run, OccurredAt: s.clock.Now()}
	if err := s.publisher.PublishRunFinished(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Printf("projection run publish failed: run=%s err=%v", run.ID, err)
	}
}

// GetRun returns a stored run record.
func (s *ProjectionService) GetRun(ctx context.Context, id string) (*projection.ProjectionRun, error) {
	if s.runs == nil {
		return nil, errors.New("projection service: run repository not configured")
	}
	return s.runs.GetRun(ctx, id)
}

// ListResults returns stored daily rows rolled up to g.
func (s *ProjectionService) ListResults(ctx context.Context, query ResultQuery, g projection.Granularity) ([]projection.ProjectionResult, error) {
	rows, err := s.results.ListResults(ctx, query)
	if err != nil {
		return nil, err
	}
	return projection.Rollup(rows, g)
}

// ResultReport is a stored projection rolled up for presentation.
type ResultReport struct {
	Rows    []projection.ProjectionResult
	Summary projection.FinancialSummary
}

// ErrNoResults is returned when a report is requested for a key with no stored rows.
var ErrNoResults = errors.New("projection service: no stored results")

// BuildReport loads stored daily rows for query and summarizes them against
// the configuration's investment and the scenario's resolved economics.
func (s *ProjectionService) BuildReport(ctx context.Context, query ResultQuery, g projection.Granularity) (*ResultReport, error) {
	g, err := projection.ParseGranularity(string(g))
	if err != nil {
		return nil, err
	}
	daily, err := s.results.ListResults(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, ErrNoResults
	}
	run, err := projection.NewProjectionRun("report", query.SystemConfigID, query.ScenarioID,
		daily[0].Date, daily[len(daily)-1].Date, projection.GranularityDaily, s.clock.Now())
	if err != nil {
		return nil, err
	}
	in, err := s.initialize(ctx, run)
	if err != nil {
		return nil, err
	}
	rows, err := projection.Rollup(daily, g)
	if err != nil {
		return nil, err
	}
	return &ResultReport{Rows: rows, Summary: projection.Summarize(daily, in.investment, in.params.Economics)}, nil
}

func formatOptionalDate(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.Format("2006-01-02")
}
