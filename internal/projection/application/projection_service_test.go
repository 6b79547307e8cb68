package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
	"solarmine-planner/internal/projection/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	store   *memory.Store
	monthly *memory.MonthlyClimatology
	daily   *memory.DailyForecasts
	hourly  *memory.HourlyForecasts
	market  *memory.MarketStore
	results *memory.ResultStore
	runs    *memory.RunStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(),
		monthly: memory.NewMonthlyClimatology(),
		daily:   memory.NewDailyForecasts(),
		hourly:  memory.NewHourlyForecasts(),
		market:  memory.NewMarketStore(),
		results: memory.NewResultStore(),
		runs:    memory.NewRunStore(),
	}
	f.store.PutMiner(projection.MinerSpec{ID: "s19", Model: "S19", HashrateTH: 100, PowerW: 3000})
	f.store.PutConfiguration(projection.SystemConfiguration{
		ID:             "cfg-1",
		Location:       projection.Location{ID: "loc-1", Latitude: 40},
		Miners:         []projection.LineItem{{EquipmentID: "s19", Quantity: 1}},
		Economics:      projection.EconomicParameters{ElectricityRateUSDPerKWh: 0.10},
		GridConnection: projection.GridTied,
		MiningMode:     projection.MiningHybrid,
	})
	f.store.PutScenario(projection.Scenario{
		ID:                "sc-1",
		SystemConfigID:    "cfg-1",
		BitcoinParameters: json.RawMessage(`{"price_usd":50000,"network_hashrate_eh":500,"block_reward_btc":6.25,"avg_block_time_seconds":600}`),
	})
	for m := time.January; m <= time.December; m++ {
		f.monthly.Put("loc-1", 2024, m, projection.EnvironmentalSample{SunHours: 4, AmbientTempC: 15, CloudCoverPercent: 30, Confidence: 0.5})
	}
	return f
}

func (f *fixture) service(t *testing.T, lookup application.SampleLookup, opts application.Options) *application.ProjectionService {
	t.Helper()
	if lookup == nil {
		lookup = f.monthly
	}
	resolver, err := application.NewEnvironmentalResolver(f.hourly, f.daily, lookup)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	svc, err := application.NewProjectionService(f.store, f.store, f.store, resolver, f.market, f.results, f.runs, nil,
		fixedClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, nil, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRunProducesExampleRowsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, application.Options{ChunkDays: 4})
	req := application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 3, 1), EndDate: day(2025, 3, 10)}

	out, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Run.State != projection.RunCompleted || out.Run.DaysRecorded != 10 {
		t.Fatalf("run state mismatch: %+v", out.Run)
	}
	if len(out.Rows) != 10 {
		t.Fatalf("rows mismatch: got=%d want=10", len(out.Rows))
	}
	for _, row := range out.Rows {
		if math.Abs(row.BTCMined-0.00018) > 1e-12 || math.Abs(row.NetProfitUSD-1.8) > 1e-6 {
			t.Fatalf("row mismatch on %s: btc=%v net=%v", row.PeriodKey, row.BTCMined, row.NetProfitUSD)
		}
	}
	if len(out.MonthlyRollups) != 1 || out.MonthlyRollups[0].Days != 10 {
		t.Fatalf("monthly rollup mismatch: %+v", out.MonthlyRollups)
	}
	if out.Summary == nil || math.Abs(out.Summary.TotalNetProfitUSD-18) > 1e-6 {
		t.Fatalf("summary mismatch: %+v", out.Summary)
	}

	first, err := f.results.ListResults(context.Background(), application.ResultQuery{SystemConfigID: "cfg-1", ScenarioID: "sc-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	req.RunID = "second"
	if _, err := svc.Run(context.Background(), req); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	second, err := f.results.ListResults(context.Background(), application.ResultQuery{SystemConfigID: "cfg-1", ScenarioID: "sc-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if f.results.Count() != 10 {
		t.Fatalf("rerun duplicated rows: got=%d want=10", f.results.Count())
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rerun rows differ")
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("rerun rows not byte-identical")
	}
}

func TestRunFailsOnMissingEnvironmentalData(t *testing.T) {
	f := newFixture(t)
	f.monthly = memory.NewMonthlyClimatology()
	f.monthly.Put("loc-1", 2025, time.January, projection.EnvironmentalSample{SunHours: 3, AmbientTempC: 5})
	svc := f.service(t, nil, application.Options{ChunkDays: 2})

	out, err := svc.Run(context.Background(), application.RunRequest{
		RunID: "run-env", SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 1, 30), EndDate: day(2025, 2, 3),
	})
	if !errors.Is(err, projection.ErrNoEnvironmentalData) {
		t.Fatalf("expected no environmental data, got %v", err)
	}
	var step *projection.StepError
	if !errors.As(err, &step) || !step.Date.Equal(day(2025, 2, 1)) || step.Component != projection.ComponentEnvironment {
		t.Fatalf("step error mismatch: %v", err)
	}
	if out.Run.State != projection.RunFailed || out.Run.ErrorKind != "NoEnvironmentalDataError" {
		t.Fatalf("run mismatch: %+v", out.Run)
	}
	if out.Run.FailedDate == nil || !out.Run.FailedDate.Equal(day(2025, 2, 1)) {
		t.Fatalf("failed date mismatch: %v", out.Run.FailedDate)
	}
	if f.results.Count() != 2 {
		t.Fatalf("recorded rows mismatch: got=%d want=2", f.results.Count())
	}
	stored, err := f.runs.GetRun(context.Background(), "run-env")
	if err != nil || stored == nil || stored.State != projection.RunFailed {
		t.Fatalf("stored run mismatch: %+v err=%v", stored, err)
	}
}

func TestRunRejectsInvalidScenarioBeforeComputation(t *testing.T) {
	f := newFixture(t)
	f.store.PutScenario(projection.Scenario{ID: "bad", SystemConfigID: "cfg-1", EquipmentParameters: json.RawMessage(`"fast"`)})
	svc := f.service(t, nil, application.Options{})

	out, err := svc.Run(context.Background(), application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "bad", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 5)})
	if !errors.Is(err, projection.ErrInvalidScenario) {
		t.Fatalf("expected invalid scenario, got %v", err)
	}
	if out.Run.FailedComponent != projection.ComponentScenario || out.Run.FailedDate != nil {
		t.Fatalf("run mismatch: %+v", out.Run)
	}
	if f.results.Count() != 0 {
		t.Fatalf("rows written for invalid scenario: %d", f.results.Count())
	}
}

func TestRunRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, application.Options{})
	_, err := svc.Run(context.Background(), application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 2, 1), EndDate: day(2025, 1, 1)})
	if !errors.Is(err, projection.ErrInvalidDateRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
	_, err = svc.Run(context.Background(), application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 1), Granularity: "hourly"})
	if !errors.Is(err, projection.ErrInvalidGranularity) {
		t.Fatalf("expected invalid granularity, got %v", err)
	}
	_, err = svc.Run(context.Background(), application.RunRequest{SystemConfigID: "missing", ScenarioID: "sc-1", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 1)})
	if !errors.Is(err, projection.ErrConfigurationNotFound) {
		t.Fatalf("expected config not found, got %v", err)
	}
}

type cancelOnDate struct {
	inner  application.SampleLookup
	date   time.Time
	cancel context.CancelFunc
}

func (c cancelOnDate) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	if date.Equal(c.date) {
		c.cancel()
	}
	return c.inner.Lookup(ctx, location, date)
}

func TestRunCancellationPersistsRecordedDates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := f.service(t, cancelOnDate{inner: f.monthly, date: day(2025, 1, 5), cancel: cancel}, application.Options{ChunkDays: 3})

	out, err := svc.Run(ctx, application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 31)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if out.Run.State != projection.RunFailed || out.Run.ErrorKind != "CancelledError" {
		t.Fatalf("run mismatch: %+v", out.Run)
	}
	// Jan 5 finishes its lookup before the cancellation is observed on Jan 6.
	if out.Run.FailedDate == nil || !out.Run.FailedDate.Equal(day(2025, 1, 6)) {
		t.Fatalf("failed date mismatch: %v", out.Run.FailedDate)
	}
	if out.Run.LastRecordedDate == nil || !out.Run.LastRecordedDate.Equal(day(2025, 1, 5)) {
		t.Fatalf("last recorded mismatch: %v", out.Run.LastRecordedDate)
	}
	if f.results.Count() != 5 || out.Run.DaysRecorded != 5 || len(out.Rows) != 5 {
		t.Fatalf("recorded mismatch: stored=%d run=%d rows=%d want=5", f.results.Count(), out.Run.DaysRecorded, len(out.Rows))
	}
}

type missingFrom struct {
	inner application.SampleLookup
	from  time.Time
}

func (m missingFrom) Lookup(ctx context.Context, location projection.Location, date time.Time) (*projection.EnvironmentalSample, error) {
	if !date.Before(m.from) {
		return nil, nil
	}
	return m.inner.Lookup(ctx, location, date)
}

func TestFailedRerunDropsRowsOfEarlierRun(t *testing.T) {
	f := newFixture(t)
	req := application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 3, 1), EndDate: day(2025, 3, 20)}
	if _, err := f.service(t, nil, application.Options{ChunkDays: 4}).Run(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if f.results.Count() != 20 {
		t.Fatalf("first run rows mismatch: got=%d want=20", f.results.Count())
	}

	f.store.PutScenario(projection.Scenario{
		ID:                "sc-1",
		SystemConfigID:    "cfg-1",
		BitcoinParameters: json.RawMessage(`{"price_usd":100000,"network_hashrate_eh":500,"block_reward_btc":6.25,"avg_block_time_seconds":600}`),
	})
	svc := f.service(t, missingFrom{inner: f.monthly, from: day(2025, 3, 11)}, application.Options{ChunkDays: 4})
	out, err := svc.Run(context.Background(), req)
	if !errors.Is(err, projection.ErrNoEnvironmentalData) {
		t.Fatalf("expected no environmental data, got %v", err)
	}
	if out.Run.DaysRecorded != 10 {
		t.Fatalf("days recorded mismatch: got=%d want=10", out.Run.DaysRecorded)
	}

	stored, err := f.results.ListResults(context.Background(), application.ResultQuery{SystemConfigID: "cfg-1", ScenarioID: "sc-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 10 {
		t.Fatalf("stored rows mismatch: got=%d want=10", len(stored))
	}
	var cumulative float64
	for _, row := range stored {
		if math.Abs(row.BTCPriceUSD-100000) > 1e-6 {
			t.Fatalf("stale row on %s: price=%v", row.PeriodKey, row.BTCPriceUSD)
		}
		cumulative += row.CashFlowUSD
		if math.Abs(row.CumulativeCashFlowUSD-cumulative) > 1e-6 {
			t.Fatalf("cumulative cash mismatch on %s: got=%v want=%v", row.PeriodKey, row.CumulativeCashFlowUSD, cumulative)
		}
	}
	if last := stored[len(stored)-1].Date; !last.Equal(day(2025, 3, 10)) {
		t.Fatalf("last stored date mismatch: got=%s want=2025-03-10", last.Format("2006-01-02"))
	}
}

func TestRunAgesFleetFromStartWithoutInstallationDate(t *testing.T) {
	f := newFixture(t)
	f.store.PutMiner(projection.MinerSpec{ID: "aging", Model: "Aging", HashrateTH: 100, PowerW: 3000,
		HashrateDegradationAnnual: 0.2, FailureRateAnnual: 0.1})
	f.store.PutConfiguration(projection.SystemConfiguration{
		ID:             "cfg-aging",
		Location:       projection.Location{ID: "loc-1", Latitude: 40},
		Miners:         []projection.LineItem{{EquipmentID: "aging", Quantity: 1}},
		Economics:      projection.EconomicParameters{ElectricityRateUSDPerKWh: 0.10},
		GridConnection: projection.GridTied,
		MiningMode:     projection.MiningHybrid,
	})
	f.store.PutScenario(projection.Scenario{
		ID:                "sc-aging",
		SystemConfigID:    "cfg-aging",
		BitcoinParameters: json.RawMessage(`{"price_usd":50000,"network_hashrate_eh":500,"block_reward_btc":6.25,"avg_block_time_seconds":600}`),
	})
	svc := f.service(t, nil, application.Options{})

	out, err := svc.Run(context.Background(), application.RunRequest{
		SystemConfigID: "cfg-aging", ScenarioID: "sc-aging", StartDate: day(2025, 1, 1), EndDate: day(2026, 1, 1),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	first, last := out.Rows[0], out.Rows[len(out.Rows)-1]
	if first.ActiveMiners != 1 || first.NominalHashrateTH != 100 {
		t.Fatalf("first day fleet mismatch: active=%v hashrate=%v", first.ActiveMiners, first.NominalHashrateTH)
	}
	age := 365 / 365.25
	if want := math.Pow(0.9, age); math.Abs(last.ActiveMiners-want) > 1e-3 {
		t.Fatalf("last day active mismatch: got=%v want=%v", last.ActiveMiners, want)
	}
	if last.NominalHashrateTH >= 75 {
		t.Fatalf("last day hashrate not degraded: got=%v", last.NominalHashrateTH)
	}
}

type blockingLookup struct{}

func (blockingLookup) Lookup(ctx context.Context, _ projection.Location, _ time.Time) (*projection.EnvironmentalSample, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunDateTimeout(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, blockingLookup{}, application.Options{DateTimeout: 10 * time.Millisecond})

	out, err := svc.Run(context.Background(), application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 2)})
	if !errors.Is(err, projection.ErrDataTimeout) {
		t.Fatalf("expected data timeout, got %v", err)
	}
	if out.Run.ErrorKind != "DataTimeoutError" || out.Run.FailedDate == nil {
		t.Fatalf("run mismatch: %+v", out.Run)
	}
}

func TestEnvironmentalResolverPriorityAndForcedSeason(t *testing.T) {
	f := newFixture(t)
	f.monthly.Put("loc-1", 2024, time.July, projection.EnvironmentalSample{SunHours: 8, AmbientTempC: 30})
	f.daily.Put(projection.EnvironmentalSample{LocationID: "loc-1", Date: day(2025, 1, 10), SunHours: 2.5, AmbientTempC: 3})
	resolver, err := application.NewEnvironmentalResolver(f.hourly, f.daily, f.monthly)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	loc := projection.Location{ID: "loc-1", Latitude: 40}
	neutral := projection.EnvironmentalAdjustments{WeatherImpactMultiplier: 1, TemperatureImpactMultiplier: 1}

	sample, err := resolver.Resolve(context.Background(), loc, day(2025, 1, 10), neutral)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sample.Granularity != projection.SampleDaily || sample.SunHours != 2.5 {
		t.Fatalf("daily forecast not preferred: %+v", sample)
	}

	sample, err = resolver.Resolve(context.Background(), loc, day(2025, 1, 11), neutral)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sample.Granularity != projection.SampleMonthly || sample.SunHours != 4 {
		t.Fatalf("monthly fallback mismatch: %+v", sample)
	}

	forced := neutral
	forced.ForcedSeason = projection.SeasonSummer
	sample, err = resolver.Resolve(context.Background(), loc, day(2025, 1, 10), forced)
	if err != nil {
		t.Fatalf("resolve forced: %v", err)
	}
	if sample.SunHours != 8 || !sample.Date.Equal(day(2025, 1, 10)) {
		t.Fatalf("forced season mismatch: %+v", sample)
	}

	_, err = resolver.Resolve(context.Background(), projection.Location{ID: "nowhere"}, day(2025, 1, 10), neutral)
	if !errors.Is(err, projection.ErrNoEnvironmentalData) {
		t.Fatalf("expected no data, got %v", err)
	}
}

func TestBatchRunnerIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, application.Options{})
	batch, err := application.NewBatchRunner(svc, 2, nil)
	if err != nil {
		t.Fatalf("new batch: %v", err)
	}
	requests := []application.RunRequest{
		{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 3)},
		{SystemConfigID: "cfg-1", ScenarioID: "missing", StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 3)},
		{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 2, 1), EndDate: day(2025, 2, 3)},
	}
	results := batch.RunAll(context.Background(), requests)
	if len(results) != 3 {
		t.Fatalf("results mismatch: got=%d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("independent runs failed: %v %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, projection.ErrScenarioNotFound) {
		t.Fatalf("expected scenario not found, got %v", results[1].Err)
	}
}

func TestSchedulerRequests(t *testing.T) {
	scheduler := application.NewScheduler(nil, []application.ScheduledJob{
		{SystemConfigID: "cfg-1", ScenarioID: "sc-1", HorizonDays: 30, Granularity: projection.GranularityMonthly},
		{SystemConfigID: "", ScenarioID: "sc-2"},
	}, "02:00", nil)
	reqs := scheduler.Requests(time.Date(2025, 4, 2, 2, 0, 30, 0, time.UTC))
	if len(reqs) != 1 {
		t.Fatalf("requests mismatch: got=%d want=1", len(reqs))
	}
	if !reqs[0].StartDate.Equal(day(2025, 4, 2)) || !reqs[0].EndDate.Equal(day(2025, 5, 1)) {
		t.Fatalf("horizon mismatch: %v - %v", reqs[0].StartDate, reqs[0].EndDate)
	}
}

func TestBuildReportSummarizesStoredRows(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, application.Options{})
	query := application.ResultQuery{SystemConfigID: "cfg-1", ScenarioID: "sc-1"}

	if _, err := svc.BuildReport(context.Background(), query, projection.GranularityMonthly); !errors.Is(err, application.ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}

	req := application.RunRequest{SystemConfigID: "cfg-1", ScenarioID: "sc-1", StartDate: day(2025, 3, 1), EndDate: day(2025, 4, 30)}
	if _, err := svc.Run(context.Background(), req); err != nil {
		t.Fatalf("run: %v", err)
	}
	report, err := svc.BuildReport(context.Background(), query, projection.GranularityMonthly)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Rows) != 2 || report.Rows[0].Days != 31 || report.Rows[1].Days != 30 {
		t.Fatalf("monthly rows mismatch: %+v", report.Rows)
	}
	if report.Summary.Days != 61 || math.Abs(report.Summary.TotalNetProfitUSD-61*1.8) > 1e-6 {
		t.Fatalf("summary mismatch: days=%d net=%v", report.Summary.Days, report.Summary.TotalNetProfitUSD)
	}
}
