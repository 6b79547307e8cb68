package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
	"solarmine-planner/internal/projection/infrastructure/memory"
	"solarmine-planner/internal/projection/infrastructure/sqlite"
	"solarmine-planner/internal/projection/interfaces/export"
	"solarmine-planner/internal/projection/notify"
)

const dateLayout = "2006-01-02"

type config struct {
	fixturePath string
	sqlitePath  string
	xlsxPath    string
	pdfPath     string
	granularity string
	chunkDays   int
}

type fixture struct {
	Run struct {
		ID          string `yaml:"id"`
		StartDate   string `yaml:"start_date"`
		EndDate     string `yaml:"end_date"`
		Granularity string `yaml:"granularity"`
	} `yaml:"run"`
	Catalog struct {
		Miners      []projection.MinerSpec      `yaml:"miners"`
		SolarPanels []projection.SolarPanelSpec `yaml:"solar_panels"`
		Storage     []projection.StorageSpec    `yaml:"storage"`
		Inverters   []projection.InverterSpec   `yaml:"inverters"`
	} `yaml:"catalog"`
	Configuration projection.SystemConfiguration   `yaml:"configuration"`
	Scenario      fixtureScenario                  `yaml:"scenario"`
	Climatology   []fixtureMonth                   `yaml:"climatology"`
	Daily         []projection.EnvironmentalSample `yaml:"daily"`
	Market        []projection.MarketSnapshot      `yaml:"market"`
}

type fixtureScenario struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Bitcoin       map[string]any `yaml:"bitcoin_parameters"`
	Economic      map[string]any `yaml:"economic_parameters"`
	Environmental map[string]any `yaml:"environmental_parameters"`
	Equipment     map[string]any `yaml:"equipment_parameters"`
}

type fixtureMonth struct {
	Year              int     `yaml:"year"`
	Month             int     `yaml:"month"`
	SunHours          float64 `yaml:"sun_hours"`
	AmbientTempC      float64 `yaml:"ambient_temp_c"`
	CloudCoverPercent float64 `yaml:"cloud_cover_percent"`
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	fx, err := loadFixture(cfg.fixturePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load fixture:", err)
		os.Exit(2)
	}
	if cfg.granularity != "" {
		fx.Run.Granularity = cfg.granularity
	}

	db, err := sql.Open("sqlite", cfg.sqlitePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sqlite open:", err)
		os.Exit(2)
	}
	defer db.Close()

	ctx := context.Background()
	store, err := sqlite.New(db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sqlite store:", err)
		os.Exit(2)
	}
	if err := store.Init(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sqlite schema:", err)
		os.Exit(2)
	}

	out, err := run(ctx, fx, store, cfg.chunkDays, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "projection:", err)
		os.Exit(1)
	}
	printSummary(out)

	if cfg.xlsxPath != "" {
		if err := writeExport(export.FormatXLSX, cfg.xlsxPath, fx, out); err != nil {
			fmt.Fprintln(os.Stderr, "xlsx export:", err)
			os.Exit(1)
		}
	}
	if cfg.pdfPath != "" {
		if err := writeExport(export.FormatPDF, cfg.pdfPath, fx, out); err != nil {
			fmt.Fprintln(os.Stderr, "pdf export:", err)
			os.Exit(1)
		}
	}
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.fixturePath, "fixture", "", "YAML fixture path")
	flag.StringVar(&cfg.sqlitePath, "sqlite", getenvDefault("SQLITE_PATH", "projection.db"), "SQLite result database")
	flag.StringVar(&cfg.xlsxPath, "xlsx", "", "write an XLSX report (optional)")
	flag.StringVar(&cfg.pdfPath, "pdf", "", "write a PDF report (optional)")
	flag.StringVar(&cfg.granularity, "granularity", "", "override output granularity")
	flag.IntVar(&cfg.chunkDays, "chunk-days", 31, "dates per persisted chunk")
	flag.Parse()

	if cfg.fixturePath == "" {
		return cfg, errors.New("missing --fixture")
	}
	if cfg.sqlitePath == "" {
		return cfg, errors.New("missing --sqlite or SQLITE_PATH")
	}
	return cfg, nil
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, err
	}
	if fx.Configuration.ID == "" || fx.Scenario.ID == "" {
		return nil, errors.New("configuration.id and scenario.id are required")
	}
	return &fx, nil
}

func (s fixtureScenario) toDomain(configID string) (projection.Scenario, error) {
	sc := projection.Scenario{ID: s.ID, SystemConfigID: configID, Name: s.Name}
	groups := []struct {
		dst *json.RawMessage
		src map[string]any
	}{
		{&sc.BitcoinParameters, s.Bitcoin},
		{&sc.EconomicParameters, s.Economic},
		{&sc.EnvironmentalParameters, s.Environmental},
		{&sc.EquipmentParameters, s.Equipment},
	}
	for _, g := range groups {
		if g.src == nil {
			continue
		}
		raw, err := json.Marshal(g.src)
		if err != nil {
			return projection.Scenario{}, err
		}
		*g.dst = raw
	}
	return sc, nil
}

func run(ctx context.Context, fx *fixture, results *sqlite.Store, chunkDays int, logger *log.Logger) (*application.RunOutput, error) {
	catalog := memory.NewStore()
	for _, m := range fx.Catalog.Miners {
		catalog.PutMiner(m)
	}
	for _, p := range fx.Catalog.SolarPanels {
		catalog.PutSolarPanel(p)
	}
	for _, s := range fx.Catalog.Storage {
		catalog.PutStorage(s)
	}
	for _, inv := range fx.Catalog.Inverters {
		catalog.PutInverter(inv)
	}
	catalog.PutConfiguration(fx.Configuration)
	sc, err := fx.Scenario.toDomain(fx.Configuration.ID)
	if err != nil {
		return nil, err
	}
	catalog.PutScenario(sc)

	locationID := fx.Configuration.Location.ID
	monthly := memory.NewMonthlyClimatology()
	for _, m := range fx.Climatology {
		monthly.Put(locationID, m.Year, time.Month(m.Month), projection.EnvironmentalSample{
			SunHours:          m.SunHours,
			AmbientTempC:      m.AmbientTempC,
			CloudCoverPercent: m.CloudCoverPercent,
		})
	}
	daily := memory.NewDailyForecasts()
	for _, d := range fx.Daily {
		if d.LocationID == "" {
			d.LocationID = locationID
		}
		daily.Put(d)
	}
	market := memory.NewMarketStore()
	for _, snap := range fx.Market {
		if err := market.SaveSnapshot(ctx, snap); err != nil {
			return nil, err
		}
	}

	resolver, err := application.NewEnvironmentalResolver(memory.NewHourlyForecasts(), daily, monthly)
	if err != nil {
		return nil, err
	}
	svc, err := application.NewProjectionService(catalog, catalog, catalog, resolver, market, results, results,
		notify.NewLoggingPublisher(logger), application.SystemClock{}, logger, application.Options{ChunkDays: chunkDays})
	if err != nil {
		return nil, err
	}

	start, err := time.Parse(dateLayout, fx.Run.StartDate)
	if err != nil {
		return nil, fmt.Errorf("run.start_date: %w", err)
	}
	end, err := time.Parse(dateLayout, fx.Run.EndDate)
	if err != nil {
		return nil, fmt.Errorf("run.end_date: %w", err)
	}
	return svc.Run(ctx, application.RunRequest{
		RunID:          fx.Run.ID,
		SystemConfigID: fx.Configuration.ID,
		ScenarioID:     sc.ID,
		StartDate:      start,
		EndDate:        end,
		Granularity:    projection.Granularity(fx.Run.Granularity),
	})
}

func printSummary(out *application.RunOutput) {
	fmt.Printf("run %s %s days=%d\n", out.Run.ID, out.Run.State, out.Run.DaysRecorded)
	if out.Summary == nil {
		return
	}
	s := out.Summary
	fmt.Printf("btc mined:      %s\n", export.FormatBTC(s.TotalBTCMined))
	fmt.Printf("net profit usd: %.2f\n", s.TotalNetProfitUSD)
	fmt.Printf("investment usd: %.2f\n", s.TotalInvestmentUSD)
	fmt.Printf("roi percent:    %.2f\n", s.ROIPercent)
	fmt.Printf("npv usd:        %.2f\n", s.NPVUSD)
	if s.PaybackMonths != nil {
		fmt.Printf("payback months: %.1f\n", *s.PaybackMonths)
	}
}

func writeExport(format, path string, fx *fixture, out *application.RunOutput) error {
	if out.Summary == nil {
		return errors.New("run has no summary")
	}
	g, err := projection.ParseGranularity(fx.Run.Granularity)
	if err != nil {
		return err
	}
	data, err := export.Build(format, export.Report{
		SystemConfigID: fx.Configuration.ID,
		ScenarioID:     fx.Scenario.ID,
		Granularity:    g,
		Rows:           out.Rows,
		Summary:        *out.Summary,
		GeneratedAt:    time.Now(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
