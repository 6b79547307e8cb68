package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"solarmine-planner/internal/audit"
	"solarmine-planner/internal/auth"
	"solarmine-planner/internal/config"
	"solarmine-planner/internal/observability/metrics"
	"solarmine-planner/internal/projection/adapters/mempool"
	"solarmine-planner/internal/projection/application"
	"solarmine-planner/internal/projection/infrastructure/memory"
	"solarmine-planner/internal/projection/infrastructure/postgres"
	"solarmine-planner/internal/projection/infrastructure/sqlite"
	projectionhttp "solarmine-planner/internal/projection/interfaces/http"
	"solarmine-planner/internal/projection/notify"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, db, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("storage error: %v", err)
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	resolver, err := application.NewEnvironmentalResolver(stores.hourly, stores.daily, stores.monthly)
	if err != nil {
		logger.Fatalf("environmental resolver error: %v", err)
	}

	publisher, err := buildPublisher(cfg.Notify, logger)
	if err != nil {
		logger.Fatalf("notify error: %v", err)
	}

	service, err := application.NewProjectionService(
		stores.configs,
		stores.scenarios,
		stores.catalog,
		resolver,
		stores.market,
		stores.results,
		stores.runs,
		publisher,
		systemClock{},
		logger,
		cfg.Engine.Options(),
	)
	if err != nil {
		logger.Fatalf("projection service error: %v", err)
	}

	batch, err := application.NewBatchRunner(service, cfg.Engine.Workers, logger)
	if err != nil {
		logger.Fatalf("batch runner error: %v", err)
	}
	if len(cfg.Schedule.Jobs) > 0 {
		scheduler := application.NewScheduler(batch, cfg.Schedule.Jobs, cfg.Schedule.DailyAt, logger)
		go scheduler.Start(ctx)
	}

	var collector projectionhttp.MarketCollector
	if cfg.Collector.Enabled {
		limiter := mempool.NewRateLimiter(cfg.Collector.RequestsPerMin, time.Minute)
		c, err := mempool.NewCollector(mempool.NewClient(cfg.Collector.BaseURL, limiter), stores.market, logger)
		if err != nil {
			logger.Fatalf("market collector error: %v", err)
		}
		c.Start(ctx, cfg.Collector.Interval)
		collector = c
	}

	handler, err := projectionhttp.NewHandler(service, batch, collector, logger)
	if err != nil {
		logger.Fatalf("projection handler error: %v", err)
	}
	if cfg.DatabaseURL != "" {
		handler.WithAuditLogger(audit.NewRepository(db))
	} else {
		handler.WithAuditLogger(audit.NewLogWriter(logger))
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	if !authMiddleware.Enabled() {
		logger.Printf("auth disabled: AUTH_JWT_SECRET is empty")
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: projectionhttp.NewRouter(handler, projectionhttp.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			Auth:           authMiddleware,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
}

type storeSet struct {
	configs   application.ConfigurationRepository
	scenarios application.ScenarioRepository
	catalog   application.EquipmentCatalog
	hourly    application.SampleLookup
	daily     application.SampleLookup
	monthly   application.SampleLookup
	market    marketStore
	results   application.ResultRepository
	runs      application.RunRepository
}

type marketStore interface {
	application.MarketSource
	mempool.SnapshotWriter
}

// openStores selects Postgres when DatabaseURL is set. Otherwise catalog and
// environmental data live in memory and results go to SQLite when a path is
// configured.
func openStores(ctx context.Context, cfg config.Config, logger *log.Logger) (storeSet, *sql.DB, error) {
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return storeSet{}, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return storeSet{}, nil, err
		}
		catalog := postgres.NewCatalogRepository(db)
		return storeSet{
			configs:   catalog,
			scenarios: catalog,
			catalog:   catalog,
			hourly:    postgres.NewHourlyForecasts(db),
			daily:     postgres.NewDailyForecasts(db),
			monthly:   postgres.NewMonthlyClimatology(db),
			market:    postgres.NewMarketRepository(db),
			results:   postgres.NewResultRepository(db),
			runs:      postgres.NewRunRepository(db),
		}, db, nil
	}

	logger.Printf("DATABASE_URL not set: catalog and environmental data are in memory")
	store := memory.NewStore()
	set := storeSet{
		configs:   store,
		scenarios: store,
		catalog:   store,
		hourly:    memory.NewHourlyForecasts(),
		daily:     memory.NewDailyForecasts(),
		monthly:   memory.NewMonthlyClimatology(),
		market:    memory.NewMarketStore(),
		results:   memory.NewResultStore(),
		runs:      memory.NewRunStore(),
	}
	if cfg.SQLitePath == "" {
		return set, nil, nil
	}
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return storeSet{}, nil, err
	}
	results, err := sqlite.New(db)
	if err != nil {
		db.Close()
		return storeSet{}, nil, err
	}
	if err := results.Init(ctx); err != nil {
		db.Close()
		return storeSet{}, nil, err
	}
	set.results = results
	set.runs = results
	return set, db, nil
}

func buildPublisher(cfg config.NotifyConfig, logger *log.Logger) (application.RunPublisher, error) {
	publishers := []application.RunPublisher{notify.NewLoggingPublisher(logger)}
	if cfg.WebhookURL != "" {
		tpl, err := notify.NewTemplate(cfg.Template)
		if err != nil {
			return nil, err
		}
		webhook, err := notify.NewWebhookPublisher(cfg.WebhookURL, tpl, cfg.FailedOnly)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, webhook)
	}
	return notify.NewMultiPublisher(publishers...), nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
