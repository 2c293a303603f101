package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chuanlbx-ui/zhongdao-core/api/routes"
	"github.com/chuanlbx-ui/zhongdao-core/internal/aggregation"
	"github.com/chuanlbx-ui/zhongdao-core/internal/ledger"
	"github.com/chuanlbx-ui/zhongdao-core/internal/members"
	"github.com/chuanlbx-ui/zhongdao-core/internal/tiers"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/config"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/locks"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/logger"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/metrics"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/migrate"
	"github.com/chuanlbx-ui/zhongdao-core/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	catalog, err := tiers.Load(cfg.Catalog.Path)
	if err != nil {
		logg.Error(context.Background(), "failed to load tier catalog", err)
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	lockTable := locks.NewTable(cfg.Aggregation.LockWait)

	membersService, err := members.NewService(members.NewRepository(dbClient.DB()), cfg.Aggregation.MaxDepth)
	if err != nil {
		logg.Error(context.Background(), "failed to create members service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(
		ledger.NewRepository(dbClient.DB()),
		dbClient,
		lockTable,
		metrics.NewLedgerMetrics(registry),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	aggregationService, err := aggregation.NewService(
		aggregation.NewRepository(dbClient.DB()),
		dbClient,
		lockTable,
		catalog,
		ledgerService,
		metrics.NewAggregationMetrics(registry),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregation service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			catalog,
			membersService,
			aggregationService,
			ledgerService,
			registry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
