package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/aggregation"
	"github.com/aevon-lab/sensor-rollup/internal/analysis"
	corecfg "github.com/aevon-lab/sensor-rollup/internal/core/config"
	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/storage/memory"
	"github.com/aevon-lab/sensor-rollup/internal/core/storage/postgres"
	"github.com/aevon-lab/sensor-rollup/internal/ingestion"
	"github.com/aevon-lab/sensor-rollup/internal/migrations"
	"github.com/aevon-lab/sensor-rollup/internal/server"
)

// stores bundles the three storage roles plus what /health pings.
type stores struct {
	readings   storage.ReadingStore
	aggregates storage.AggregateStore
	quality    storage.QualityLog
	health     server.HealthChecker
	close      func() error
}

func main() {
	configPath := flag.String("config", "rollup.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"database", cfg.Database.Type,
		"channels", len(cfg.ChannelDefinitions),
		"interval", cfg.Aggregation.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Storage
	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer st.close()

	// 3. Initialize engine components
	merger := aggregation.NewMerger(st.aggregates, aggregation.Options{
		WorkerCount:      cfg.Aggregation.WorkerCount,
		DefaultRangeDays: cfg.Aggregation.DefaultRangeDays,
	})

	analysisSvc := analysis.NewService(st.readings, st.quality, analysis.Options{
		Threshold:                cfg.Anomaly.Threshold,
		LookbackDays:             cfg.Anomaly.LookbackDays,
		TrendDays:                cfg.Trend.Days,
		DetectAnomaliesInQuality: cfg.Quality.DetectAnomalies,
	})

	scheduler := aggregation.NewScheduler(
		cfg.Aggregation.IntervalDuration(),
		merger,
		analysisSvc,
		analysisSvc,
		cfg.ChannelDefinitions,
	)

	// 4. Initialize Ingestion
	ingestionSvc := ingestion.NewService(st.readings, cfg.Server.MaxBodySizeMB)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), st.health, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	merger.RegisterRoutes(srv.Engine)
	analysisSvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	if cfg.Aggregation.Enabled && len(cfg.ChannelDefinitions) > 0 {
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Aggregation scheduler disabled",
			"enabled", cfg.Aggregation.Enabled,
			"channels", len(cfg.ChannelDefinitions))
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func openStores(ctx context.Context, cfg corecfg.DatabaseConfig) (*stores, error) {
	if cfg.Type == "memory" {
		slog.Warn("Using in-memory storage; data is lost on exit")
		mem := memory.NewStore()
		return &stores{
			readings:   mem,
			aggregates: mem,
			quality:    mem,
			close:      func() error { return nil },
		}, nil
	}

	dbAdapter, err := postgres.NewAdapter(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, err
	}

	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.AutoMigrate); err != nil {
		dbAdapter.Close()
		return nil, fmt.Errorf("database migrations: %w", err)
	}

	prepareCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbAdapter.Prepare(prepareCtx); err != nil {
		dbAdapter.Close()
		return nil, err
	}

	return &stores{
		readings:   dbAdapter,
		aggregates: postgres.NewAggregateAdapter(dbAdapter.DB()),
		quality:    postgres.NewQualityAdapter(dbAdapter.DB()),
		health:     dbAdapter.DB(),
		close:      dbAdapter.Close,
	}, nil
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
