package jobs

import (
	"context"
	"fmt"

	"github.com/kyotei-project/backend/internal/archive"
	"github.com/kyotei-project/backend/internal/betting"
	"github.com/kyotei-project/backend/internal/clock"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/db"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/metrics"
	"github.com/kyotei-project/backend/internal/notify"
	"github.com/kyotei-project/backend/internal/scheduler"
	"github.com/kyotei-project/backend/internal/scraper"
	"github.com/kyotei-project/backend/internal/services"
	"github.com/kyotei-project/backend/internal/warehouse"
	"github.com/redis/go-redis/v9"
)

// Runtime is the fully wired pipeline shared by the worker and the one-shot CLI.
type Runtime struct {
	Config    *config.Config
	Redis     *redis.Client
	Warehouse *warehouse.Gateway
	Scheduler *scheduler.Scheduler
	Engine    *betting.Engine
	Health    *services.HealthService
	Metrics   *metrics.PipelineMetrics

	closers []func()
}

// Bootstrap connects the stores, builds every service and registers the jobs.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Metrics: metrics.Default}
	clk := clock.System{}

	// 1. Stores
	pg, err := db.ConnectPostgres(cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := pg.DB(); err == nil {
		rt.closers = append(rt.closers, func() { _ = sqlDB.Close() })
	}
	if err := db.Migrate(pg); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rdb, closeRedis, err := db.ConnectRedisOrLocal(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeRedis)
	rt.Redis = rdb
	rt.Warehouse = warehouse.New(pg)

	// 2. Upstreams
	var mirror archive.Mirror
	s3, err := archive.NewS3Mirror(ctx, cfg)
	switch {
	case err != nil:
		logger.Warn("S3 mirror disabled: %v", err)
	case s3 != nil:
		mirror = s3
	}
	downloader := archive.NewDownloader(cfg, mirror)
	client := scraper.NewClient(cfg.Scraper, scraper.WithMetrics(rt.Metrics))

	// 3. Notifications
	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.Warn("Telegram notifier disabled: %v", err)
		} else {
			notifier = tg
			rt.closers = append(rt.closers, tg.Close)
		}
	}

	// 4. Services
	workers := cfg.Import.ParallelWorkers
	importer := services.NewImportService(downloader, rt.Warehouse, clk, cfg.Import, rt.Metrics)
	schedule := services.NewScheduleService(client, rt.Warehouse, rdb, clk, workers)
	programs := services.NewProgramService(client, rt.Warehouse, rt.Metrics, workers)
	odds := services.NewOddsService(client, rt.Warehouse, rdb, clk, rt.Metrics, cfg.Scheduler.HighFreqThreshold, workers)
	results := services.NewResultService(client, rt.Warehouse, clk, rt.Metrics, workers)
	rt.Health = services.NewHealthService(rt.Warehouse, rdb)

	// 5. Betting engine
	registry, err := betting.DefaultRegistry()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Engine = betting.NewEngine(rt.Warehouse, registry, odds, clk, notifier, rt.Metrics, betting.Config{
		DecisionWindow: cfg.Scheduler.DecisionWindow,
		ExpiryGrace:    cfg.Scheduler.ExpiryGrace,
		OddsMaxAge:     cfg.Scheduler.OddsMaxAge,
	})

	// 6. Job table
	rt.Scheduler = scheduler.New(clk, rt.Warehouse, rt.Metrics, cfg.Scheduler.JobTimeout)
	err = Register(rt.Scheduler, Deps{
		Importer: importer,
		Schedule: schedule,
		Programs: programs,
		Odds:     odds,
		Results:  results,
		Engine:   rt.Engine,
		Health:   rt.Health,
		Clock:    clk,
		Config:   cfg.Scheduler,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases connections in reverse order of acquisition.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
