// MarketMoose computes portfolio analytics from JSON transaction ledgers:
// holdings reconstruction, a fetch-through price cache, and time-weighted
// returns with benchmark comparison.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/theblackmoose/marketmoose/internal/cachestore"
	"github.com/theblackmoose/marketmoose/internal/clients/yahoo"
	"github.com/theblackmoose/marketmoose/internal/config"
	"github.com/theblackmoose/marketmoose/internal/database"
	"github.com/theblackmoose/marketmoose/internal/jobs"
	"github.com/theblackmoose/marketmoose/internal/modules/fx"
	"github.com/theblackmoose/marketmoose/internal/modules/holdings"
	"github.com/theblackmoose/marketmoose/internal/modules/ledger"
	"github.com/theblackmoose/marketmoose/internal/modules/portfolio"
	"github.com/theblackmoose/marketmoose/internal/modules/pricecache"
	"github.com/theblackmoose/marketmoose/internal/modules/returns"
	"github.com/theblackmoose/marketmoose/internal/retry"
	"github.com/theblackmoose/marketmoose/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("display_currency", cfg.DisplayCurrency).
		Msg("Starting MarketMoose")

	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath,
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	store, err := cachestore.NewSQLiteStore(cacheDB.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache store")
	}

	provider := pricecache.NewYahooProvider(yahoo.NewClient(cfg.Cache.FetchTimeout, log))
	prices := pricecache.NewService(provider, store, pricecache.Config{
		HistoricalTTL:  cfg.Cache.HistoricalTTL,
		QuoteTTL:       cfg.Cache.QuoteTTL,
		RetentionTTL:   cfg.Cache.RetentionTTL,
		LockTTL:        cfg.Cache.LockTTL,
		LockPoll:       cfg.Cache.LockPoll,
		DeadlineBudget: cfg.Cache.DeadlineBudget,
	}, retry.Policy{
		MaxAttempts:    cfg.Cache.MaxAttempts,
		Base:           cfg.Cache.BackoffBase,
		Cap:            cfg.Cache.BackoffCap,
		Jitter:         cfg.Cache.BackoffJitter,
		AttemptTimeout: cfg.Cache.FetchTimeout,
	}, log)

	loader := ledger.NewLoader(log)
	recon := holdings.NewReconstructor(log)
	rates := fx.NewService(prices, cfg.DisplayCurrency, log)
	engine := returns.NewEngine(returns.Config{
		CarryForwardLimit:  cfg.Returns.CarryForwardLimit,
		DividendsAsInflows: cfg.Returns.DividendsAsInflows,
	}, log)

	reports := portfolio.NewService(cfg, loader, recon, prices, rates, engine, log)

	scheduler := jobs.NewScheduler(cfg, loader, prices, store, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background jobs")
	}

	// Emit an initial report so a fresh deployment produces output immediately.
	go writeReport(reports, cfg, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	scheduler.Stop()
	log.Info().Msg("Shutdown complete")
}

// writeReport computes the current report and writes it next to the ledgers.
func writeReport(reports *portfolio.Service, cfg *config.Config, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	benchmark := "none"
	if len(cfg.Benchmarks) > 0 {
		benchmark = cfg.Benchmarks[0]
	}

	report, err := reports.Report(ctx, time.Now(), benchmark, false)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute portfolio report")
		return
	}

	path, err := portfolio.WriteJSON(cfg.DataDir, report)
	if err != nil {
		log.Error().Err(err).Msg("Failed to write portfolio report")
		return
	}
	log.Info().Str("path", path).Msg("Portfolio report written")
}
