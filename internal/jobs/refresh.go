// Package jobs runs the background maintenance schedule: price cache warming
// and expired entry cleanup.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/theblackmoose/marketmoose/internal/cachestore"
	"github.com/theblackmoose/marketmoose/internal/config"
	"github.com/theblackmoose/marketmoose/internal/modules/ledger"
	"github.com/theblackmoose/marketmoose/internal/modules/pricecache"
)

// SeriesWarmer is the slice of the price cache the refresh job needs.
type SeriesWarmer interface {
	GetSeries(ctx context.Context, symbol, exchange string, r pricecache.Range, forceRefresh bool) (*pricecache.PriceSeries, error)
}

// Scheduler owns the cron runner and the cache refresh job.
type Scheduler struct {
	cfg    *config.Config
	loader *ledger.Loader
	prices SeriesWarmer
	store  cachestore.Store
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// NewScheduler creates a new background job scheduler
func NewScheduler(cfg *config.Config, loader *ledger.Loader, prices SeriesWarmer, store cachestore.Store, log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:    cfg,
		loader: loader,
		prices: prices,
		store:  store,
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("service", "jobs").Logger(),
	}
}

// Start registers the refresh job on the configured schedule and begins
// running it. The first run happens immediately so a cold cache warms at boot.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.RefreshSchedule, s.RefreshCache); err != nil {
		return err
	}
	s.cron.Start()
	go s.RefreshCache()

	s.log.Info().Str("schedule", s.cfg.RefreshSchedule).Msg("Background refresh scheduled")
	return nil
}

// Stop cancels any in-flight refresh, halts the cron runner, and waits for
// running jobs to wind down.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RefreshCache re-fetches the price series of every ledger symbol and every
// configured benchmark, then sweeps expired cache rows. Per-symbol failures
// are logged and skipped so one dead ticker never blocks the rest.
func (s *Scheduler) RefreshCache() {
	started := time.Now()
	ctx := s.ctx

	txs, err := s.loader.Load(s.cfg.TransactionsFile)
	if err != nil {
		s.log.Error().Err(err).Msg("Cache refresh aborted, ledger unreadable")
		return
	}

	rng := pricecache.Range{End: started}
	if len(txs) > 0 {
		rng.Start = txs[0].Date
	}

	warmed, failed := 0, 0
	for _, pair := range ledger.Symbols(txs) {
		if ctx.Err() != nil {
			s.log.Info().Msg("Cache refresh cancelled")
			return
		}
		if _, err := s.prices.GetSeries(ctx, pair[0], pair[1], rng, false); err != nil {
			s.log.Warn().Err(err).Str("symbol", pair[0]).Msg("Failed to warm price series")
			failed++
			continue
		}
		warmed++
	}

	for _, key := range s.cfg.Benchmarks {
		if ctx.Err() != nil {
			s.log.Info().Msg("Cache refresh cancelled")
			return
		}
		info, ok := config.Benchmarks[key]
		if !ok {
			continue
		}
		if _, err := s.prices.GetSeries(ctx, info.Ticker, "", rng, false); err != nil {
			s.log.Warn().Err(err).Str("benchmark", key).Msg("Failed to warm benchmark series")
			failed++
			continue
		}
		warmed++
	}

	if sweeper, ok := s.store.(interface{ Cleanup() error }); ok {
		if err := sweeper.Cleanup(); err != nil {
			s.log.Warn().Err(err).Msg("Cache cleanup failed")
		}
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("failed", failed).
		Dur("took", time.Since(started)).
		Msg("Cache refresh complete")
}
