package pricecache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/theblackmoose/marketmoose/internal/cachestore"
	"github.com/theblackmoose/marketmoose/internal/retry"
)

// Config holds the cache's freshness and coordination policy.
type Config struct {
	HistoricalTTL  time.Duration // Freshness window for daily bar series
	QuoteTTL       time.Duration // Freshness window for live quotes
	RetentionTTL   time.Duration // How long entries stay resident for stale fallback
	LockTTL        time.Duration // Cross-process fetch lock expiry
	LockPoll       time.Duration // Poll interval while another worker holds the lock
	DeadlineBudget time.Duration // Upper bound on a whole get call; 0 disables
}

// Service is the fetch-through price cache. It is constructed with an
// injected provider, store, and retry policy; there is no package-level state.
type Service struct {
	provider Provider
	store    cachestore.Store
	cfg      Config
	retry    retry.Policy
	group    singleflight.Group
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a new price cache service
func NewService(provider Provider, store cachestore.Store, cfg Config, policy retry.Policy, log zerolog.Logger) *Service {
	if cfg.LockPoll <= 0 {
		cfg.LockPoll = 100 * time.Millisecond
	}
	return &Service{
		provider: provider,
		store:    store,
		cfg:      cfg,
		retry:    policy,
		now:      time.Now,
		log:      log.With().Str("service", "price_cache").Logger(),
	}
}

// GetSeries returns the price series for a key. A fresh cached entry is served
// with no upstream call; otherwise a coordinated fetch runs, degrading to the
// previous stale entry (Stale=true) or *DataUnavailableError per policy.
// forceRefresh bypasses the freshness check but not coordination or retry.
func (s *Service) GetSeries(ctx context.Context, symbol, exchange string, r Range, forceRefresh bool) (*PriceSeries, error) {
	key := seriesKey(symbol, exchange, r)

	if !forceRefresh {
		if series, ok := s.loadSeries(key); ok && s.fresh(series.FetchedAt, s.cfg.HistoricalTTL) {
			return series, nil
		}
	}

	if s.cfg.DeadlineBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DeadlineBudget)
		defer cancel()
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.refreshSeries(ctx, key, symbol, exchange, r, forceRefresh)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PriceSeries), nil
}

// GetQuote is GetSeries for a single live quote, under the quote TTL.
func (s *Service) GetQuote(ctx context.Context, symbol, exchange string, forceRefresh bool) (*Quote, error) {
	key := quoteKey(symbol, exchange)

	if !forceRefresh {
		if quote, ok := s.loadQuote(key); ok && s.fresh(quote.FetchedAt, s.cfg.QuoteTTL) {
			return quote, nil
		}
	}

	if s.cfg.DeadlineBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DeadlineBudget)
		defer cancel()
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.refreshQuote(ctx, key, symbol, exchange, forceRefresh)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}

// refreshSeries runs the FETCHING leg for a series key: win or wait out the
// cross-process lock, fetch under the retry policy, publish wholesale.
func (s *Service) refreshSeries(ctx context.Context, key, symbol, exchange string, r Range, force bool) (*PriceSeries, error) {
	started := s.now()

	locked, err := s.acquireOrAdopt(ctx, key, func() bool {
		series, ok := s.loadSeries(key)
		if !ok {
			return false
		}
		return (!force && s.fresh(series.FetchedAt, s.cfg.HistoricalTTL)) || series.FetchedAt.After(started)
	})
	if err != nil {
		// Either the peer published while we waited, or the budget ran out.
		if errors.Is(err, errPeerPublished) {
			if series, ok := s.loadSeries(key); ok {
				return series, nil
			}
			err = errors.New("peer entry vanished before read")
		}
		return s.degradeSeries(key, symbol, exchange, err)
	}
	if locked {
		defer s.releaseLock(key)
	}

	var points []PricePoint
	fetchErr := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		points, err = s.provider.FetchPrices(ctx, symbol, exchange, r)
		return err
	})
	if fetchErr != nil {
		return s.degradeSeries(key, symbol, exchange, fetchErr)
	}

	series := &PriceSeries{
		Symbol:    symbol,
		Exchange:  exchange,
		Points:    points,
		FetchedAt: s.now(),
		Source:    SourceHistorical,
	}
	if err := s.store.Set(key, series, s.cfg.RetentionTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to write cache entry")
	}

	s.log.Debug().Str("key", key).Int("points", len(series.Points)).Msg("Refreshed price series")
	return series, nil
}

func (s *Service) refreshQuote(ctx context.Context, key, symbol, exchange string, force bool) (*Quote, error) {
	started := s.now()

	locked, err := s.acquireOrAdopt(ctx, key, func() bool {
		quote, ok := s.loadQuote(key)
		if !ok {
			return false
		}
		return (!force && s.fresh(quote.FetchedAt, s.cfg.QuoteTTL)) || quote.FetchedAt.After(started)
	})
	if err != nil {
		if errors.Is(err, errPeerPublished) {
			if quote, ok := s.loadQuote(key); ok {
				return quote, nil
			}
			err = errors.New("peer entry vanished before read")
		}
		return s.degradeQuote(key, symbol, exchange, err)
	}
	if locked {
		defer s.releaseLock(key)
	}

	var quote Quote
	fetchErr := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		quote, err = s.provider.FetchQuote(ctx, symbol, exchange)
		return err
	})
	if fetchErr != nil {
		return s.degradeQuote(key, symbol, exchange, fetchErr)
	}

	quote.FetchedAt = s.now()
	if err := s.store.Set(key, &quote, s.cfg.RetentionTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to write cache entry")
	}

	s.log.Debug().Str("key", key).Float64("price", quote.Price).Msg("Refreshed quote")
	return &quote, nil
}

// errPeerPublished signals that another worker refreshed the entry while we
// were waiting on its lock; the caller re-reads the store.
var errPeerPublished = errors.New("pricecache: entry refreshed by peer")

// acquireOrAdopt takes the cross-process fetch lock for a key, or waits for
// the holder to publish. published() reports whether the current cache entry
// already satisfies the caller. Returns whether we hold the lock.
func (s *Service) acquireOrAdopt(ctx context.Context, key string, published func() bool) (bool, error) {
	for {
		if published() {
			return false, errPeerPublished
		}

		acquired, err := s.store.AcquireLock(key, s.cfg.LockTTL)
		if err != nil {
			// A broken store must not take fetching down with it; proceed
			// uncoordinated rather than failing the caller.
			s.log.Warn().Err(err).Str("key", key).Msg("Lock acquire failed, fetching without cross-process coordination")
			return false, nil
		}
		if acquired {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.cfg.LockPoll):
		}
	}
}

func (s *Service) releaseLock(key string) {
	if err := s.store.ReleaseLock(key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to release fetch lock")
	}
}

// degradeSeries applies the degradation policy: stale entry if one exists,
// *DataUnavailableError otherwise.
func (s *Service) degradeSeries(key, symbol, exchange string, cause error) (*PriceSeries, error) {
	if series, ok := s.loadSeries(key); ok {
		series.Stale = true
		s.log.Warn().Err(cause).Str("key", key).Time("fetched_at", series.FetchedAt).
			Msg("Upstream exhausted, serving stale price series")
		return series, nil
	}
	return nil, &DataUnavailableError{Symbol: symbol, Exchange: exchange, Err: cause}
}

func (s *Service) degradeQuote(key, symbol, exchange string, cause error) (*Quote, error) {
	if quote, ok := s.loadQuote(key); ok {
		quote.Stale = true
		s.log.Warn().Err(cause).Str("key", key).Time("fetched_at", quote.FetchedAt).
			Msg("Upstream exhausted, serving stale quote")
		return quote, nil
	}
	return nil, &DataUnavailableError{Symbol: symbol, Exchange: exchange, Err: cause}
}

// loadSeries reads a cached series. Any decode failure is a miss, never fatal.
func (s *Service) loadSeries(key string) (*PriceSeries, bool) {
	var series PriceSeries
	if err := s.store.Get(key, &series); err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache entry unreadable, treating as miss")
		}
		return nil, false
	}
	return &series, true
}

func (s *Service) loadQuote(key string) (*Quote, bool) {
	var quote Quote
	if err := s.store.Get(key, &quote); err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache entry unreadable, treating as miss")
		}
		return nil, false
	}
	return &quote, true
}

func (s *Service) fresh(fetchedAt time.Time, ttl time.Duration) bool {
	return s.now().Sub(fetchedAt) < ttl
}
