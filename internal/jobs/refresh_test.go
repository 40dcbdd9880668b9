package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblackmoose/marketmoose/internal/config"
	"github.com/theblackmoose/marketmoose/internal/modules/ledger"
	"github.com/theblackmoose/marketmoose/internal/modules/pricecache"
)

type fakeWarmer struct {
	mu      sync.Mutex
	symbols []string
	fail    map[string]bool
	slow    bool // Block each fetch until the job context is cancelled
}

func (f *fakeWarmer) GetSeries(ctx context.Context, symbol, exchange string, r pricecache.Range, force bool) (*pricecache.PriceSeries, error) {
	f.mu.Lock()
	f.symbols = append(f.symbols, symbol)
	failing := f.fail[symbol]
	f.mu.Unlock()

	if f.slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failing {
		return nil, errors.New("upstream down")
	}
	return &pricecache.PriceSeries{Symbol: symbol}, nil
}

type fakeStore struct {
	cleanups int
}

func (f *fakeStore) Get(key string, dest interface{}) error                    { return nil }
func (f *fakeStore) Set(key string, value interface{}, ttl time.Duration) error { return nil }
func (f *fakeStore) Delete(key string) error                                   { return nil }
func (f *fakeStore) AcquireLock(key string, ttl time.Duration) (bool, error)   { return true, nil }
func (f *fakeStore) ReleaseLock(key string) error                              { return nil }
func (f *fakeStore) Cleanup() error                                            { f.cleanups++; return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "transactions.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"date": "2024-01-01", "symbol": "BHP", "exchange": "ASX", "side": "BUY", "quantity": 10, "price": 100, "currency": "AUD"},
		{"date": "2024-01-02", "symbol": "AAPL", "exchange": "NASDAQ", "side": "BUY", "quantity": 2, "price": 150, "currency": "USD"}
	]`), 0644))

	return &config.Config{
		TransactionsFile: path,
		Benchmarks:       []string{"sp500"},
		RefreshSchedule:  "@every 4h",
	}
}

func TestRefreshCacheWarmsLedgerSymbolsAndBenchmarks(t *testing.T) {
	cfg := testConfig(t)
	warmer := &fakeWarmer{}
	store := &fakeStore{}
	sched := NewScheduler(cfg, ledger.NewLoader(zerolog.Nop()), warmer, store, zerolog.Nop())

	sched.RefreshCache()

	assert.ElementsMatch(t, []string{"BHP", "AAPL", "^GSPC"}, warmer.symbols)
	assert.Equal(t, 1, store.cleanups, "expired rows are swept after warming")
}

func TestRefreshCacheSkipsFailedSymbols(t *testing.T) {
	cfg := testConfig(t)
	warmer := &fakeWarmer{fail: map[string]bool{"BHP": true}}
	sched := NewScheduler(cfg, ledger.NewLoader(zerolog.Nop()), warmer, &fakeStore{}, zerolog.Nop())

	sched.RefreshCache()

	// The failing symbol never blocks the rest of the warm-up.
	assert.ElementsMatch(t, []string{"BHP", "AAPL", "^GSPC"}, warmer.symbols)
}

func TestRefreshCacheAbortsOnUnreadableLedger(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.TransactionsFile, []byte(`not json`), 0644))
	warmer := &fakeWarmer{}
	sched := NewScheduler(cfg, ledger.NewLoader(zerolog.Nop()), warmer, &fakeStore{}, zerolog.Nop())

	sched.RefreshCache()

	assert.Empty(t, warmer.symbols)
}

func TestStopInterruptsRunningRefresh(t *testing.T) {
	cfg := testConfig(t)
	warmer := &fakeWarmer{slow: true}
	sched := NewScheduler(cfg, ledger.NewLoader(zerolog.Nop()), warmer, &fakeStore{}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		sched.RefreshCache()
		close(done)
	}()

	// Give the job time to start blocking on the first fetch.
	time.Sleep(20 * time.Millisecond)
	sched.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not stop after cancellation")
	}
}

func TestSchedulerStartRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.RefreshSchedule = "not a cron spec"
	sched := NewScheduler(cfg, ledger.NewLoader(zerolog.Nop()), &fakeWarmer{}, &fakeStore{}, zerolog.Nop())

	assert.Error(t, sched.Start())
}
