package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/theblackmoose/marketmoose/internal/config"
	"github.com/theblackmoose/marketmoose/internal/modules/holdings"
	"github.com/theblackmoose/marketmoose/internal/modules/ledger"
	"github.com/theblackmoose/marketmoose/internal/modules/pricecache"
	"github.com/theblackmoose/marketmoose/internal/modules/returns"
)

// PriceSource is the slice of the price cache the report pipeline needs.
type PriceSource interface {
	GetSeries(ctx context.Context, symbol, exchange string, r pricecache.Range, forceRefresh bool) (*pricecache.PriceSeries, error)
	GetQuote(ctx context.Context, symbol, exchange string, forceRefresh bool) (*pricecache.Quote, error)
}

// RateSource resolves conversion rates into the display currency.
type RateSource interface {
	Rates(ctx context.Context, currencies []string) map[string]float64
	Display() string
}

// Service runs the full report pipeline: ledger, holdings, prices, FX,
// returns. It owns no state beyond its collaborators.
type Service struct {
	cfg    *config.Config
	loader *ledger.Loader
	recon  *holdings.Reconstructor
	prices PriceSource
	fx     RateSource
	engine *returns.Engine
	log    zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(
	cfg *config.Config,
	loader *ledger.Loader,
	recon *holdings.Reconstructor,
	prices PriceSource,
	fx RateSource,
	engine *returns.Engine,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:    cfg,
		loader: loader,
		recon:  recon,
		prices: prices,
		fx:     fx,
		engine: engine,
		log:    log.With().Str("service", "portfolio").Logger(),
	}
}

// Report computes the full portfolio report as of the given date. benchmark
// selects a configured index key, or "none" to skip the comparison.
// forceRefresh is passed through to every price fetch.
func (s *Service) Report(ctx context.Context, asOf time.Time, benchmark string, forceRefresh bool) (*Report, error) {
	txs, err := s.loader.Load(s.cfg.TransactionsFile)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, &returns.InsufficientDataError{Points: 0}
	}
	divs, err := s.loader.LoadDividends(s.cfg.DividendsFile)
	if err != nil {
		return nil, err
	}

	hold, err := s.recon.Reconstruct(txs, asOf)
	if err != nil {
		return nil, err
	}

	rng := pricecache.Range{Start: txs[0].Date, End: asOf}
	series, err := s.fetchSeries(ctx, ledger.Symbols(txs), rng, forceRefresh)
	if err != nil {
		return nil, err
	}

	rates := s.fx.Rates(ctx, currencies(txs, divs))

	flows := append(hold.CashFlows, s.recon.DividendCashFlows(divs, hold)...)
	points, excluded := s.engine.DailyValues(hold, series, rates, flows)

	result, err := s.engine.Compute(points)
	if err != nil {
		return nil, err
	}
	result.ExcludedDays = excluded

	report := &Report{
		AsOf:            asOf,
		DisplayCurrency: s.fx.Display(),
		Returns:         result,
		Summary:         returns.Summarize(result.Daily),
	}
	s.valuePositions(report, hold, series, rates, asOf)
	s.aggregateFlows(report, hold, divs, rates)

	if benchmark != "" && benchmark != "none" {
		bench, err := s.benchmarkReport(ctx, benchmark, rng, result.Daily, forceRefresh)
		if err != nil {
			return nil, err
		}
		report.Benchmark = bench
	}

	s.log.Info().
		Time("as_of", asOf).
		Float64("total_value", report.TotalValue).
		Float64("twr", result.TWR).
		Bool("stale", report.Stale).
		Msg("Computed portfolio report")

	return report, nil
}

// fetchSeries loads every symbol's price series concurrently. Any single
// failure fails the whole report; degradation to stale data already happened
// inside the cache.
func (s *Service) fetchSeries(ctx context.Context, pairs [][2]string, rng pricecache.Range, force bool) (map[string]*pricecache.PriceSeries, error) {
	series := make(map[string]*pricecache.PriceSeries, len(pairs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, pair := range pairs {
		symbol, exchange := pair[0], pair[1]
		g.Go(func() error {
			ps, err := s.prices.GetSeries(ctx, symbol, exchange, rng, force)
			if err != nil {
				return err
			}
			mu.Lock()
			series[symbol] = ps
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}

// valuePositions fills the per-position valuation and the total as of the
// report date.
func (s *Service) valuePositions(report *Report, hold *holdings.Result, series map[string]*pricecache.PriceSeries, rates map[string]float64, asOf time.Time) {
	snap := hold.AsOf(asOf)
	if snap == nil {
		return
	}

	for symbol, pos := range snap.Positions {
		pr := PositionReport{
			Symbol:   symbol,
			Exchange: pos.Exchange,
			Quantity: pos.Quantity,
			AvgCost:  pos.AvgCost,
			Currency: pos.Currency,
		}
		if ps, ok := series[symbol]; ok {
			if point, found := ps.CloseAtOrBefore(asOf); found {
				pr.LastClose = point.Close
				pr.PriceDate = point.Date
				pr.Value = pos.Quantity * point.Close * rate(rates, pos.Currency)
			}
			pr.Stale = ps.Stale
		}
		report.TotalValue += pr.Value
		report.Stale = report.Stale || pr.Stale
		report.Positions = append(report.Positions, pr)
	}

	sort.Slice(report.Positions, func(i, j int) bool {
		return report.Positions[i].Symbol < report.Positions[j].Symbol
	})
}

// aggregateFlows fills the invested/returned totals per trading currency, the
// dividend cash by symbol, and the realized gain in display currency.
func (s *Service) aggregateFlows(report *Report, hold *holdings.Result, divs []ledger.DividendRecord, rates map[string]float64) {
	report.Totals = make(map[string]CurrencyTotals)
	for _, f := range hold.CashFlows {
		t := report.Totals[f.Currency]
		if f.Amount > 0 {
			t.Invested += f.Amount
		} else {
			t.Returned += -f.Amount
		}
		report.Totals[f.Currency] = t
	}

	report.Dividends = make(map[string]float64)
	for _, f := range s.recon.DividendCashFlows(divs, hold) {
		report.Dividends[f.Symbol] += f.Amount
	}

	for _, g := range hold.RealizedGains {
		report.RealizedGain += g.Gain * rate(rates, g.Currency)
	}
}

// benchmarkReport fetches and aligns the selected benchmark index.
func (s *Service) benchmarkReport(ctx context.Context, key string, rng pricecache.Range, daily []returns.ReturnPeriod, force bool) (*BenchmarkReport, error) {
	info, ok := config.Benchmarks[key]
	if !ok {
		return nil, fmt.Errorf("unknown benchmark %q", key)
	}

	bench, err := s.prices.GetSeries(ctx, info.Ticker, "", rng, force)
	if err != nil {
		return nil, err
	}

	points, err := s.engine.AlignBenchmark(daily, bench)
	if err != nil {
		return nil, err
	}

	return &BenchmarkReport{
		Key:    key,
		Ticker: info.Ticker,
		Label:  info.Label,
		Points: points,
	}, nil
}

// currencies returns the distinct trading currencies across both ledgers.
func currencies(txs []ledger.Transaction, divs []ledger.DividendRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tx := range txs {
		if !seen[tx.Currency] {
			seen[tx.Currency] = true
			out = append(out, tx.Currency)
		}
	}
	for _, d := range divs {
		if !seen[d.Currency] {
			seen[d.Currency] = true
			out = append(out, d.Currency)
		}
	}
	return out
}

func rate(rates map[string]float64, currency string) float64 {
	if r, ok := rates[currency]; ok && r > 0 {
		return r
	}
	return 1.0
}
