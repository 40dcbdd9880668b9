package returns

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblackmoose/marketmoose/internal/modules/holdings"
	"github.com/theblackmoose/marketmoose/internal/modules/ledger"
	"github.com/theblackmoose/marketmoose/internal/modules/pricecache"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testEngine() *Engine {
	return NewEngine(Config{CarryForwardLimit: 5, DividendsAsInflows: true}, zerolog.Nop())
}

// series builds a daily price series from day 1, one close per element.
func series(symbol string, closes ...float64) *pricecache.PriceSeries {
	s := &pricecache.PriceSeries{Symbol: symbol, Exchange: "ASX"}
	for i, c := range closes {
		s.Points = append(s.Points, pricecache.PricePoint{Date: day(i + 1), Close: c, AdjClose: c})
	}
	return s
}

func reconstruct(t *testing.T, txs []ledger.Transaction, asOf time.Time) *holdings.Result {
	t.Helper()
	result, err := holdings.NewReconstructor(zerolog.Nop()).Reconstruct(txs, asOf)
	require.NoError(t, err)
	return result
}

func buy(d int, symbol string, qty, price float64) ledger.Transaction {
	return ledger.Transaction{Date: day(d), Symbol: symbol, Exchange: "ASX",
		Side: ledger.TradeSideBuy, Quantity: qty, Price: price, Currency: "AUD"}
}

func sell(d int, symbol string, qty, price float64) ledger.Transaction {
	return ledger.Transaction{Date: day(d), Symbol: symbol, Exchange: "ASX",
		Side: ledger.TradeSideSell, Quantity: qty, Price: price, Currency: "AUD"}
}

// risingCloses is a ten-day price path from 100 to 110, passing 105 on day 5.
func risingCloses() []float64 {
	return []float64{100, 101, 102.5, 104, 105, 106, 107.5, 108.5, 109, 110}
}

func TestComputeSingleBuyAndRisingPrice(t *testing.T) {
	engine := testEngine()
	hold := reconstruct(t, []ledger.Transaction{buy(1, "BHP", 10, 100)}, day(10))
	prices := map[string]*pricecache.PriceSeries{"BHP": series("BHP", risingCloses()...)}

	points, excluded := engine.DailyValues(hold, prices, nil, hold.CashFlows)
	require.Empty(t, excluded)
	require.Len(t, points, 10)

	result, err := engine.Compute(points)
	require.NoError(t, err)

	assert.InDelta(t, 0.10, result.TWR, 1e-9, "ten percent price rise, no interim flows")
}

func TestComputeMidWindowSellDoesNotDistortTWR(t *testing.T) {
	engine := testEngine()
	closes := risingCloses()
	hold := reconstruct(t, []ledger.Transaction{
		buy(1, "BHP", 10, 100),
		sell(5, "BHP", 5, closes[4]),
	}, day(10))
	prices := map[string]*pricecache.PriceSeries{"BHP": series("BHP", closes...)}

	points, excluded := engine.DailyValues(hold, prices, nil, hold.CashFlows)
	require.Empty(t, excluded)

	result, err := engine.Compute(points)
	require.NoError(t, err)

	// Withdrawing half the position at market price is an external flow, not
	// performance; TWR still tracks the pure price path.
	assert.InDelta(t, 0.10, result.TWR, 1e-9)
}

func TestComputeSubPeriodsCompoundToDailyTWR(t *testing.T) {
	engine := testEngine()
	closes := []float64{100, 103, 101, 107, 104, 104, 109, 113, 110, 115}
	hold := reconstruct(t, []ledger.Transaction{
		buy(1, "BHP", 10, 100),
		buy(4, "BHP", 5, 107),
		sell(7, "BHP", 3, 109),
	}, day(10))
	prices := map[string]*pricecache.PriceSeries{"BHP": series("BHP", closes...)}

	points, _ := engine.DailyValues(hold, prices, nil, hold.CashFlows)
	result, err := engine.Compute(points)
	require.NoError(t, err)

	linkedDaily := 1.0
	for _, d := range result.Daily {
		linkedDaily *= 1 + d.Return
	}
	linkedSub := 1.0
	for _, p := range result.SubPeriods {
		linkedSub *= 1 + p.Return
	}

	assert.InDelta(t, linkedDaily, linkedSub, 1e-9, "partitioning at flow dates preserves the linked product")
	assert.InDelta(t, result.TWR, linkedDaily-1, 1e-9)
}

func TestComputeMonthlyLinksDailyWithinCalendarMonth(t *testing.T) {
	engine := testEngine()

	points := []ValuePoint{
		{Date: time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), Value: 1000},
		{Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Value: 1010},
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Value: 1030.2},
		{Date: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), Value: 1040.502},
	}

	result, err := engine.Compute(points)
	require.NoError(t, err)

	require.Len(t, result.Monthly, 2)
	assert.Equal(t, "2024-01", result.Monthly[0].Month)
	assert.InDelta(t, 0.01, result.Monthly[0].Return, 1e-9)
	assert.Equal(t, "2024-02", result.Monthly[1].Month)
	assert.InDelta(t, 1.02*1.01-1, result.Monthly[1].Return, 1e-9)
}

func TestComputeInsufficientData(t *testing.T) {
	engine := testEngine()

	_, err := engine.Compute([]ValuePoint{{Date: day(1), Value: 1000}})

	var ie *InsufficientDataError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, ie.Points)
}

func TestDailyValuesCarryForwardWithinLimit(t *testing.T) {
	engine := testEngine()
	hold := reconstruct(t, []ledger.Transaction{buy(1, "BHP", 10, 100)}, day(5))

	// Closes on days 1 and 2 only; days 3..5 carry day 2 forward.
	prices := map[string]*pricecache.PriceSeries{"BHP": series("BHP", 100, 102)}

	points, excluded := engine.DailyValues(hold, prices, nil, hold.CashFlows)

	require.Empty(t, excluded)
	require.Len(t, points, 5)
	assert.InDelta(t, 1020.0, points[4].Value, 1e-9)
}

func TestDailyValuesExcludesDaysBeyondCarryForwardLimit(t *testing.T) {
	engine := NewEngine(Config{CarryForwardLimit: 2}, zerolog.Nop())
	hold := reconstruct(t, []ledger.Transaction{buy(1, "BHP", 10, 100)}, day(8))
	prices := map[string]*pricecache.PriceSeries{"BHP": series("BHP", 100, 102)}

	points, excluded := engine.DailyValues(hold, prices, nil, hold.CashFlows)

	// Days 3 and 4 still sit within two days of the last close; 5..8 do not.
	require.Len(t, points, 4)
	require.Len(t, excluded, 4)
	assert.Equal(t, day(5), excluded[0])
}

func TestDailyValuesDefersFlowsOnExcludedDaysToNextValuedDay(t *testing.T) {
	engine := NewEngine(Config{CarryForwardLimit: 2}, zerolog.Nop())
	hold := reconstruct(t, []ledger.Transaction{
		buy(1, "BHP", 10, 100),
		sell(6, "BHP", 5, 102),
	}, day(10))

	// Closes on days 1-2 and 8-10 only; the sell lands inside the price gap.
	bhp := &pricecache.PriceSeries{Symbol: "BHP", Exchange: "ASX", Points: []pricecache.PricePoint{
		{Date: day(1), Close: 100}, {Date: day(2), Close: 100},
		{Date: day(8), Close: 102}, {Date: day(9), Close: 102}, {Date: day(10), Close: 102},
	}}
	prices := map[string]*pricecache.PriceSeries{"BHP": bhp}

	points, excluded := engine.DailyValues(hold, prices, nil, hold.CashFlows)

	assert.Equal(t, []time.Time{day(5), day(6), day(7)}, excluded)
	require.Len(t, points, 7)
	assert.InDelta(t, -510.0, points[4].CashFlow, 1e-9, "the gap-day sell lands on the next valued day")

	result, err := engine.Compute(points)
	require.NoError(t, err)

	// 510 of the 1020 position was withdrawn at market during the gap; only
	// the 100 -> 102 price move is performance.
	assert.InDelta(t, 0.02, result.TWR, 1e-9)
}

func TestDailyValuesDividendPolicyGatesFlows(t *testing.T) {
	hold := reconstruct(t, []ledger.Transaction{buy(1, "BHP", 10, 100)}, day(3))
	prices := map[string]*pricecache.PriceSeries{"BHP": series("BHP", 100, 100, 100)}
	divFlow := holdings.CashFlow{Date: day(2), Symbol: "BHP", Amount: 15, Currency: "AUD", Source: holdings.CashFlowDividend}
	flows := append(append([]holdings.CashFlow{}, hold.CashFlows...), divFlow)

	inflows := NewEngine(Config{CarryForwardLimit: 5, DividendsAsInflows: true}, zerolog.Nop())
	points, _ := inflows.DailyValues(hold, prices, nil, flows)
	assert.InDelta(t, 15.0, points[1].CashFlow, 1e-9)

	ignored := NewEngine(Config{CarryForwardLimit: 5, DividendsAsInflows: false}, zerolog.Nop())
	points, _ = ignored.DailyValues(hold, prices, nil, flows)
	assert.Zero(t, points[1].CashFlow)
}

func TestDailyValuesAppliesFXRates(t *testing.T) {
	engine := testEngine()
	hold := reconstruct(t, []ledger.Transaction{buy(1, "BHP", 10, 100)}, day(2))
	prices := map[string]*pricecache.PriceSeries{"BHP": series("BHP", 100, 100)}
	fx := map[string]float64{"AUD": 0.65}

	points, _ := engine.DailyValues(hold, prices, fx, hold.CashFlows)

	require.Len(t, points, 2)
	assert.InDelta(t, 650.0, points[0].Value, 1e-9)
	assert.InDelta(t, 650.0, points[0].CashFlow, 1e-9, "flows convert at the same rate")
}

func TestAlignBenchmarkForwardFillsAndRebases(t *testing.T) {
	engine := testEngine()

	daily := []ReturnPeriod{
		{Start: day(1), End: day(2), Return: 0.01},
		{Start: day(2), End: day(3), Return: 0.02},
		{Start: day(3), End: day(4), Return: -0.01},
	}
	bench := &pricecache.PriceSeries{Symbol: "^AXJO", Points: []pricecache.PricePoint{
		{Date: day(2), Close: 7000},
		// Day 3 missing; forward-filled from day 2.
		{Date: day(4), Close: 7140},
	}}

	aligned, err := engine.AlignBenchmark(daily, bench)
	require.NoError(t, err)
	require.Len(t, aligned, 3)

	assert.Zero(t, aligned[0].PortfolioReturn, "both series rebase at the first shared date")
	assert.Zero(t, aligned[0].BenchmarkReturn)
	assert.InDelta(t, 0.02, aligned[1].PortfolioReturn, 1e-9)
	assert.Zero(t, aligned[1].BenchmarkReturn, "missing benchmark day carries the prior close")
	assert.InDelta(t, 1.02*0.99-1, aligned[2].PortfolioReturn, 1e-9)
	assert.InDelta(t, 0.02, aligned[2].BenchmarkReturn, 1e-9)
}

func TestAlignBenchmarkDropsDatesBeyondCarryLimit(t *testing.T) {
	engine := NewEngine(Config{CarryForwardLimit: 1}, zerolog.Nop())

	daily := []ReturnPeriod{
		{Start: day(1), End: day(2), Return: 0.01},
		{Start: day(2), End: day(10), Return: 0.02},
	}
	bench := &pricecache.PriceSeries{Symbol: "^AXJO", Points: []pricecache.PricePoint{
		{Date: day(2), Close: 7000},
	}}

	aligned, err := engine.AlignBenchmark(daily, bench)

	require.NoError(t, err)
	require.Len(t, aligned, 1, "stale benchmark closes never pair with far-future dates")
	assert.Equal(t, day(2), aligned[0].Date)
}

func TestAlignBenchmarkNoOverlap(t *testing.T) {
	engine := testEngine()

	daily := []ReturnPeriod{{Start: day(1), End: day(2), Return: 0.01}}
	bench := &pricecache.PriceSeries{Symbol: "^GSPC", Points: []pricecache.PricePoint{
		{Date: day(20), Close: 5000},
	}}

	_, err := engine.AlignBenchmark(daily, bench)

	var me *MisalignedBenchmarkError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "^GSPC", me.Symbol)
}

func TestAlignBenchmarkEmptySeries(t *testing.T) {
	engine := testEngine()

	_, err := engine.AlignBenchmark(nil, &pricecache.PriceSeries{Symbol: "^GSPC"})

	var me *MisalignedBenchmarkError
	assert.ErrorAs(t, err, &me)
}

func TestSummarizeHeadlineFigures(t *testing.T) {
	daily := []ReturnPeriod{
		{Return: 0.01},
		{Return: -0.02},
		{Return: 0.015},
	}

	summary := Summarize(daily)

	growth := 1.01 * 0.98 * 1.015
	assert.InDelta(t, growth, math.Pow(1+summary.AnnualizedReturn, 3.0/252), 1e-9)
	assert.Greater(t, summary.Volatility, 0.0)
	// The day-two loss is the only dip from the running peak.
	assert.InDelta(t, 0.02, summary.MaxDrawdown, 1e-9)
}

func TestSummarizeEmptySeries(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}
