package returns

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/theblackmoose/marketmoose/internal/modules/holdings"
	"github.com/theblackmoose/marketmoose/internal/modules/pricecache"
)

// Config holds return computation policy.
type Config struct {
	CarryForwardLimit  int  // Max days a missing price is carried forward
	DividendsAsInflows bool // Count dividend cash as external flow (reinvested)
}

// Engine computes time-weighted returns. Pure CPU-bound computation, no I/O.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates a new return engine
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		log: log.With().Str("service", "returns").Logger(),
	}
}

// DailyValues builds the daily portfolio value series from reconstructed
// holdings, per-symbol price series, and FX rates into the display currency.
// A missing price is carried forward up to the configured limit; a day on
// which any held symbol has no usable price is excluded and reported.
func (e *Engine) DailyValues(
	hold *holdings.Result,
	series map[string]*pricecache.PriceSeries,
	fx map[string]float64,
	flows []holdings.CashFlow,
) ([]ValuePoint, []time.Time) {
	if len(hold.Snapshots) == 0 {
		return nil, nil
	}

	flowByDay := make(map[time.Time]float64)
	for _, f := range flows {
		if f.Source == holdings.CashFlowDividend && !e.cfg.DividendsAsInflows {
			continue
		}
		flowByDay[f.Date] = flowByDay[f.Date] + f.Amount*fxRate(fx, f.Currency)
	}

	start := hold.Snapshots[0].Date
	end := hold.Snapshots[len(hold.Snapshots)-1].Date

	var points []ValuePoint
	var excluded []time.Time
	pending := 0.0

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		snap := hold.AsOf(day)
		if snap == nil {
			continue
		}

		value := 0.0
		usable := true
		for sym, pos := range snap.Positions {
			s, ok := series[sym]
			if !ok {
				usable = false
				break
			}
			point, ok := s.CloseAtOrBefore(day)
			if !ok || day.Sub(point.Date) > time.Duration(e.cfg.CarryForwardLimit)*24*time.Hour {
				usable = false
				break
			}
			value += pos.Quantity * point.Close * fxRate(fx, pos.Currency)
		}

		if !usable {
			// The day's external flow still happened; defer it to the next
			// valued day so a trade on a price-gap day is never read as
			// performance.
			pending += flowByDay[day]
			excluded = append(excluded, day)
			continue
		}

		points = append(points, ValuePoint{
			Date:     day,
			Value:    value,
			CashFlow: flowByDay[day] + pending,
		})
		pending = 0
	}

	if len(excluded) > 0 {
		e.log.Warn().Int("days", len(excluded)).
			Time("first", excluded[0]).
			Msg("Days excluded from value series for missing prices")
	}

	return points, excluded
}

// Compute derives the daily, cash-flow-partitioned, and monthly return series
// from a daily value series. Fails with *InsufficientDataError below two
// valid points.
//
// Because the partition boundaries fall on every cash-flow date, the linked
// product of the sub-period returns telescopes to the linked product of the
// daily returns; both equal the window TWR.
func (e *Engine) Compute(points []ValuePoint) (*Result, error) {
	if len(points) < 2 {
		return nil, &InsufficientDataError{Points: len(points)}
	}

	result := &Result{}

	// Daily base series.
	growth := 1.0
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		r := 0.0
		if prev.Value != 0 {
			r = (cur.Value-cur.CashFlow)/prev.Value - 1
		}
		growth *= 1 + r
		result.Daily = append(result.Daily, ReturnPeriod{
			Start:      prev.Date,
			End:        cur.Date,
			StartValue: prev.Value,
			EndValue:   cur.Value,
			CashFlow:   cur.CashFlow,
			Return:     r,
		})
	}
	result.TWR = growth - 1

	result.SubPeriods = e.partition(points)
	result.Monthly = e.linkMonthly(result.Daily)

	return result, nil
}

// partition splits the window at every date carrying a net external cash
// flow and computes each sub-period's flow-adjusted return.
func (e *Engine) partition(points []ValuePoint) []ReturnPeriod {
	var periods []ReturnPeriod

	startIdx := 0
	for i := 1; i < len(points); i++ {
		if points[i].CashFlow == 0 && i != len(points)-1 {
			continue
		}

		start, end := points[startIdx], points[i]
		r := 0.0
		if start.Value != 0 {
			// Daily returns inside the sub-period telescope to this value
			// since the only flow sits on the end boundary.
			r = (end.Value-end.CashFlow)/start.Value - 1
		} else {
			// A zero-value open (before first funding) contributes nothing.
			for _, d := range e.dailyWithin(points, startIdx, i) {
				r = (1+r)*(1+d) - 1
			}
		}

		periods = append(periods, ReturnPeriod{
			Start:      start.Date,
			End:        end.Date,
			StartValue: start.Value,
			EndValue:   end.Value,
			CashFlow:   end.CashFlow,
			Return:     r,
		})
		startIdx = i
	}

	return periods
}

// dailyWithin recomputes the daily returns between two point indexes.
func (e *Engine) dailyWithin(points []ValuePoint, from, to int) []float64 {
	var rets []float64
	for i := from + 1; i <= to; i++ {
		r := 0.0
		if points[i-1].Value != 0 {
			r = (points[i].Value-points[i].CashFlow)/points[i-1].Value - 1
		}
		rets = append(rets, r)
	}
	return rets
}

// linkMonthly chains daily returns within each calendar month. Monthly TWR is
// never recomputed from month-sampled values; skipped trading days would
// compound into error.
func (e *Engine) linkMonthly(daily []ReturnPeriod) []MonthlyReturn {
	var months []MonthlyReturn
	for _, d := range daily {
		month := d.End.Format("2006-01")
		if len(months) == 0 || months[len(months)-1].Month != month {
			months = append(months, MonthlyReturn{Month: month, Return: 0})
		}
		last := &months[len(months)-1]
		last.Return = (1+last.Return)*(1+d.Return) - 1
	}
	return months
}

// AlignBenchmark reindexes a benchmark series onto the portfolio's daily
// return dates via forward-fill and pairs cumulative returns rebased at the
// first overlapping date. Dates absent from either side are dropped, never
// interpolated. Fails with *MisalignedBenchmarkError on zero overlap.
func (e *Engine) AlignBenchmark(daily []ReturnPeriod, bench *pricecache.PriceSeries) ([]BenchmarkPoint, error) {
	if bench == nil || len(bench.Points) == 0 {
		return nil, &MisalignedBenchmarkError{Symbol: benchSymbol(bench)}
	}

	var aligned []BenchmarkPoint
	cumulative := 1.0
	portBase := 0.0
	baseClose := 0.0

	for _, d := range daily {
		cumulative *= 1 + d.Return

		point, ok := bench.CloseAtOrBefore(d.End)
		if !ok || d.End.Sub(point.Date) > time.Duration(e.cfg.CarryForwardLimit)*24*time.Hour {
			// Present in portfolio only; drop from the comparison.
			continue
		}

		// Rebase both series at the first overlapping date.
		if baseClose == 0 {
			baseClose = point.Close
			portBase = cumulative
		}

		aligned = append(aligned, BenchmarkPoint{
			Date:            d.End,
			PortfolioReturn: cumulative/portBase - 1,
			BenchmarkReturn: point.Close/baseClose - 1,
		})
	}

	if len(aligned) == 0 {
		return nil, &MisalignedBenchmarkError{Symbol: benchSymbol(bench)}
	}

	return aligned, nil
}

func benchSymbol(bench *pricecache.PriceSeries) string {
	if bench == nil {
		return "?"
	}
	return bench.Symbol
}

func fxRate(fx map[string]float64, currency string) float64 {
	if rate, ok := fx[currency]; ok && rate > 0 {
		return rate
	}
	return 1.0
}
