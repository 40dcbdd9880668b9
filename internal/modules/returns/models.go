// Package returns computes time-weighted returns from holdings, price series,
// and external cash flows, and aligns them against benchmark series.
package returns

import "time"

// ValuePoint is the portfolio market value on one day, in display currency,
// together with the net external cash flow landing on that day.
type ValuePoint struct {
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	CashFlow float64   `json:"cash_flow"`
}

// ReturnPeriod is one sub-period of the observation window. CashFlow is the
// net external flow at the End boundary; Return is the flow-adjusted
// sub-period return (V_end - CF) / V_start - 1.
type ReturnPeriod struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	StartValue float64   `json:"start_value"`
	EndValue   float64   `json:"end_value"`
	CashFlow   float64   `json:"cash_flow"`
	Return     float64   `json:"return"`
}

// MonthlyReturn is the geometric link of the daily returns inside one
// calendar month.
type MonthlyReturn struct {
	Month  string  `json:"month"` // YYYY-MM
	Return float64 `json:"return"`
}

// Result is the full return computation output. Daily is the base
// granularity; SubPeriods is the partition at external cash-flow dates, and
// the linked product of either sequence is TWR.
type Result struct {
	Daily        []ReturnPeriod  `json:"daily"`
	SubPeriods   []ReturnPeriod  `json:"sub_periods"`
	Monthly      []MonthlyReturn `json:"monthly"`
	TWR          float64         `json:"twr"`
	ExcludedDays []time.Time     `json:"excluded_days,omitempty"`
}

// BenchmarkPoint pairs cumulative portfolio and benchmark returns on one
// shared trading date, both rebased to the first overlapping date.
type BenchmarkPoint struct {
	Date            time.Time `json:"date"`
	PortfolioReturn float64   `json:"portfolio_return"`
	BenchmarkReturn float64   `json:"benchmark_return"`
}

// Summary condenses the daily return series into headline risk figures.
type Summary struct {
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"` // annualized stddev of daily returns
	MaxDrawdown      float64 `json:"max_drawdown"`
}
