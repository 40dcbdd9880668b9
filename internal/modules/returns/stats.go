package returns

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear is the conventional annualization factor.
const tradingDaysPerYear = 252

// Summarize condenses a daily return series into headline figures. An empty
// series yields the zero Summary.
func Summarize(daily []ReturnPeriod) Summary {
	if len(daily) == 0 {
		return Summary{}
	}

	rets := make([]float64, len(daily))
	growth := 1.0
	for i, d := range daily {
		rets[i] = d.Return
		growth *= 1 + d.Return
	}

	summary := Summary{
		AnnualizedReturn: math.Pow(growth, tradingDaysPerYear/float64(len(rets))) - 1,
	}
	if len(rets) > 1 {
		summary.Volatility = stat.StdDev(rets, nil) * math.Sqrt(tradingDaysPerYear)
	}

	// Max drawdown over the linked growth path.
	peak := 1.0
	cum := 1.0
	for _, r := range rets {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		}
		if dd := 1 - cum/peak; dd > summary.MaxDrawdown {
			summary.MaxDrawdown = dd
		}
	}

	return summary
}
