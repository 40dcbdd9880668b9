// Package portfolio assembles full portfolio reports by orchestrating the
// ledger, holdings, price cache, FX, and return engine modules.
package portfolio

import (
	"time"

	"github.com/theblackmoose/marketmoose/internal/modules/returns"
)

// PositionReport is one held symbol valued as of the report date.
type PositionReport struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Quantity  float64   `json:"quantity"`
	AvgCost   float64   `json:"avg_cost"`
	LastClose float64   `json:"last_close"` // In trading currency
	PriceDate time.Time `json:"price_date"`
	Currency  string    `json:"currency"`
	Value     float64   `json:"value"` // In display currency
	Stale     bool      `json:"stale"` // Priced from a stale cache entry
}

// CurrencyTotals aggregates trade cash flows per trading currency.
type CurrencyTotals struct {
	Invested float64 `json:"invested"` // Sum of buy costs
	Returned float64 `json:"returned"` // Sum of sell proceeds
}

// BenchmarkReport pairs the aligned comparison series with its identity.
type BenchmarkReport struct {
	Key    string                   `json:"key"`
	Ticker string                   `json:"ticker"`
	Label  string                   `json:"label"`
	Points []returns.BenchmarkPoint `json:"points"`
}

// Report is the full portfolio analytics output as of one date.
type Report struct {
	AsOf            time.Time                 `json:"as_of"`
	DisplayCurrency string                    `json:"display_currency"`
	TotalValue      float64                   `json:"total_value"` // In display currency
	Positions       []PositionReport          `json:"positions"`
	Totals          map[string]CurrencyTotals `json:"totals"`    // By trading currency
	Dividends       map[string]float64        `json:"dividends"` // Cash received by symbol, trading currency
	RealizedGain    float64                   `json:"realized_gain"` // In display currency
	Returns         *returns.Result           `json:"returns"`
	Summary         returns.Summary           `json:"summary"`
	Benchmark       *BenchmarkReport          `json:"benchmark,omitempty"`
	Stale           bool                      `json:"stale"` // Any position priced from stale data
}
