// Package holdings replays the transaction event stream into position and
// cost-basis time series, and derives the external cash flows the return
// engine partitions on.
package holdings

import "time"

// Position is the held quantity and weighted-average cost for one symbol.
type Position struct {
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"` // Per share, includes buy fees
	Exchange string  `json:"exchange"`
	Currency string  `json:"currency"`
}

// HoldingSnapshot is the full position map as of end of one date.
type HoldingSnapshot struct {
	Date      time.Time           `json:"date"`
	Positions map[string]Position `json:"positions"`
}

// Position returns the position for a symbol, zero if not held.
func (s *HoldingSnapshot) Position(symbol string) Position {
	return s.Positions[symbol]
}

// RealizedGain records the outcome of one SELL against average cost.
type RealizedGain struct {
	Date     time.Time `json:"date"`
	Symbol   string    `json:"symbol"`
	Quantity float64   `json:"quantity"`
	Proceeds float64   `json:"proceeds"` // Net of fees
	Gain     float64   `json:"gain"`     // quantity x (price - avg cost) - fees
	Currency string    `json:"currency"`
}

// CashFlowSource tags where an external cash flow came from.
type CashFlowSource string

const (
	CashFlowTrade    CashFlowSource = "trade"
	CashFlowDividend CashFlowSource = "dividend"
)

// CashFlow is a net external flow into (+) or out of (-) invested capital.
type CashFlow struct {
	Date     time.Time      `json:"date"`
	Symbol   string         `json:"symbol"`
	Amount   float64        `json:"amount"` // In Currency
	Currency string         `json:"currency"`
	Source   CashFlowSource `json:"source"`
}

// Result is the full reconstruction output.
type Result struct {
	Snapshots     []HoldingSnapshot
	CashFlows     []CashFlow
	RealizedGains []RealizedGain
}

// AsOf returns the latest snapshot dated on or before the given date,
// or nil when the date precedes the first transaction.
func (r *Result) AsOf(date time.Time) *HoldingSnapshot {
	var found *HoldingSnapshot
	for i := range r.Snapshots {
		if r.Snapshots[i].Date.After(date) {
			break
		}
		found = &r.Snapshots[i]
	}
	return found
}
