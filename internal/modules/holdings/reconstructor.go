package holdings

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/theblackmoose/marketmoose/internal/modules/ledger"
)

// Reconstructor replays ordered transactions into holdings snapshots.
type Reconstructor struct {
	log zerolog.Logger
}

// NewReconstructor creates a new holdings reconstructor
func NewReconstructor(log zerolog.Logger) *Reconstructor {
	return &Reconstructor{
		log: log.With().Str("service", "holdings").Logger(),
	}
}

// Reconstruct replays the transaction stream and emits one snapshot per
// distinct transaction date plus a final snapshot at asOf. Transactions must
// already be ordered by (date, symbol) as the ledger loader guarantees.
//
// A BUY raises quantity and re-derives the weighted-average cost with fees
// folded into the basis. A SELL reduces quantity at the running average cost
// and books a realized gain; selling more than is held fails with
// *OverdraftError and no result.
func (r *Reconstructor) Reconstruct(txs []ledger.Transaction, asOf time.Time) (*Result, error) {
	positions := make(map[string]Position)
	result := &Result{}

	flushSnapshot := func(date time.Time) {
		result.Snapshots = append(result.Snapshots, HoldingSnapshot{
			Date:      date,
			Positions: copyPositions(positions),
		})
	}

	for i := 0; i < len(txs); i++ {
		tx := &txs[i]

		pos := positions[tx.Symbol]
		pos.Exchange = tx.Exchange
		pos.Currency = tx.Currency

		switch {
		case tx.Side.IsBuy():
			cost := tx.GrossValue() + tx.Fees
			newQty := pos.Quantity + tx.Quantity
			pos.AvgCost = (pos.Quantity*pos.AvgCost + cost) / newQty
			pos.Quantity = newQty
			positions[tx.Symbol] = pos

			result.CashFlows = append(result.CashFlows, CashFlow{
				Date:     tx.Date,
				Symbol:   tx.Symbol,
				Amount:   cost,
				Currency: tx.Currency,
				Source:   CashFlowTrade,
			})

		case tx.Side.IsSell():
			if tx.Quantity > pos.Quantity {
				return nil, &OverdraftError{
					Symbol:    tx.Symbol,
					Date:      tx.Date,
					Requested: tx.Quantity,
					Held:      pos.Quantity,
				}
			}

			proceeds := tx.GrossValue() - tx.Fees
			result.RealizedGains = append(result.RealizedGains, RealizedGain{
				Date:     tx.Date,
				Symbol:   tx.Symbol,
				Quantity: tx.Quantity,
				Proceeds: proceeds,
				Gain:     tx.Quantity*(tx.Price-pos.AvgCost) - tx.Fees,
				Currency: tx.Currency,
			})

			pos.Quantity -= tx.Quantity
			if pos.Quantity == 0 {
				pos.AvgCost = 0
			}
			positions[tx.Symbol] = pos

			result.CashFlows = append(result.CashFlows, CashFlow{
				Date:     tx.Date,
				Symbol:   tx.Symbol,
				Amount:   -proceeds,
				Currency: tx.Currency,
				Source:   CashFlowTrade,
			})
		}

		// Emit the snapshot once the last transaction of the date is applied.
		if i == len(txs)-1 || !txs[i+1].Date.Equal(tx.Date) {
			flushSnapshot(tx.Date)
		}
	}

	// Final as-of snapshot, unless the ledger already ends on that date.
	if len(result.Snapshots) == 0 || result.Snapshots[len(result.Snapshots)-1].Date.Before(asOf) {
		flushSnapshot(asOf)
	}

	r.log.Debug().
		Int("transactions", len(txs)).
		Int("snapshots", len(result.Snapshots)).
		Msg("Reconstructed holdings")

	return result, nil
}

// DividendCashFlows converts dividend records into external cash flows using
// the quantity held at each ex-date. Records for symbols not held on their
// ex-date contribute nothing. Dividends never alter quantity.
func (r *Reconstructor) DividendCashFlows(divs []ledger.DividendRecord, result *Result) []CashFlow {
	var flows []CashFlow
	for _, div := range divs {
		snap := result.AsOf(div.ExDate)
		if snap == nil {
			continue
		}
		pos := snap.Position(div.Symbol)
		if pos.Quantity <= 0 {
			r.log.Debug().Str("symbol", div.Symbol).Time("ex_date", div.ExDate).
				Msg("Dividend for symbol not held on ex-date, skipping")
			continue
		}
		flows = append(flows, CashFlow{
			Date:     div.ExDate,
			Symbol:   div.Symbol,
			Amount:   div.Amount * pos.Quantity,
			Currency: div.Currency,
			Source:   CashFlowDividend,
		})
	}
	return flows
}

func copyPositions(positions map[string]Position) map[string]Position {
	out := make(map[string]Position, len(positions))
	for sym, pos := range positions {
		if pos.Quantity != 0 {
			out[sym] = pos
		}
	}
	return out
}
