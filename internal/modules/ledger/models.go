// Package ledger parses and validates the transaction and dividend records
// and produces the chronologically ordered event stream every downstream
// component works from.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// DateFormat is the on-disk date representation.
const DateFormat = "2006-01-02"

// TradeSide represents the trade direction (BUY or SELL)
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// IsValid checks if the trade side is valid
func (ts TradeSide) IsValid() bool {
	return ts == TradeSideBuy || ts == TradeSideSell
}

// IsBuy returns true if this is a BUY trade
func (ts TradeSide) IsBuy() bool {
	return ts == TradeSideBuy
}

// IsSell returns true if this is a SELL trade
func (ts TradeSide) IsSell() bool {
	return ts == TradeSideSell
}

// TradeSideFromString creates TradeSide from string (case-insensitive)
func TradeSideFromString(value string) (TradeSide, error) {
	switch strings.ToUpper(value) {
	case "BUY":
		return TradeSideBuy, nil
	case "SELL":
		return TradeSideSell, nil
	default:
		return "", fmt.Errorf("invalid trade side: %q", value)
	}
}

// Transaction represents a single executed trade. Immutable once loaded.
type Transaction struct {
	ID       string    `json:"id,omitempty"`
	Date     time.Time `json:"-"`
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Side     TradeSide `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Fees     float64   `json:"fees"`
	Currency string    `json:"currency"`
}

// GrossValue returns quantity x price, before fees.
func (t *Transaction) GrossValue() float64 {
	return t.Quantity * t.Price
}

// Validate validates transaction data and normalizes the symbol.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("invalid side: %q", t.Side)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", t.Quantity)
	}
	if t.Price < 0 {
		return fmt.Errorf("price must not be negative, got %v", t.Price)
	}
	if t.Fees < 0 {
		return fmt.Errorf("fees must not be negative, got %v", t.Fees)
	}
	if t.Currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("date is missing or unparseable")
	}

	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	return nil
}

// DividendRecord represents a per-share dividend on its ex-date.
type DividendRecord struct {
	ID       string    `json:"id,omitempty"`
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	ExDate   time.Time `json:"-"`
	Amount   float64   `json:"amount"` // Per share, in Currency
	Currency string    `json:"currency"`
}

// Validate validates dividend record data and normalizes the symbol.
func (d *DividendRecord) Validate() error {
	if strings.TrimSpace(d.Symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if d.Amount <= 0 {
		return fmt.Errorf("dividend amount must be positive, got %v", d.Amount)
	}
	if d.Currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	if d.ExDate.IsZero() {
		return fmt.Errorf("ex-date is missing or unparseable")
	}

	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	return nil
}
