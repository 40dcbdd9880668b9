package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Dates travel as plain YYYY-MM-DD strings in the ledger files; the permissive
// parse also accepts RFC3339 timestamps and keeps only the day.

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if t, err := time.Parse(DateFormat, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

type transactionJSON struct {
	ID       string  `json:"id,omitempty"`
	Date     string  `json:"date"`
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fees     float64 `json:"fees"`
	Currency string  `json:"currency"`
}

// MarshalJSON renders the transaction with its date as YYYY-MM-DD.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		ID:       t.ID,
		Date:     t.Date.Format(DateFormat),
		Symbol:   t.Symbol,
		Exchange: t.Exchange,
		Side:     string(t.Side),
		Quantity: t.Quantity,
		Price:    t.Price,
		Fees:     t.Fees,
		Currency: t.Currency,
	})
}

// UnmarshalJSON parses the transaction, leaving Date zero when the string is
// malformed so Validate can reject the record with a precise reason.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	date, _ := parseDate(raw.Date)
	*t = Transaction{
		ID:       raw.ID,
		Date:     date,
		Symbol:   raw.Symbol,
		Exchange: raw.Exchange,
		Side:     TradeSide(raw.Side),
		Quantity: raw.Quantity,
		Price:    raw.Price,
		Fees:     raw.Fees,
		Currency: raw.Currency,
	}
	return nil
}

type dividendJSON struct {
	ID       string  `json:"id,omitempty"`
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	ExDate   string  `json:"ex_date"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// MarshalJSON renders the dividend with its ex-date as YYYY-MM-DD.
func (d DividendRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(dividendJSON{
		ID:       d.ID,
		Symbol:   d.Symbol,
		Exchange: d.Exchange,
		ExDate:   d.ExDate.Format(DateFormat),
		Amount:   d.Amount,
		Currency: d.Currency,
	})
}

// UnmarshalJSON parses the dividend, leaving ExDate zero when malformed.
func (d *DividendRecord) UnmarshalJSON(data []byte) error {
	var raw dividendJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	exDate, _ := parseDate(raw.ExDate)
	*d = DividendRecord{
		ID:       raw.ID,
		Symbol:   raw.Symbol,
		Exchange: raw.Exchange,
		ExDate:   exDate,
		Amount:   raw.Amount,
		Currency: raw.Currency,
	}
	return nil
}
