// Package pricecache serves price data for (symbol, exchange, range) keys
// through a fetch-through cache over the upstream market-data provider. It is
// the only caller of the provider and owns retry, staleness, and fetch
// coordination policy.
//
// Each key moves through ABSENT -> FETCHING -> {FRESH | STALE_SERVED | FAILED}:
// a fetch is entered only on a miss, an expired entry, or a forced refresh,
// and never concurrently for the same key thanks to the in-process
// singleflight group and the cross-process store lock.
package pricecache

import (
	"fmt"
	"time"
)

// Source tags where a cached payload came from.
type Source string

const (
	SourceHistorical Source = "historical"
	SourceLive       Source = "live"
)

// PricePoint is one daily close observation.
type PricePoint struct {
	Date     time.Time `json:"date" msgpack:"date"`
	Close    float64   `json:"close" msgpack:"close"`
	AdjClose float64   `json:"adj_close" msgpack:"adj_close"`
}

// PriceSeries is an immutable ordered sequence of daily closes for one
// (symbol, exchange) key. Refreshes build a new series and replace the cached
// one wholesale; entries are never reordered or overwritten in place.
type PriceSeries struct {
	Symbol    string       `json:"symbol" msgpack:"symbol"`
	Exchange  string       `json:"exchange" msgpack:"exchange"`
	Points    []PricePoint `json:"points" msgpack:"points"` // strictly increasing by date
	FetchedAt time.Time    `json:"fetched_at" msgpack:"fetched_at"`
	Source    Source       `json:"source" msgpack:"source"`
	Stale     bool         `json:"stale" msgpack:"-"` // set at serve time, never persisted
}

// CloseAtOrBefore returns the last close on or before the given date.
func (s *PriceSeries) CloseAtOrBefore(date time.Time) (PricePoint, bool) {
	var found PricePoint
	ok := false
	for _, p := range s.Points {
		if p.Date.After(date) {
			break
		}
		found = p
		ok = true
	}
	return found, ok
}

// Quote is a single live price observation.
type Quote struct {
	Symbol    string    `json:"symbol" msgpack:"symbol"`
	Exchange  string    `json:"exchange" msgpack:"exchange"`
	Price     float64   `json:"price" msgpack:"price"`
	Currency  string    `json:"currency" msgpack:"currency"`
	FetchedAt time.Time `json:"fetched_at" msgpack:"fetched_at"`
	Stale     bool      `json:"stale" msgpack:"-"`
}

// Range bounds a historical request. A zero Start means full history.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) String() string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02")
	}
	return format(r.Start) + ".." + format(r.End)
}

func seriesKey(symbol, exchange string, r Range) string {
	return fmt.Sprintf("prices:%s|%s|%s", symbol, exchange, r)
}

func quoteKey(symbol, exchange string) string {
	return fmt.Sprintf("quote:%s|%s", symbol, exchange)
}
