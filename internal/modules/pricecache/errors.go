package pricecache

import "fmt"

// DataUnavailableError reports that upstream retries were exhausted and no
// stale entry existed to fall back on. It is the only failure shape this
// layer surfaces for fetch problems; raw provider errors stay wrapped inside.
type DataUnavailableError struct {
	Symbol   string
	Exchange string
	Err      error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("price data unavailable for %s (%s): %v", e.Symbol, e.Exchange, e.Err)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}
