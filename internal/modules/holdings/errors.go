package holdings

import (
	"fmt"
	"time"
)

// OverdraftError reports a SELL that exceeds the known held quantity.
// Reconstruction fails wholesale; quantities are never clamped to zero.
type OverdraftError struct {
	Symbol    string
	Date      time.Time
	Requested float64
	Held      float64
}

func (e *OverdraftError) Error() string {
	return fmt.Sprintf("sell of %v %s on %s exceeds held quantity %v",
		e.Requested, e.Symbol, e.Date.Format("2006-01-02"), e.Held)
}
