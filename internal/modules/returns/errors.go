package returns

import "fmt"

// InsufficientDataError reports that fewer than two valid portfolio value
// points exist in the window, so no return can be computed.
type InsufficientDataError struct {
	Points int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d valid price points, need at least 2", e.Points)
}

// MisalignedBenchmarkError reports a benchmark series with zero trading dates
// overlapping the portfolio series.
type MisalignedBenchmarkError struct {
	Symbol string
}

func (e *MisalignedBenchmarkError) Error() string {
	return fmt.Sprintf("benchmark %s shares no trading dates with the portfolio series", e.Symbol)
}
