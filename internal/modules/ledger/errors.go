package ledger

import "fmt"

// ValidationError reports a malformed ledger record. Loading is all-or-nothing:
// the first invalid record aborts the whole load with no partial result.
type ValidationError struct {
	File   string // Source file, if any
	Index  int    // Zero-based record position in the source
	ID     string // Record id, if present
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid record %q at index %d in %s: %s", e.ID, e.Index, e.File, e.Reason)
	}
	return fmt.Sprintf("invalid record at index %d in %s: %s", e.Index, e.File, e.Reason)
}
