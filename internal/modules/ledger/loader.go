package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
)

// Loader reads ledger files into validated, ordered record slices.
// It performs no caching and no I/O retries.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a new ledger loader
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log: log.With().Str("service", "ledger").Logger(),
	}
}

// Load reads the transaction file and returns all transactions sorted by
// (date, symbol). A missing file is an empty ledger, not an error; any invalid
// record aborts the load with a *ValidationError and no partial result.
func (l *Loader) Load(path string) ([]Transaction, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		l.log.Debug().Str("path", path).Msg("Transaction file missing, treating as empty ledger")
		return []Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open transactions file: %w", err)
	}
	defer f.Close()

	txs, err := l.loadTransactions(f)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.File = path
		}
		return nil, err
	}

	l.log.Info().Int("count", len(txs)).Str("path", path).Msg("Loaded transactions")
	return txs, nil
}

// loadTransactions parses and validates a JSON array of transactions.
func (l *Loader) loadTransactions(r io.Reader) ([]Transaction, error) {
	var txs []Transaction
	dec := json.NewDecoder(r)
	if err := dec.Decode(&txs); err != nil {
		return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	for i := range txs {
		if err := txs[i].Validate(); err != nil {
			return nil, &ValidationError{Index: i, ID: txs[i].ID, Reason: err.Error()}
		}
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].Symbol < txs[j].Symbol
	})

	return txs, nil
}

// LoadDividends reads the dividend file. Same all-or-nothing contract as Load;
// output is sorted by (ex-date, symbol).
func (l *Loader) LoadDividends(path string) ([]DividendRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		l.log.Debug().Str("path", path).Msg("Dividend file missing, treating as empty ledger")
		return []DividendRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dividends file: %w", err)
	}
	defer f.Close()

	divs, err := l.loadDividends(f)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.File = path
		}
		return nil, err
	}

	l.log.Info().Int("count", len(divs)).Str("path", path).Msg("Loaded dividends")
	return divs, nil
}

func (l *Loader) loadDividends(r io.Reader) ([]DividendRecord, error) {
	var divs []DividendRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&divs); err != nil {
		return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	for i := range divs {
		if err := divs[i].Validate(); err != nil {
			return nil, &ValidationError{Index: i, ID: divs[i].ID, Reason: err.Error()}
		}
	}

	sort.SliceStable(divs, func(i, j int) bool {
		if !divs[i].ExDate.Equal(divs[j].ExDate) {
			return divs[i].ExDate.Before(divs[j].ExDate)
		}
		return divs[i].Symbol < divs[j].Symbol
	})

	return divs, nil
}

// Symbols returns the distinct (symbol, exchange) pairs in transaction order.
func Symbols(txs []Transaction) [][2]string {
	seen := make(map[string]bool)
	var pairs [][2]string
	for _, tx := range txs {
		key := tx.Symbol + "|" + tx.Exchange
		if !seen[key] {
			seen[key] = true
			pairs = append(pairs, [2]string{tx.Symbol, tx.Exchange})
		}
	}
	return pairs
}
