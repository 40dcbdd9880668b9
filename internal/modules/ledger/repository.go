package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Repository appends records to the JSON ledger files. Writes go through a
// temp file and rename so a crash never leaves a half-written ledger behind.
type Repository struct {
	transactionsFile string
	dividendsFile    string
	loader           *Loader
	log              zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(transactionsFile, dividendsFile string, log zerolog.Logger) *Repository {
	return &Repository{
		transactionsFile: transactionsFile,
		dividendsFile:    dividendsFile,
		loader:           NewLoader(log),
		log:              log.With().Str("service", "ledger_repository").Logger(),
	}
}

// AppendTransaction validates and appends one transaction, assigning an id if
// the record has none.
func (r *Repository) AppendTransaction(tx Transaction) (*Transaction, error) {
	if err := tx.Validate(); err != nil {
		return nil, &ValidationError{File: r.transactionsFile, Index: -1, ID: tx.ID, Reason: err.Error()}
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	existing, err := r.loader.Load(r.transactionsFile)
	if err != nil {
		return nil, err
	}

	existing = append(existing, tx)
	if err := writeJSONFile(r.transactionsFile, existing); err != nil {
		return nil, err
	}

	r.log.Info().Str("id", tx.ID).Str("symbol", tx.Symbol).Str("side", string(tx.Side)).Msg("Saved transaction")
	return &tx, nil
}

// AppendDividend validates and appends one dividend record.
func (r *Repository) AppendDividend(div DividendRecord) (*DividendRecord, error) {
	if err := div.Validate(); err != nil {
		return nil, &ValidationError{File: r.dividendsFile, Index: -1, ID: div.ID, Reason: err.Error()}
	}
	if div.ID == "" {
		div.ID = uuid.NewString()
	}

	existing, err := r.loader.LoadDividends(r.dividendsFile)
	if err != nil {
		return nil, err
	}

	existing = append(existing, div)
	if err := writeJSONFile(r.dividendsFile, existing); err != nil {
		return nil, err
	}

	r.log.Info().Str("id", div.ID).Str("symbol", div.Symbol).Msg("Saved dividend")
	return &div, nil
}

// writeJSONFile writes data atomically via a temp file in the same directory.
func writeJSONFile(path string, data interface{}) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close ledger file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}
