package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	return NewRepository(
		filepath.Join(dir, "transactions.json"),
		filepath.Join(dir, "dividends.json"),
		zerolog.Nop(),
	)
}

func TestAppendTransactionAssignsIDAndPersists(t *testing.T) {
	repo := newTestRepository(t)

	saved, err := repo.AppendTransaction(Transaction{
		Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Symbol: "bhp", Exchange: "ASX", Side: TradeSideBuy,
		Quantity: 10, Price: 100, Currency: "AUD",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "BHP", saved.Symbol)

	txs, err := repo.loader.Load(repo.transactionsFile)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, saved.ID, txs[0].ID)
}

func TestAppendTransactionRejectsInvalidRecord(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.AppendTransaction(Transaction{Symbol: "BHP"})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	txs, loadErr := repo.loader.Load(repo.transactionsFile)
	require.NoError(t, loadErr)
	assert.Empty(t, txs, "rejected records are never persisted")
}

func TestAppendDividendAccumulates(t *testing.T) {
	repo := newTestRepository(t)
	div := DividendRecord{
		Symbol: "BHP", Exchange: "ASX",
		ExDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount: 1.2, Currency: "AUD",
	}

	_, err := repo.AppendDividend(div)
	require.NoError(t, err)
	_, err = repo.AppendDividend(div)
	require.NoError(t, err)

	divs, err := repo.loader.LoadDividends(repo.dividendsFile)
	require.NoError(t, err)
	assert.Len(t, divs, 2)
}
