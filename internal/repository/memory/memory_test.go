package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
)

func seedAccount(t *testing.T, repo *Repository, id string, balance int64) {
	t.Helper()
	require.NoError(t, repo.CreateAccount(context.Background(), &domain.Account{
		ID:      id,
		Email:   id + "@bank.test",
		Role:    domain.RoleCustomer,
		Balance: decimal.NewFromInt(balance),
	}))
}

func TestCreateAccountRejectsDuplicates(t *testing.T) {
	repo := New()
	seedAccount(t, repo, "acct-1", 10)

	err := repo.CreateAccount(context.Background(), &domain.Account{ID: "acct-1"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	err = repo.CreateAccount(context.Background(), &domain.Account{ID: "acct-2", Email: "ACCT-1@bank.test"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestGetAccountByEmailIsCaseInsensitive(t *testing.T) {
	repo := New()
	seedAccount(t, repo, "acct-1", 10)

	got, err := repo.GetAccountByEmail(context.Background(), " Acct-1@Bank.test ")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)

	_, err = repo.GetAccountByEmail(context.Background(), "nobody@bank.test")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	repo := New()
	seedAccount(t, repo, "acct-1", 100)

	updated, err := repo.ConditionalUpdate(ctx, "acct-1", 0, decimal.NewFromInt(-40))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, int64(1), updated.Version)

	_, err = repo.ConditionalUpdate(ctx, "acct-1", 0, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	_, err = repo.ConditionalUpdate(ctx, "acct-1", 1, decimal.NewFromInt(-61))
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)

	_, err = repo.ConditionalUpdate(ctx, "missing", 0, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	stored, err := repo.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, int64(1), stored.Version)
}

func TestConditionalUpdateSingleWinnerPerVersion(t *testing.T) {
	ctx := context.Background()
	repo := New()
	seedAccount(t, repo, "acct-1", 1000)

	const writers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ConditionalUpdate(ctx, "acct-1", 0, decimal.NewFromInt(-1)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	stored, err := repo.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(999)))
}

func TestTransactionProjections(t *testing.T) {
	ctx := context.Background()
	repo := New()
	base := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	records := []domain.Transaction{
		{ID: "tx-2", SenderID: "a", ReceiverID: "b", Amount: decimal.NewFromInt(2), CreatedAt: base.Add(time.Minute)},
		{ID: "tx-1", SenderID: "a", ReceiverID: "c", Amount: decimal.NewFromInt(1), CreatedAt: base},
		{ID: "tx-3", SenderID: "b", ReceiverID: "a", Amount: decimal.NewFromInt(3), CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range records {
		require.NoError(t, repo.AppendTransaction(ctx, &records[i]))
	}
	assert.ErrorIs(t, repo.AppendTransaction(ctx, &records[0]), repository.ErrDuplicate)

	sent, err := repo.ListTransactionsBySender(ctx, "a")
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, "tx-1", sent[0].ID)
	assert.Equal(t, "tx-2", sent[1].ID)

	received, err := repo.ListTransactionsByReceiver(ctx, "a")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "tx-3", received[0].ID)

	all, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := repo.ListTransactionsBySender(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
