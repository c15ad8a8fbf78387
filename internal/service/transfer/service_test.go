package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
	"github.com/swadesi/ledger/internal/repository/memory"
	"github.com/swadesi/ledger/pkg/crypto"
)

// plainVerifier treats the stored hash as the secret itself.
type plainVerifier struct{}

func (plainVerifier) Verify(hash []byte, secret string) bool { return string(hash) == secret }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

type notification struct {
	accountID string
	balance   decimal.Decimal
}

func (n *recordingNotifier) Notify(_ context.Context, accountID string, balance decimal.Decimal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{accountID: accountID, balance: balance})
	return n.err
}

func (n *recordingNotifier) snapshot() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

// scriptedAccounts lets a test intercept conditional updates.
type scriptedAccounts struct {
	*memory.Repository
	mu    sync.Mutex
	calls map[string]int
	hook  func(id string, delta decimal.Decimal, call int) error
}

func (s *scriptedAccounts) ConditionalUpdate(ctx context.Context, id string, version int64, delta decimal.Decimal) (*domain.Account, error) {
	s.mu.Lock()
	s.calls[id]++
	call := s.calls[id]
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(id, delta, call); err != nil {
			return nil, err
		}
	}
	return s.Repository.ConditionalUpdate(ctx, id, version, delta)
}

type failingLog struct {
	*memory.Repository
	err error
}

func (f failingLog) AppendTransaction(context.Context, *domain.Transaction) error { return f.err }

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func addAccount(t *testing.T, repo *memory.Repository, id string, role domain.Role, balance string) {
	t.Helper()
	require.NoError(t, repo.CreateAccount(context.Background(), &domain.Account{
		ID:             id,
		Name:           id,
		Email:          id + "@bank.test",
		Role:           role,
		Balance:        dec(balance),
		CredentialHash: []byte("pw-" + id),
	}))
}

func newTestService(accounts repository.AccountRepository, txs repository.TransactionRepository, notifier Notifier, opts Options) *Service {
	svc := New(accounts, txs, plainVerifier{}, notifier, newLogger(), nil, opts)
	svc.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return svc
}

func balanceOf(t *testing.T, repo *memory.Repository, id string) decimal.Decimal {
	t.Helper()
	a, err := repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func TestTransferCommitsAndRecords(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "50")
	notifier := &recordingNotifier{}
	svc := newTestService(repo, repo, notifier, Options{})

	record, err := svc.Transfer(ctx, Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("40"), Secret: "pw-alice"})
	require.NoError(t, err)
	svc.Wait()

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "alice", record.SenderID)
	assert.Equal(t, "bob", record.ReceiverID)
	assert.True(t, record.Amount.Equal(dec("40")))
	assert.False(t, record.CreatedAt.IsZero())

	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("60")))
	assert.True(t, balanceOf(t, repo, "bob").Equal(dec("90")))

	sent, err := repo.ListTransactionsBySender(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, record.ID, sent[0].ID)

	received, err := repo.ListTransactionsByReceiver(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, record.ID, received[0].ID)

	calls := notifier.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].accountID)
	assert.True(t, calls[0].balance.Equal(dec("60")))

	alice, err := repo.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.Version)
}

func TestTransferRejectionsLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "zero amount", req: Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("0"), Secret: "pw-alice"}, wantErr: ErrInvalidAmount},
		{name: "negative amount", req: Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("-5"), Secret: "pw-alice"}, wantErr: ErrInvalidAmount},
		{name: "sub-cent amount", req: Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("1.005"), Secret: "pw-alice"}, wantErr: ErrInvalidAmount},
		{name: "invalid amount wins over unknown sender", req: Request{SenderID: "ghost", ReceiverID: "bob", Amount: dec("-1"), Secret: "x"}, wantErr: ErrInvalidAmount},
		{name: "self transfer", req: Request{SenderID: "alice", ReceiverID: "alice", Amount: dec("10"), Secret: "pw-alice"}, wantErr: ErrSelfTransfer},
		{name: "unknown sender", req: Request{SenderID: "ghost", ReceiverID: "bob", Amount: dec("10"), Secret: "x"}, wantErr: ErrAccountNotFound},
		{name: "unknown receiver", req: Request{SenderID: "alice", ReceiverID: "ghost", Amount: dec("10"), Secret: "pw-alice"}, wantErr: ErrAccountNotFound},
		{name: "employee receiver", req: Request{SenderID: "alice", ReceiverID: "emp", Amount: dec("10"), Secret: "pw-alice"}, wantErr: ErrIneligibleAccount},
		{name: "employee sender", req: Request{SenderID: "emp", ReceiverID: "bob", Amount: dec("10"), Secret: "pw-emp"}, wantErr: ErrIneligibleAccount},
		{name: "employee sender with wrong secret", req: Request{SenderID: "emp", ReceiverID: "bob", Amount: dec("10"), Secret: "nope"}, wantErr: ErrAuthentication},
		{name: "employee receiver with wrong secret", req: Request{SenderID: "alice", ReceiverID: "emp", Amount: dec("10"), Secret: "nope"}, wantErr: ErrAuthentication},
		{name: "wrong secret", req: Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("10"), Secret: "nope"}, wantErr: ErrAuthentication},
		{name: "wrong secret with insufficient balance", req: Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("1000"), Secret: "nope"}, wantErr: ErrAuthentication},
		{name: "insufficient funds", req: Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("30.01"), Secret: "pw-alice"}, wantErr: ErrInsufficientFunds},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := memory.New()
			addAccount(t, repo, "alice", domain.RoleCustomer, "30")
			addAccount(t, repo, "bob", domain.RoleCustomer, "50")
			addAccount(t, repo, "emp", domain.RoleEmployee, "0")
			notifier := &recordingNotifier{}
			svc := newTestService(repo, repo, notifier, Options{})

			record, err := svc.Transfer(ctx, tc.req)
			svc.Wait()
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, record)

			assert.True(t, balanceOf(t, repo, "alice").Equal(dec("30")))
			assert.True(t, balanceOf(t, repo, "bob").Equal(dec("50")))
			all, err := repo.ListTransactions(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Empty(t, notifier.snapshot())
		})
	}
}

func TestTransferWithBcryptVerifier(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	hash, err := crypto.HashPasswordCost("alice@123", 4)
	require.NoError(t, err)
	require.NoError(t, repo.CreateAccount(ctx, &domain.Account{ID: "alice", Email: "alice@bank.test", Role: domain.RoleCustomer, Balance: dec("10"), CredentialHash: hash}))
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	svc := New(repo, repo, crypto.BcryptVerifier{}, nil, newLogger(), nil, Options{})

	_, err = svc.Transfer(ctx, Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("2.50"), Secret: "wrong"})
	require.ErrorIs(t, err, ErrAuthentication)

	_, err = svc.Transfer(ctx, Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("2.50"), Secret: "alice@123"})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, repo, "bob").Equal(dec("2.5")))
}

func TestTransferCancelledBeforeCommitMutatesNothing(t *testing.T) {
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	svc := newTestService(repo, repo, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Transfer(ctx, Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("10"), Secret: "pw-alice"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("100")))
	assert.True(t, balanceOf(t, repo, "bob").Equal(dec("0")))
}

func TestTransferDebitConflictsExhaustRetries(t *testing.T) {
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	accounts := &scriptedAccounts{Repository: repo, calls: map[string]int{}}
	accounts.hook = func(id string, _ decimal.Decimal, _ int) error {
		if id == "alice" {
			return repository.ErrVersionConflict
		}
		return nil
	}
	svc := newTestService(accounts, repo, nil, Options{MaxAttempts: 3})

	_, err := svc.Transfer(context.Background(), Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("10"), Secret: "pw-alice"})
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 3, accounts.calls["alice"])
	assert.Zero(t, accounts.calls["bob"])
	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("100")))
}

func TestTransferDebitRetrySucceedsAfterConflict(t *testing.T) {
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	accounts := &scriptedAccounts{Repository: repo, calls: map[string]int{}}
	accounts.hook = func(id string, _ decimal.Decimal, call int) error {
		if id == "alice" && call == 1 {
			// A concurrent writer spends 50 between our read and our update.
			if _, err := repo.ConditionalUpdate(context.Background(), "alice", 0, dec("-50")); err != nil {
				return err
			}
			return repository.ErrVersionConflict
		}
		return nil
	}
	svc := newTestService(accounts, repo, nil, Options{})

	_, err := svc.Transfer(context.Background(), Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("40"), Secret: "pw-alice"})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("10")))
	assert.True(t, balanceOf(t, repo, "bob").Equal(dec("40")))
}

func TestTransferRevalidatesBalanceOnRetry(t *testing.T) {
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	accounts := &scriptedAccounts{Repository: repo, calls: map[string]int{}}
	accounts.hook = func(id string, _ decimal.Decimal, call int) error {
		if id == "alice" && call == 1 {
			if _, err := repo.ConditionalUpdate(context.Background(), "alice", 0, dec("-70")); err != nil {
				return err
			}
			return repository.ErrVersionConflict
		}
		return nil
	}
	svc := newTestService(accounts, repo, nil, Options{})

	_, err := svc.Transfer(context.Background(), Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("40"), Secret: "pw-alice"})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("30")))
	assert.True(t, balanceOf(t, repo, "bob").Equal(dec("0")))
}

func TestTransferCompensatesFailedCredit(t *testing.T) {
	tests := []struct {
		name      string
		creditErr error
		wantErr   error
	}{
		{name: "credit conflicts", creditErr: repository.ErrVersionConflict, wantErr: ErrConcurrencyConflict},
		{name: "credit storage fault", creditErr: errors.New("disk on fire"), wantErr: ErrPersistence},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := memory.New()
			addAccount(t, repo, "alice", domain.RoleCustomer, "100")
			addAccount(t, repo, "bob", domain.RoleCustomer, "5")
			accounts := &scriptedAccounts{Repository: repo, calls: map[string]int{}}
			accounts.hook = func(id string, _ decimal.Decimal, _ int) error {
				if id == "bob" {
					return tc.creditErr
				}
				return nil
			}
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)
			notifier := &recordingNotifier{}
			svc := New(accounts, repo, plainVerifier{}, notifier, newLogger(), metrics, Options{MaxAttempts: 3})
			svc.sleep = func(context.Context, time.Duration) error { return nil }

			_, err := svc.Transfer(ctx, Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("40"), Secret: "pw-alice"})
			svc.Wait()
			require.ErrorIs(t, err, tc.wantErr)

			alice, err := repo.GetAccount(ctx, "alice")
			require.NoError(t, err)
			assert.True(t, alice.Balance.Equal(dec("100")))
			assert.Equal(t, int64(2), alice.Version, "debit and reversal both bump the version")
			assert.True(t, balanceOf(t, repo, "bob").Equal(dec("5")))

			all, err := repo.ListTransactions(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Empty(t, notifier.snapshot())
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.compensations.WithLabelValues("reversed")))
		})
	}
}

func TestTransferCompensationFailureSurfacesPersistence(t *testing.T) {
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	accounts := &scriptedAccounts{Repository: repo, calls: map[string]int{}}
	accounts.hook = func(id string, delta decimal.Decimal, _ int) error {
		if id == "bob" || (id == "alice" && delta.IsPositive()) {
			return errors.New("storage unavailable")
		}
		return nil
	}
	svc := newTestService(accounts, repo, nil, Options{MaxAttempts: 2})

	_, err := svc.Transfer(context.Background(), Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("40"), Secret: "pw-alice"})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1+2*compensationFactor, accounts.calls["alice"])
}

func TestTransferAppendFailureKeepsBalances(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	notifier := &recordingNotifier{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := New(repo, failingLog{Repository: repo, err: errors.New("log down")}, plainVerifier{}, notifier, newLogger(), metrics, Options{})

	_, err := svc.Transfer(ctx, Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("40"), Secret: "pw-alice"})
	svc.Wait()
	require.ErrorIs(t, err, ErrPersistence)

	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("60")))
	assert.True(t, balanceOf(t, repo, "bob").Equal(dec("40")))
	assert.Empty(t, notifier.snapshot())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.unreconciled))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transfers.WithLabelValues("persistence_failure")))
}

func TestTransferNotificationFailureIsIgnored(t *testing.T) {
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	svc := newTestService(repo, repo, notifier, Options{})

	record, err := svc.Transfer(context.Background(), Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("1"), Secret: "pw-alice"})
	svc.Wait()
	require.NoError(t, err)
	assert.NotNil(t, record)
	assert.Len(t, notifier.snapshot(), 1)
	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("99")))
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, string, decimal.Decimal) error { panic("boom") }

func TestTransferSurvivesPanickingNotifier(t *testing.T) {
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	svc := newTestService(repo, repo, panickingNotifier{}, Options{})

	_, err := svc.Transfer(context.Background(), Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("1"), Secret: "pw-alice"})
	svc.Wait()
	require.NoError(t, err)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	addAccount(t, repo, "carol", domain.RoleCustomer, "0")
	svc := New(repo, repo, plainVerifier{}, nil, newLogger(), nil, Options{MaxAttempts: 10, BackoffBase: time.Microsecond, BackoffMax: time.Millisecond})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, receiver := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(i int, receiver string) {
			defer wg.Done()
			_, errs[i] = svc.Transfer(ctx, Request{SenderID: "alice", ReceiverID: receiver, Amount: dec("60"), Secret: "pw-alice"})
		}(i, receiver)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	}
	assert.Equal(t, 1, successes)
	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("40")))
	assert.True(t, repo.TotalBalance().Equal(dec("100")))

	all, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		addAccount(t, repo, id, domain.RoleCustomer, "25")
	}
	total := repo.TotalBalance()
	svc := New(repo, repo, plainVerifier{}, nil, newLogger(), nil, Options{MaxAttempts: 20, BackoffBase: time.Microsecond, BackoffMax: 200 * time.Microsecond})

	const workers = 16
	const perWorker = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				from := ids[(w+i)%len(ids)]
				to := ids[(w+i+1+w%3)%len(ids)]
				if from == to {
					continue
				}
				amount := decimal.NewFromInt(int64(1 + (w*i)%9))
				_, err := svc.Transfer(ctx, Request{SenderID: from, ReceiverID: to, Amount: amount, Secret: "pw-" + from})
				switch {
				case err == nil:
					mu.Lock()
					committed++
					mu.Unlock()
				case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrConcurrencyConflict):
				default:
					t.Errorf("unexpected transfer error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.True(t, repo.TotalBalance().Equal(total), "total balance changed: %s != %s", repo.TotalBalance(), total)
	for _, id := range ids {
		assert.False(t, balanceOf(t, repo, id).IsNegative(), fmt.Sprintf("account %s went negative", id))
	}
	all, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, committed)
}

func TestResubmitAfterConflictCommitsOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	addAccount(t, repo, "alice", domain.RoleCustomer, "100")
	addAccount(t, repo, "bob", domain.RoleCustomer, "0")
	accounts := &scriptedAccounts{Repository: repo, calls: map[string]int{}}
	accounts.hook = func(id string, _ decimal.Decimal, call int) error {
		if id == "bob" && call <= 2 {
			return repository.ErrVersionConflict
		}
		return nil
	}
	svc := newTestService(accounts, repo, nil, Options{MaxAttempts: 2})
	req := Request{SenderID: "alice", ReceiverID: "bob", Amount: dec("30"), Secret: "pw-alice"}

	_, err := svc.Transfer(ctx, req)
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	_, err = svc.Transfer(ctx, req)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, repo, "alice").Equal(dec("70")))
	assert.True(t, balanceOf(t, repo, "bob").Equal(dec("30")))
	all, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "committed", Outcome(nil))
	assert.Equal(t, "persistence_failure", Outcome(fmt.Errorf("%w: x: %w", ErrPersistence, ErrConcurrencyConflict)))
	assert.Equal(t, "concurrency_conflict", Outcome(ErrConcurrencyConflict))
	assert.Equal(t, "cancelled", Outcome(context.DeadlineExceeded))
	assert.Equal(t, "error", Outcome(errors.New("other")))
}
