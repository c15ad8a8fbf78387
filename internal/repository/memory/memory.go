// Package memory provides process-local implementations of the repository
// interfaces. Balance changes follow the same versioned conditional-update
// contract as the PostgreSQL repository.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
)

// Repository keeps accounts and transactions in maps guarded by mutexes.
type Repository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	byEmail  map[string]string

	txMu         sync.RWMutex
	transactions []domain.Transaction
	seq          map[string]int

	now func() time.Time
}

var (
	_ repository.AccountRepository     = (*Repository)(nil)
	_ repository.TransactionRepository = (*Repository)(nil)
)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		accounts: make(map[string]domain.Account),
		byEmail:  make(map[string]string),
		seq:      make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccount stores a new account. Ids and emails must be unique.
func (r *Repository) CreateAccount(_ context.Context, account *domain.Account) error {
	email := strings.ToLower(strings.TrimSpace(account.Email))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; ok {
		return repository.ErrDuplicate
	}
	if email != "" {
		if _, ok := r.byEmail[email]; ok {
			return repository.ErrDuplicate
		}
		r.byEmail[email] = account.ID
	}
	stored := *account
	stored.CredentialHash = append([]byte(nil), account.CredentialHash...)
	r.accounts[account.ID] = stored
	return nil
}

// GetAccount returns a copy of the account.
func (r *Repository) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

// GetAccountByEmail looks an account up by its login email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetAccount(ctx, id)
}

// ConditionalUpdate applies delta when the stored version matches expectedVersion.
func (r *Repository) ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, delta decimal.Decimal) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Version != expectedVersion {
		return nil, repository.ErrVersionConflict
	}
	next := a.Balance.Add(delta)
	if next.IsNegative() {
		return nil, repository.ErrInsufficientBalance
	}
	a.Balance = next
	a.Version++
	a.UpdatedAt = r.now()
	r.accounts[id] = a
	return &a, nil
}

// AppendTransaction adds a record to the log. Records are never changed afterwards.
func (r *Repository) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()
	if _, ok := r.seq[tx.ID]; ok {
		return repository.ErrDuplicate
	}
	r.seq[tx.ID] = len(r.transactions)
	r.transactions = append(r.transactions, *tx)
	return nil
}

// ListTransactionsBySender returns records sent by accountID, oldest first.
func (r *Repository) ListTransactionsBySender(_ context.Context, accountID string) ([]domain.Transaction, error) {
	return r.filter(func(tx domain.Transaction) bool { return tx.SenderID == accountID }), nil
}

// ListTransactionsByReceiver returns records received by accountID, oldest first.
func (r *Repository) ListTransactionsByReceiver(_ context.Context, accountID string) ([]domain.Transaction, error) {
	return r.filter(func(tx domain.Transaction) bool { return tx.ReceiverID == accountID }), nil
}

// ListTransactions returns every record, oldest first.
func (r *Repository) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	return r.filter(func(domain.Transaction) bool { return true }), nil
}

// Ping always succeeds; it lets the in-memory repository stand in for a database health check.
func (r *Repository) Ping(context.Context) error {
	return nil
}

func (r *Repository) filter(keep func(domain.Transaction) bool) []domain.Transaction {
	r.txMu.RLock()
	out := make([]domain.Transaction, 0)
	for _, tx := range r.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	r.txMu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// TotalBalance sums every account balance.
func (r *Repository) TotalBalance() decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, a := range r.accounts {
		total = total.Add(a.Balance)
	}
	return total
}
