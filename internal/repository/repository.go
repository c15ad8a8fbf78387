package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
)

// AccountRepository persists accounts and guards every balance change behind
// a version check.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	// ConditionalUpdate adds delta to the balance and bumps the version, but only
	// if the stored version equals expectedVersion. It returns ErrVersionConflict
	// when the version moved, ErrInsufficientBalance when the result would be
	// negative, and ErrNotFound for unknown ids.
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, delta decimal.Decimal) (*domain.Account, error)
}

// TransactionRepository is the append-only transfer history.
type TransactionRepository interface {
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
	ListTransactionsBySender(ctx context.Context, accountID string) ([]domain.Transaction, error)
	ListTransactionsByReceiver(ctx context.Context, accountID string) ([]domain.Transaction, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
}
