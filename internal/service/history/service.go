// Package history serves read-only projections of the transfer log and the
// account view, filtered by what the caller is allowed to see.
package history

import (
	"context"
	"errors"

	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
	"github.com/swadesi/ledger/internal/service/auth"
)

var (
	ErrForbidden       = errors.New("history: access denied")
	ErrAccountNotFound = errors.New("history: account not found")
)

// AccountView is the public shape of an account. It never carries the
// credential hash.
type AccountView struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	Role             domain.Role     `json:"role"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Version          int64           `json:"version"`
}

// Service answers history queries.
type Service struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	logger       *slog.Logger
}

// New constructs a history service.
func New(accounts repository.AccountRepository, transactions repository.TransactionRepository, logger *slog.Logger) Service {
	return Service{accounts: accounts, transactions: transactions, logger: logger}
}

// Sent lists transfers sent by accountID, oldest first.
func (s Service) Sent(ctx context.Context, caller auth.Principal, accountID string) ([]domain.Transaction, error) {
	if !caller.CanRead(accountID) {
		return nil, ErrForbidden
	}
	return nonNil(s.transactions.ListTransactionsBySender(ctx, accountID))
}

// Received lists transfers received by accountID, oldest first.
func (s Service) Received(ctx context.Context, caller auth.Principal, accountID string) ([]domain.Transaction, error) {
	if !caller.CanRead(accountID) {
		return nil, ErrForbidden
	}
	return nonNil(s.transactions.ListTransactionsByReceiver(ctx, accountID))
}

// All lists every transfer. Employees only.
func (s Service) All(ctx context.Context, caller auth.Principal) ([]domain.Transaction, error) {
	if caller.Role != domain.RoleEmployee {
		return nil, ErrForbidden
	}
	return nonNil(s.transactions.ListTransactions(ctx))
}

// Account returns the account view for accountID.
func (s Service) Account(ctx context.Context, caller auth.Principal, accountID string) (AccountView, error) {
	if !caller.CanRead(accountID) {
		return AccountView{}, ErrForbidden
	}
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AccountView{}, ErrAccountNotFound
		}
		return AccountView{}, err
	}
	return View(account), nil
}

// View projects an account onto its public shape.
func View(a *domain.Account) AccountView {
	return AccountView{
		ID:               a.ID,
		Name:             a.Name,
		Email:            a.Email,
		Role:             a.Role,
		AvailableBalance: a.Balance,
		Version:          a.Version,
	}
}

func nonNil(list []domain.Transaction, err error) ([]domain.Transaction, error) {
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Transaction{}
	}
	return list, nil
}
