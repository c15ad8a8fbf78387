// Package seed loads the demo customers and employees used for local runs.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
	"github.com/swadesi/ledger/pkg/crypto"
)

// Entry describes one demo account.
type Entry struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
	Balance  decimal.Decimal
}

// Demo is the default data set.
var Demo = []Entry{
	{Name: "employee1", Email: "employee1@bank.com", Password: "emp@123", Role: domain.RoleEmployee, Balance: decimal.Zero},
	{Name: "employee2", Email: "employee2@bank.com", Password: "emp@123", Role: domain.RoleEmployee, Balance: decimal.Zero},
	{Name: "alice", Email: "alice@example.com", Password: "password123", Role: domain.RoleCustomer, Balance: decimal.NewFromInt(50000)},
	{Name: "bob", Email: "bob@example.com", Password: "password123", Role: domain.RoleCustomer, Balance: decimal.NewFromInt(100000)},
	{Name: "charlie", Email: "charlie@example.com", Password: "password123", Role: domain.RoleCustomer, Balance: decimal.NewFromInt(75000)},
	{Name: "diana", Email: "diana@example.com", Password: "password123", Role: domain.RoleCustomer, Balance: decimal.NewFromInt(120000)},
}

// Result summarises a seed run.
type Result struct {
	Created []*domain.Account
	Skipped []string
}

// Seeder inserts demo accounts.
type Seeder struct {
	accounts   repository.AccountRepository
	logger     *slog.Logger
	bcryptCost int
	newID      func() string
	now        func() time.Time
}

// New constructs a Seeder.
func New(accounts repository.AccountRepository, logger *slog.Logger, bcryptCost int) *Seeder {
	return &Seeder{
		accounts:   accounts,
		logger:     logger,
		bcryptCost: bcryptCost,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Seed creates every entry whose email is not taken yet. Existing accounts
// are left untouched so the command can be rerun.
func (s *Seeder) Seed(ctx context.Context, entries []Entry) (Result, error) {
	var res Result
	for _, e := range entries {
		if !e.Role.Valid() {
			return res, fmt.Errorf("seed %s: invalid role %q", e.Email, e.Role)
		}
		if e.Balance.IsNegative() {
			return res, fmt.Errorf("seed %s: negative opening balance", e.Email)
		}
		if _, err := s.accounts.GetAccountByEmail(ctx, e.Email); err == nil {
			res.Skipped = append(res.Skipped, e.Email)
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return res, fmt.Errorf("seed %s: %w", e.Email, err)
		}
		hash, err := crypto.HashPasswordCost(e.Password, s.bcryptCost)
		if err != nil {
			return res, fmt.Errorf("seed %s: hash password: %w", e.Email, err)
		}
		now := s.now()
		account := &domain.Account{
			ID:             s.newID(),
			Name:           e.Name,
			Email:          e.Email,
			Role:           e.Role,
			Balance:        e.Balance,
			CredentialHash: hash,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.accounts.CreateAccount(ctx, account); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				res.Skipped = append(res.Skipped, e.Email)
				continue
			}
			return res, fmt.Errorf("seed %s: %w", e.Email, err)
		}
		s.logger.Info("account seeded", "account_id", account.ID, "email", account.Email, "role", string(account.Role))
		res.Created = append(res.Created, account)
	}
	return res, nil
}
