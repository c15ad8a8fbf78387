package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
)

const accountColumns = `id, name, email, role, available_balance::text, credential_hash, version, created_at, updated_at`

// CreateAccount inserts an account.
func (r *Repository) CreateAccount(ctx context.Context, account *domain.Account) error {
	const query = `INSERT INTO accounts (id, name, email, role, available_balance, credential_hash, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		string(account.Role),
		account.Balance.String(),
		account.CredentialHash,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	return translate(err)
}

// GetAccount fetches an account by identifier.
func (r *Repository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetAccountByEmail fetches an account by login email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

// ConditionalUpdate applies delta only when the row still carries expectedVersion.
// The single UPDATE is atomic per row, so at most one caller wins a given version.
func (r *Repository) ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, delta decimal.Decimal) (*domain.Account, error) {
	query := `UPDATE accounts
		SET available_balance = available_balance + $3::numeric,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + accountColumns
	account, err := scanAccount(r.pool.QueryRow(ctx, query, id, expectedVersion, delta.String()))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// No row matched: either the account is gone or the version moved.
	var current int64
	if err := r.pool.QueryRow(ctx, `SELECT version FROM accounts WHERE id = $1`, id).Scan(&current); err != nil {
		return nil, translate(err)
	}
	return nil, repository.ErrVersionConflict
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		role    string
		balance string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &role, &balance, &a.CredentialHash, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance for %s: %w", a.ID, err)
	}
	a.Role = domain.Role(role)
	a.Balance = parsed
	return &a, nil
}
