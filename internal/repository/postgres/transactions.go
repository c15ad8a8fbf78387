package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
)

const transactionColumns = `id, sender_id, receiver_id, amount::text, created_at`

// AppendTransaction inserts a transfer record. The table rejects updates and deletes.
func (r *Repository) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	const query = `INSERT INTO transactions (id, sender_id, receiver_id, amount, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5)`
	_, err := r.pool.Exec(ctx, query, tx.ID, tx.SenderID, tx.ReceiverID, tx.Amount.String(), tx.CreatedAt)
	return translate(err)
}

// ListTransactionsBySender returns records sent by the account, oldest first.
func (r *Repository) ListTransactionsBySender(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE sender_id = $1 ORDER BY created_at, id`
	return r.listTransactions(ctx, query, accountID)
}

// ListTransactionsByReceiver returns records received by the account, oldest first.
func (r *Repository) ListTransactionsByReceiver(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE receiver_id = $1 ORDER BY created_at, id`
	return r.listTransactions(ctx, query, accountID)
}

// ListTransactions returns the whole history, oldest first.
func (r *Repository) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at, id`
	return r.listTransactions(ctx, query)
}

func (r *Repository) listTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		var (
			tx     domain.Transaction
			amount string
		)
		if err := rows.Scan(&tx.ID, &tx.SenderID, &tx.ReceiverID, &amount, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount for %s: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
