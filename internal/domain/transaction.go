package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of a committed transfer.
type Transaction struct {
	ID         string          `json:"id"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"timestamp"`
}
