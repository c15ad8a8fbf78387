// Package notify delivers post-transfer balance updates. Every sink here is
// best effort: the transfer engine logs a returned error and moves on.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/ws"
)

// Message is the payload handed to downstream consumers.
type Message struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	SentAt    time.Time       `json:"sent_at"`
}

// Sink receives balance updates.
type Sink interface {
	Notify(ctx context.Context, accountID string, balance decimal.Decimal) error
}

func newMessage(accountID string, balance decimal.Decimal) Message {
	return Message{AccountID: accountID, Balance: balance, SentAt: time.Now().UTC()}
}

// Logger writes each update to a structured log.
type Logger struct {
	log *slog.Logger
}

// NewLogger constructs a log-only sink.
func NewLogger(log *slog.Logger) Logger {
	return Logger{log: log}
}

// Notify implements Sink.
func (l Logger) Notify(_ context.Context, accountID string, balance decimal.Decimal) error {
	l.log.Info("balance notification", "account_id", accountID, "balance", balance.String())
	return nil
}

// Hub pushes updates to websocket subscribers of the account.
type Hub struct {
	hub *ws.Hub
}

// NewHub wraps a websocket hub as a Sink.
func NewHub(hub *ws.Hub) Hub {
	return Hub{hub: hub}
}

// Notify implements Sink.
func (h Hub) Notify(_ context.Context, accountID string, balance decimal.Decimal) error {
	payload, err := json.Marshal(newMessage(accountID, balance))
	if err != nil {
		return err
	}
	h.hub.Broadcast(accountID, payload)
	return nil
}

// Multi fans an update out to several sinks and joins their errors.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, accountID string, balance decimal.Decimal) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, accountID, balance); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
