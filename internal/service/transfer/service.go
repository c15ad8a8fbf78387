// Package transfer moves funds between two customer accounts.
//
// A transfer debits the sender and credits the receiver through versioned
// conditional updates. Neither side holds a lock across I/O: a lost race
// re-reads the account and retries with jittered backoff, up to a bounded
// number of attempts. If the credit cannot be applied after the debit has
// committed, the debit is reversed before the error is returned, so callers
// never observe half of a transfer.
//
// The transaction record is appended only after both balances are committed.
// A failure at that point is reported as ErrPersistence without touching the
// balances, and is logged for reconciliation.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
	"github.com/swadesi/ledger/pkg/backoff"
)

const (
	defaultMaxAttempts   = 5
	defaultBackoffBase   = 5 * time.Millisecond
	defaultBackoffMax    = 100 * time.Millisecond
	defaultNotifyTimeout = 2 * time.Second
	commitTimeout        = 10 * time.Second
	compensationFactor   = 4
)

// Verifier checks a presented secret against a stored credential hash.
type Verifier interface {
	Verify(hash []byte, secret string) bool
}

// Notifier is told about the sender's new balance after a committed transfer.
type Notifier interface {
	Notify(ctx context.Context, accountID string, balance decimal.Decimal) error
}

// Request is an inbound transfer.
type Request struct {
	SenderID   string
	ReceiverID string
	Amount     decimal.Decimal
	Secret     string
}

// Options tunes retry and notification behaviour. Zero values use defaults.
type Options struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	NotifyTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = defaultBackoffMax
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = defaultNotifyTimeout
	}
	return o
}

// Service is the transfer engine.
type Service struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	verifier     Verifier
	notifier     Notifier
	logger       *slog.Logger
	metrics      *Metrics
	opts         Options

	now   func() time.Time
	newID func() string
	sleep func(context.Context, time.Duration) error

	pending sync.WaitGroup
}

// New constructs a Service. notifier and metrics may be nil.
func New(accounts repository.AccountRepository, transactions repository.TransactionRepository, verifier Verifier, notifier Notifier, logger *slog.Logger, metrics *Metrics, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts:     accounts,
		transactions: transactions,
		verifier:     verifier,
		notifier:     notifier,
		logger:       logger,
		metrics:      metrics,
		opts:         opts.withDefaults(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		sleep:        backoff.Sleep,
	}
}

// Transfer moves req.Amount from the sender to the receiver and returns the
// appended transaction record.
func (s *Service) Transfer(ctx context.Context, req Request) (*domain.Transaction, error) {
	start := time.Now()
	record, err := s.transfer(ctx, req)
	s.metrics.observe(err, time.Since(start))
	return record, err
}

// Wait blocks until in-flight notifications have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) transfer(ctx context.Context, req Request) (*domain.Transaction, error) {
	amount := req.Amount
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return nil, ErrInvalidAmount
	}
	if req.SenderID == req.ReceiverID {
		return nil, ErrSelfTransfer
	}

	sender, err := s.lookup(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.lookup(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	// Roles are only revealed to a caller holding the sender's secret.
	if !s.verifier.Verify(sender.CredentialHash, req.Secret) {
		s.logger.Warn("transfer authentication failed", "sender_id", sender.ID)
		return nil, ErrAuthentication
	}
	if !sender.CanTransfer() || !receiver.CanTransfer() {
		return nil, ErrIneligibleAccount
	}
	if sender.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	debited, err := s.debit(ctx, sender, amount)
	if err != nil {
		return nil, err
	}

	// The debit is committed. Everything from here on runs detached from the
	// caller's cancellation so the transfer either completes or is reversed.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if _, err := s.credit(commitCtx, receiver, amount); err != nil {
		return nil, s.compensate(commitCtx, debited, amount, err)
	}

	record := &domain.Transaction{
		ID:         s.newID(),
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Amount:     amount,
		CreatedAt:  s.now(),
	}
	if err := s.transactions.AppendTransaction(commitCtx, record); err != nil {
		s.metrics.reconciliation()
		s.logger.Error("transfer committed but record not appended, reconciliation required",
			"transfer_id", record.ID,
			"sender_id", record.SenderID,
			"receiver_id", record.ReceiverID,
			"amount", amount.String(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: append record: %w", ErrPersistence, err)
	}

	s.logger.Info("transfer committed",
		"transfer_id", record.ID,
		"sender_id", record.SenderID,
		"receiver_id", record.ReceiverID,
		"amount", amount.String(),
	)
	s.notify(ctx, debited.ID, debited.Balance)
	return record, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accounts.GetAccount(ctx, id)
	if err == nil {
		return account, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("%w: load account %s: %w", ErrPersistence, id, err)
}

// debit removes amount from the sender. Each attempt re-checks the balance
// against the freshest read, so a sender drained by a concurrent transfer
// fails with ErrInsufficientFunds rather than going negative.
func (s *Service) debit(ctx context.Context, sender *domain.Account, amount decimal.Decimal) (*domain.Account, error) {
	current := sender
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			s.metrics.retry("debit")
			if err := s.sleep(ctx, backoff.Delay(s.opts.BackoffBase, s.opts.BackoffMax, attempt-1)); err != nil {
				return nil, err
			}
			fresh, err := s.lookup(ctx, sender.ID)
			if err != nil {
				return nil, err
			}
			current = fresh
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if current.Balance.LessThan(amount) {
			return nil, ErrInsufficientFunds
		}

		// A single conditional update is either applied or not; it is not
		// abandoned halfway because the caller gave up.
		updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		updated, err := s.accounts.ConditionalUpdate(updateCtx, current.ID, current.Version, amount.Neg())
		cancel()
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, repository.ErrVersionConflict):
			s.logger.Debug("debit lost version race", "sender_id", current.ID, "version", current.Version, "attempt", attempt+1)
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, ErrInsufficientFunds
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrAccountNotFound
		default:
			return nil, fmt.Errorf("%w: debit %s: %w", ErrPersistence, current.ID, err)
		}
	}
	return nil, ErrConcurrencyConflict
}

// credit adds amount to the receiver, re-reading on version conflicts.
func (s *Service) credit(ctx context.Context, receiver *domain.Account, amount decimal.Decimal) (*domain.Account, error) {
	current := receiver
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			s.metrics.retry("credit")
			if err := s.sleep(ctx, backoff.Delay(s.opts.BackoffBase, s.opts.BackoffMax, attempt-1)); err != nil {
				return nil, fmt.Errorf("%w: credit %s: %w", ErrPersistence, receiver.ID, err)
			}
			fresh, err := s.accounts.GetAccount(ctx, receiver.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: reload %s: %w", ErrPersistence, receiver.ID, err)
			}
			current = fresh
		}
		updated, err := s.accounts.ConditionalUpdate(ctx, current.ID, current.Version, amount)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: credit %s: %w", ErrPersistence, current.ID, err)
		}
		s.logger.Debug("credit lost version race", "receiver_id", current.ID, "version", current.Version, "attempt", attempt+1)
	}
	return nil, ErrConcurrencyConflict
}

// compensate gives amount back to the sender after a failed credit. It returns
// the error the caller should see.
func (s *Service) compensate(ctx context.Context, debited *domain.Account, amount decimal.Decimal, cause error) error {
	current := debited
	limit := s.opts.MaxAttempts * compensationFactor
	for attempt := 0; attempt < limit; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, backoff.Delay(s.opts.BackoffBase, s.opts.BackoffMax, attempt-1)); err != nil {
				break
			}
			fresh, err := s.accounts.GetAccount(ctx, debited.ID)
			if err != nil {
				s.logger.Warn("compensation reload failed", "sender_id", debited.ID, "attempt", attempt+1, "error", err)
				continue
			}
			current = fresh
		}
		_, err := s.accounts.ConditionalUpdate(ctx, current.ID, current.Version, amount)
		if err == nil {
			s.metrics.compensation(true)
			s.logger.Warn("transfer reversed after failed credit", "sender_id", debited.ID, "amount", amount.String(), "cause", cause)
			return cause
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			s.logger.Warn("compensation attempt failed", "sender_id", debited.ID, "attempt", attempt+1, "error", err)
		}
	}
	s.metrics.compensation(false)
	s.logger.Error("transfer debit could not be reversed, reconciliation required",
		"sender_id", debited.ID,
		"amount", amount.String(),
		"cause", cause,
	)
	return fmt.Errorf("%w: reverse debit on %s: %w", ErrPersistence, debited.ID, cause)
}

func (s *Service) notify(ctx context.Context, accountID string, balance decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("transfer notifier panicked", "account_id", accountID, "panic", r)
			}
		}()
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(notifyCtx, accountID, balance); err != nil {
			s.logger.Warn("transfer notification failed", "account_id", accountID, "error", err)
		}
	}()
}
