package transfer

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive with at most two decimal places")
	ErrAccountNotFound     = errors.New("sender or receiver not found")
	ErrSelfTransfer        = errors.New("sender and receiver must be different accounts")
	ErrIneligibleAccount   = errors.New("only customer accounts can send or receive transfers")
	ErrAuthentication      = errors.New("invalid password")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrConcurrencyConflict = errors.New("account was modified concurrently, please resubmit")
	ErrPersistence         = errors.New("transfer could not be persisted")
)
