package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role determines which operations an account may take part in.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleEmployee
}

// Account is a party that can hold and move funds.
// Balance is only ever changed through a versioned conditional update.
type Account struct {
	ID             string
	Name           string
	Email          string
	Role           Role
	Balance        decimal.Decimal
	CredentialHash []byte
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanTransfer reports whether the account may send or receive transfers.
func (a Account) CanTransfer() bool {
	return a.Role == RoleCustomer
}
