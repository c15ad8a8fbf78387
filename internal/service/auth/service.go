package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/repository"
	jwtpkg "github.com/swadesi/ledger/pkg/jwt"
)

var (
	ErrUnknownAccount     = errors.New("auth: user not found")
	ErrInvalidCredentials = errors.New("auth: invalid password")
	ErrTokenRequired      = errors.New("auth: token required")
	ErrTokenInvalid       = errors.New("auth: token invalid")
)

// Verifier checks a presented secret against a stored hash.
type Verifier interface {
	Verify(hash []byte, secret string) bool
}

// Config controls token issuance.
type Config struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

// Principal is the caller identified by a bearer token.
type Principal struct {
	AccountID string
	Role      domain.Role
}

// CanRead reports whether the principal may read data owned by accountID.
func (p Principal) CanRead(accountID string) bool {
	return p.Role == domain.RoleEmployee || p.AccountID == accountID
}

// Session is the result of a successful login.
type Session struct {
	Account   *domain.Account
	Token     string
	ExpiresIn time.Duration
}

// Service handles authentication workflows.
type Service struct {
	accounts repository.AccountRepository
	verifier Verifier
	logger   *slog.Logger
	cfg      Config
}

// New constructs a Service.
func New(accounts repository.AccountRepository, verifier Verifier, logger *slog.Logger, cfg Config) Service {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	return Service{accounts: accounts, verifier: verifier, logger: logger, cfg: cfg}
}

// Login authenticates an account holder and returns a signed access token.
func (s Service) Login(ctx context.Context, email, password string) (Session, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrUnknownAccount
		}
		return Session{}, err
	}
	if !s.verifier.Verify(account.CredentialHash, password) {
		s.logger.Warn("login rejected", "account_id", account.ID)
		return Session{}, ErrInvalidCredentials
	}
	token, err := jwtpkg.GenerateToken(account.ID, string(account.Role), s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("account logged in", "account_id", account.ID, "role", string(account.Role))
	return Session{Account: account, Token: token, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

// Authorize validates a bearer token and returns the caller it identifies.
// The account must still exist.
func (s Service) Authorize(ctx context.Context, token string) (Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Principal{}, ErrTokenRequired
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return Principal{}, ErrTokenInvalid
	}
	account, err := s.accounts.GetAccount(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Principal{}, ErrTokenInvalid
		}
		return Principal{}, err
	}
	return Principal{AccountID: account.ID, Role: account.Role}, nil
}
