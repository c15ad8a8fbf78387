package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/swadesi/ledger/internal/domain"
	"github.com/swadesi/ledger/internal/service/auth"
	"github.com/swadesi/ledger/internal/service/history"
	"github.com/swadesi/ledger/internal/service/transfer"
	"github.com/swadesi/ledger/internal/ws"
)

// Transferer executes fund transfers.
type Transferer interface {
	Transfer(ctx context.Context, req transfer.Request) (*domain.Transaction, error)
}

type transferPayload struct {
	SenderID   string           `json:"senderId"`
	ReceiverID string           `json:"receiverId"`
	Amount     *decimal.Decimal `json:"amount"`
	Secret     string           `json:"secret"`
}

func (r *Router) handleTransfer(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload transferPayload
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// A sender is throttled across every client address it is driven from.
	if sender := strings.TrimSpace(payload.SenderID); sender != "" {
		if !r.admit(w, routeTransferSender, ruleTransferSender, rateLimitKeySender(sender)) {
			return
		}
	}
	if payload.Amount == nil {
		writeError(w, http.StatusBadRequest, transfer.ErrInvalidAmount.Error())
		return
	}
	record, err := r.transfers.Transfer(req.Context(), transfer.Request{
		SenderID:   strings.TrimSpace(payload.SenderID),
		ReceiverID: strings.TrimSpace(payload.ReceiverID),
		Amount:     *payload.Amount,
		Secret:     payload.Secret,
	})
	if err != nil {
		status, msg := transferStatus(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Transaction successful",
		"transaction": record,
	})
}

// transferStatus maps engine errors onto HTTP responses. Persistence failures
// are checked first because they may wrap the conflict that caused them.
func transferStatus(err error) (int, string) {
	switch {
	case errors.Is(err, transfer.ErrPersistence):
		return http.StatusInternalServerError, transfer.ErrPersistence.Error()
	case errors.Is(err, transfer.ErrInvalidAmount):
		return http.StatusBadRequest, transfer.ErrInvalidAmount.Error()
	case errors.Is(err, transfer.ErrSelfTransfer):
		return http.StatusBadRequest, transfer.ErrSelfTransfer.Error()
	case errors.Is(err, transfer.ErrInsufficientFunds):
		return http.StatusBadRequest, transfer.ErrInsufficientFunds.Error()
	case errors.Is(err, transfer.ErrAccountNotFound):
		return http.StatusNotFound, transfer.ErrAccountNotFound.Error()
	case errors.Is(err, transfer.ErrAuthentication):
		return http.StatusUnauthorized, transfer.ErrAuthentication.Error()
	case errors.Is(err, transfer.ErrIneligibleAccount):
		return http.StatusForbidden, transfer.ErrIneligibleAccount.Error()
	case errors.Is(err, transfer.ErrConcurrencyConflict):
		return http.StatusConflict, transfer.ErrConcurrencyConflict.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "server error"
	}
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	session, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	switch {
	case errors.Is(err, auth.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	case err != nil:
		r.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Login successful",
		"role":       session.Account.Role,
		"account_id": session.Account.ID,
		"name":       session.Account.Name,
		"token":      session.Token,
		"expires_in": int(session.ExpiresIn.Seconds()),
	})
}

func (r *Router) handleAllTransactions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, ok := r.principal(w, req)
	if !ok {
		return
	}
	list, err := r.history.All(req.Context(), caller)
	r.writeHistory(w, list, err)
}

func (r *Router) handleSent(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, ok := r.principal(w, req)
	if !ok {
		return
	}
	list, err := r.history.Sent(req.Context(), caller, req.PathValue("id"))
	r.writeHistory(w, list, err)
}

func (r *Router) handleReceived(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, ok := r.principal(w, req)
	if !ok {
		return
	}
	list, err := r.history.Received(req.Context(), caller, req.PathValue("id"))
	r.writeHistory(w, list, err)
}

func (r *Router) handleAccount(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	caller, ok := r.principal(w, req)
	if !ok {
		return
	}
	view, err := r.history.Account(req.Context(), caller, req.PathValue("id"))
	switch {
	case errors.Is(err, history.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, history.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case err != nil:
		r.logger.Error("account lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (r *Router) handleBalanceWS(w http.ResponseWriter, req *http.Request) {
	caller, ok := r.principal(w, req)
	if !ok {
		return
	}
	accountID := strings.TrimSpace(req.URL.Query().Get("account_id"))
	if accountID == "" {
		accountID = caller.AccountID
	}
	if !caller.CanRead(accountID) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(accountID, client)
	go func() {
		defer func() {
			r.hub.Unregister(accountID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) principal(w http.ResponseWriter, req *http.Request) (auth.Principal, bool) {
	p, ok := principalFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return p, ok
}

func (r *Router) writeHistory(w http.ResponseWriter, list []domain.Transaction, err error) {
	switch {
	case errors.Is(err, history.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	case err != nil:
		r.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
	default:
		writeJSON(w, http.StatusOK, list)
	}
}
