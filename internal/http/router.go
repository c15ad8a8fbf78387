package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swadesi/ledger/internal/service/auth"
	"github.com/swadesi/ledger/internal/service/history"
	"github.com/swadesi/ledger/internal/ws"
)

// Deps carries the collaborators the router dispatches to.
type Deps struct {
	Logger    *slog.Logger
	Transfers Transferer
	Auth      auth.Service
	History   history.Service
	Hub       *ws.Hub
	Limiter   RateLimiter
	Registry  *prometheus.Registry
	DBHealth  func(context.Context) error
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	transfers Transferer
	auth      auth.Service
	history   history.Service
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	metrics   *httpMetrics
	gatherer  prometheus.Gatherer
	dbHealth  func(context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    deps.Logger,
		transfers: deps.Transfers,
		auth:      deps.Auth,
		history:   deps.History,
		hub:       deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  deps.Limiter,
		metrics:  newHTTPMetrics(registry),
		gatherer: registry,
		dbHealth: deps.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.hub == nil {
		r.hub = ws.NewHub()
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/login", r.audit("/login", r.withRateLimit("/login", ruleLogin, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/transfer", r.audit("/transfer", r.withRateLimit("/transfer", ruleTransfer, rateLimitKeyIP, r.handleTransfer)))
	r.mux.HandleFunc("/transactions", r.audit("/transactions", r.handlerAuthRate("/transactions", ruleRead, r.handleAllTransactions)))
	r.mux.HandleFunc("/transactions/sender/{id}", r.audit("/transactions/sender", r.handlerAuthRate("/transactions/sender", ruleRead, r.handleSent)))
	r.mux.HandleFunc("/transactions/receiver/{id}", r.audit("/transactions/receiver", r.handlerAuthRate("/transactions/receiver", ruleRead, r.handleReceived)))
	r.mux.HandleFunc("/spendings/{id}", r.audit("/spendings", r.handlerAuthRate("/spendings", ruleRead, r.handleSent)))
	r.mux.HandleFunc("/earnings/{id}", r.audit("/earnings", r.handlerAuthRate("/earnings", ruleRead, r.handleReceived)))
	r.mux.HandleFunc("/accounts/{id}", r.audit("/accounts", r.handlerAuthRate("/accounts", ruleRead, r.handleAccount)))
	r.mux.HandleFunc("/ws/balance", r.audit("/ws/balance", r.handlerAuthRate("/ws/balance", ruleWebsocket, r.handleBalanceWS)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// audit logs every request and records its metrics under the route label.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.observe(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if p, ok := principalFromContext(ctx); ok {
			actor = string(p.Role)
			fields = append(fields, "account_id", p.AccountID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
