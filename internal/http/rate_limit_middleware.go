package httpx

import (
	"net/http"
	"strings"
	"time"
)

// rateRule is a request budget per window.
type rateRule struct {
	limit  int
	window time.Duration
}

var (
	ruleLogin          = rateRule{limit: 12, window: time.Minute}
	ruleTransfer       = rateRule{limit: 30, window: time.Minute}
	ruleTransferSender = rateRule{limit: 10, window: time.Minute}
	ruleRead           = rateRule{limit: 120, window: time.Minute}
	ruleWebsocket      = rateRule{limit: 30, window: 30 * time.Second}
)

const routeTransferSender = "/transfer:sender"

// rateBucket scopes a caller key to a route, so traffic on one route never
// spends another route's budget.
func rateBucket(route, key string) string {
	return route + "|" + key
}

// admit charges one request for key against the route budget. It writes the
// 429 response and returns false when the budget is spent.
func (r *Router) admit(w http.ResponseWriter, route string, rule rateRule, key string) bool {
	if rule.limit <= 0 || r.limiter == nil {
		return true
	}
	decision := r.limiter.Allow(rateBucket(route, key), rule.limit, rule.window)
	r.applyRateHeaders(w, rule.limit, decision)
	if decision.allowed {
		return true
	}
	r.metrics.rateLimited(route, rateMetricKey(key))
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// withRateLimit throttles next under rule, keyed by keyFn (client IP when empty).
func (r *Router) withRateLimit(route string, rule rateRule, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		if !r.admit(w, route, rule, key) {
			return
		}
		next(w, req)
	}
}

// handlerAuthRate authenticates first so the budget belongs to the account.
func (r *Router) handlerAuthRate(route string, rule rateRule, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, rule, rateLimitKeyAccount, next))
}

func rateLimitKeyAccount(req *http.Request) string {
	if p, ok := principalFromContext(req.Context()); ok && p.AccountID != "" {
		return "account:" + p.AccountID
	}
	return ""
}

func rateLimitKeySender(senderID string) string {
	return "sender:" + strings.TrimSpace(senderID)
}

func rateLimitKeyIP(req *http.Request) string {
	host := clientIP(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func rateMetricKey(key string) string {
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	if key == "" {
		return "unknown"
	}
	return key
}
