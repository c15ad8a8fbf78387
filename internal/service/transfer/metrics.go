package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records transfer outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	transfers      *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	compensations  *prometheus.CounterVec
	unreconciled   prometheus.Counter
}

// NewMetrics registers transfer collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "transfer",
			Name:      "total",
			Help:      "Transfers processed, by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger",
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Latency of transfer requests",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "transfer",
			Name:      "retries_total",
			Help:      "Conditional update retries after version conflicts",
		}, []string{"phase"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "transfer",
			Name:      "compensations_total",
			Help:      "Debit reversals after a failed credit",
		}, []string{"result"}),
		unreconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "transfer",
			Name:      "reconciliation_required_total",
			Help:      "Transfers whose balances committed but whose record was not appended",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transfers, m.duration, m.retries, m.compensations, m.unreconciled)
	}
	return m
}

// Outcome labels an error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrIneligibleAccount):
		return "ineligible_account"
	case errors.Is(err, ErrAuthentication):
		return "authentication_failure"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func (m *Metrics) observe(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	m.transfers.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) retry(phase string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(phase).Inc()
}

func (m *Metrics) compensation(ok bool) {
	if m == nil {
		return
	}
	result := "reversed"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(result).Inc()
}

func (m *Metrics) reconciliation() {
	if m == nil {
		return
	}
	m.unreconciled.Inc()
}
