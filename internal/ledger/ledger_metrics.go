package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var (
	// LedgerOpsTotal counts engine operations by operation and result.
	LedgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "balances",
			Name:      "ledger_operations_total",
			Help:      "Total ledger operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	// LedgerOpDuration observes operation latency by operation.
	LedgerOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "balances",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	// LedgerAmountTotal sums money moved by committed transactions.
	LedgerAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "balances",
			Name:      "ledger_amount_total",
			Help:      "Total USD moved by committed transactions, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		LedgerOpsTotal,
		LedgerOpDuration,
		LedgerAmountTotal,
	)
}

// observeOp starts timing an operation and returns a function that records
// its duration and outcome.
func observeOp(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		LedgerOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		LedgerOpsTotal.WithLabelValues(op, result(err)).Inc()
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "committed"
	case IsRejection(err):
		return "rejected"
	default:
		return "failed"
	}
}

func observeAmount(kind Kind, amount decimal.Decimal) {
	LedgerAmountTotal.WithLabelValues(string(kind)).Add(amount.InexactFloat64())
}
