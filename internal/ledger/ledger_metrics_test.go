package ledger

import (
	"errors"
	"testing"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)
	return m.Counter.GetValue()
}

func TestObserveOp_CountsByResult(t *testing.T) {
	LedgerOpsTotal.Reset()

	observeOp("test_op")(nil)
	observeOp("test_op")(accounts.ErrNegativeBalance)
	observeOp("test_op")(errors.New("connection refused"))

	if got := counterValue(t, LedgerOpsTotal, "test_op", "committed"); got != 1 {
		t.Errorf("expected 1 committed, got %f", got)
	}
	if got := counterValue(t, LedgerOpsTotal, "test_op", "rejected"); got != 1 {
		t.Errorf("expected 1 rejected, got %f", got)
	}
	if got := counterValue(t, LedgerOpsTotal, "test_op", "failed"); got != 1 {
		t.Errorf("expected 1 failed, got %f", got)
	}
}

func TestObserveOp_ObservesHistogram(t *testing.T) {
	LedgerOpDuration.Reset()

	observeOp("hist_test")(nil)

	ch := make(chan prometheus.Metric, 10)
	LedgerOpDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestObserveAmount(t *testing.T) {
	LedgerAmountTotal.Reset()

	observeAmount(KindDeposit, decimal.RequireFromString("10.25"))
	observeAmount(KindDeposit, decimal.RequireFromString("0.75"))

	if got := counterValue(t, LedgerAmountTotal, "deposit"); got != 11 {
		t.Errorf("expected 11, got %f", got)
	}
}

func TestMetrics_Registered(t *testing.T) {
	LedgerOpsTotal.WithLabelValues("registered", "committed").Inc()
	LedgerOpDuration.WithLabelValues("registered").Observe(0.01)
	LedgerAmountTotal.WithLabelValues("registered").Add(1)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"balances_ledger_operations_total":           false,
		"balances_ledger_operation_duration_seconds": false,
		"balances_ledger_amount_total":               false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not registered", name)
		}
	}
}
