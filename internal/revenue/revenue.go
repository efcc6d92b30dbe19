// Package revenue aggregates company revenue per catalog service from
// completed-order payments.
package revenue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/balances/internal/money"
	"github.com/mbd888/balances/internal/orders"
	"github.com/mbd888/balances/internal/traces"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// PriceSource selects how a payment's revenue is attributed to services.
type PriceSource string

const (
	// PriceCatalog values each line at the current catalog price.
	PriceCatalog PriceSource = "catalog"
	// PriceLocked splits the amount actually paid across the order's lines
	// in proportion to their catalog subtotals.
	PriceLocked PriceSource = "locked"
)

// ParsePriceSource validates a configured price source name.
func ParsePriceSource(s string) (PriceSource, error) {
	switch PriceSource(s) {
	case PriceCatalog, PriceLocked:
		return PriceSource(s), nil
	default:
		return "", fmt.Errorf("unknown revenue price source %q (want %q or %q)", s, PriceCatalog, PriceLocked)
	}
}

var (
	ErrNoRevenueInPeriod = errors.New("no revenue in period")
	ErrInvalidPeriod     = errors.New("invalid period")
)

// Payment is a PaymentToCompany transaction joined with its order's lines.
type Payment struct {
	TransactionID int64
	OrderID       int64
	Amount        decimal.Decimal
	PaidAt        time.Time
	Items         []orders.Item
}

// Source provides the payments recorded in [from, to).
type Source interface {
	PaymentsBetween(ctx context.Context, from, to time.Time) ([]Payment, error)
}

// Aggregator computes revenue reports.
type Aggregator struct {
	source          Source
	priceSource     PriceSource
	reportsFromYear int
	now             func() time.Time
	logger          *slog.Logger
}

// DefaultReportsFromYear is the first year monthly reports cover.
const DefaultReportsFromYear = 2020

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPriceSource sets how line revenue is priced.
func WithPriceSource(ps PriceSource) Option {
	return func(a *Aggregator) {
		a.priceSource = ps
	}
}

// WithReportsFromYear sets the founding year; monthly reports cover the
// years after it.
func WithReportsFromYear(year int) Option {
	return func(a *Aggregator) {
		a.reportsFromYear = year
	}
}

// WithClock sets the clock used to reject report years in the future.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an aggregator over source.
func NewAggregator(source Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:          source,
		priceSource:     PriceCatalog,
		reportsFromYear: DefaultReportsFromYear,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RevenueByService sums revenue per service name over payments whose UTC
// calendar date lies in [start, end].
func (a *Aggregator) RevenueByService(ctx context.Context, start, end time.Time) (map[string]decimal.Decimal, error) {
	from, to := dateOf(start), dateOf(end)
	ctx, span := traces.StartSpan(ctx, "revenue.RevenueByService",
		attribute.String("period.start", from.Format(time.DateOnly)),
		attribute.String("period.end", to.Format(time.DateOnly)),
		attribute.String("price_source", string(a.priceSource)),
	)
	defer span.End()

	totals, err := a.revenueByService(ctx, from, to)
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}
	return totals, nil
}

func (a *Aggregator) revenueByService(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidPeriod, to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	payments, err := a.source.PaymentsBetween(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	totals := make(map[string]decimal.Decimal)
	for _, p := range payments {
		for i, line := range a.lineRevenue(p) {
			name := p.Items[i].ServiceName
			totals[name] = totals[name].Add(line)
		}
	}
	if len(totals) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRevenueInPeriod, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	a.logger.Debug("revenue aggregated", "payments", len(payments), "services", len(totals))
	return totals, nil
}

// lineRevenue returns the revenue attributed to each of p's items.
func (a *Aggregator) lineRevenue(p Payment) []decimal.Decimal {
	if a.priceSource == PriceLocked {
		return allocate(p.Amount, p.Items)
	}
	out := make([]decimal.Decimal, len(p.Items))
	for i, item := range p.Items {
		out[i] = item.Subtotal()
	}
	return out
}

// allocate splits amount across items weighted by catalog subtotal (by
// quantity when every subtotal is zero). Shares are truncated to the money
// scale and the last item absorbs the remainder, so the parts sum to amount.
func allocate(amount decimal.Decimal, items []orders.Item) []decimal.Decimal {
	out := make([]decimal.Decimal, len(items))
	if len(items) == 0 {
		return out
	}

	weights := make([]decimal.Decimal, len(items))
	total := decimal.Zero
	for i, item := range items {
		weights[i] = item.Subtotal()
		total = total.Add(weights[i])
	}
	if total.IsZero() {
		for i, item := range items {
			weights[i] = decimal.NewFromInt(int64(item.Quantity))
			total = total.Add(weights[i])
		}
	}

	allocated := decimal.Zero
	last := len(items) - 1
	for i := 0; i < last; i++ {
		out[i] = amount.Mul(weights[i]).Div(total).Truncate(money.Scale)
		allocated = allocated.Add(out[i])
	}
	out[last] = amount.Sub(allocated)
	return out
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
