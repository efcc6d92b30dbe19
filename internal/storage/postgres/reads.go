package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/orders"
	"github.com/mbd888/balances/internal/query"
	"github.com/mbd888/balances/internal/revenue"
)

// UserExists reports whether the user is registered.
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	return userExists(ctx, s.db, userID)
}

// FindAccount returns the user's account of the given kind without locking.
func (s *Store) FindAccount(ctx context.Context, userID int64, kind accounts.Kind) (*accounts.Account, error) {
	return getUserAccount(ctx, s.db, userID, kind, false)
}

// CompanyAccount returns a company account without locking.
func (s *Store) CompanyAccount(ctx context.Context, id int64) (*accounts.Account, error) {
	return getCompanyAccount(ctx, s.db, id, false)
}

// Order returns an order with current catalog prices without locking.
func (s *Store) Order(ctx context.Context, id int64) (*orders.Order, error) {
	return getOrder(ctx, s.db, id, false)
}

// ListTransactions returns the transactions the user sent, received, or
// that reference one of the user's orders.
func (s *Store) ListTransactions(ctx context.Context, userID int64, opts query.ListOptions) ([]*ledger.Transaction, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT t.id, t.kind, t.amount, t.description, t.from_user_id, t.to_user_id, t.order_id, t.to_company_account, t.created_at
		FROM transactions t
		LEFT JOIN orders o ON o.id = t.order_id
		WHERE t.from_user_id = $1 OR t.to_user_id = $1 OR o.user_id = $1
		ORDER BY `)
	b.WriteString(orderBy(opts.SortBy))

	args := []any{userID}
	if opts.Page.Enabled() {
		b.WriteString(` LIMIT $2 OFFSET $3`)
		args = append(args, opts.Page.Limit(), opts.Page.Offset())
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// orderBy renders the listing order matching query.Compare.
func orderBy(keys []query.SortKey) string {
	if len(keys) == 0 {
		return "t.id ASC"
	}
	cols := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		switch key {
		case query.SortDate:
			cols = append(cols, "t.created_at DESC")
		case query.SortAmount:
			cols = append(cols, "t.amount DESC")
		}
	}
	cols = append(cols, "t.id DESC")
	return strings.Join(cols, ", ")
}

// PaymentsBetween returns company payments recorded in [from, to), each
// with its order's lines at current catalog prices.
func (s *Store) PaymentsBetween(ctx context.Context, from, to time.Time) ([]revenue.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.order_id, t.amount, t.created_at, s.id, s.name, s.price, oi.quantity
		FROM transactions t
		JOIN order_items oi ON oi.order_id = t.order_id
		JOIN services s ON s.id = oi.service_id
		WHERE t.kind = $1 AND t.created_at >= $2 AND t.created_at < $3
		ORDER BY t.id, oi.id`,
		string(ledger.KindPaymentToCompany), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []revenue.Payment
	for rows.Next() {
		var (
			p    revenue.Payment
			item orders.Item
		)
		if err := rows.Scan(&p.TransactionID, &p.OrderID, &p.Amount, &p.PaidAt,
			&item.ServiceID, &item.ServiceName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].TransactionID == p.TransactionID {
			out[n-1].Items = append(out[n-1].Items, item)
			continue
		}
		p.PaidAt = p.PaidAt.UTC()
		p.Items = []orders.Item{item}
		out = append(out, p)
	}
	return out, rows.Err()
}
