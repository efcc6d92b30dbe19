package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/orders"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const forUpdate = " FOR UPDATE"

const transactionColumns = `id, kind, amount, description, from_user_id, to_user_id, order_id, to_company_account, created_at`

func userExists(ctx context.Context, q querier, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

func getUserAccount(ctx context.Context, q querier, userID int64, kind accounts.Kind, lock bool) (*accounts.Account, error) {
	query := `
		SELECT id, user_id, kind, balance, updated_at
		FROM user_accounts WHERE user_id = $1 AND kind = $2`
	if lock {
		query += forUpdate
	}

	acct := &accounts.Account{}
	err := q.QueryRowContext(ctx, query, userID, string(kind)).
		Scan(&acct.ID, &acct.UserID, &acct.Kind, &acct.Balance, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounts.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

func getCompanyAccount(ctx context.Context, q querier, id int64, lock bool) (*accounts.Account, error) {
	query := `SELECT id, balance, updated_at FROM company_accounts WHERE id = $1`
	if lock {
		query += forUpdate
	}

	acct := &accounts.Account{Kind: accounts.KindCompany}
	err := q.QueryRowContext(ctx, query, id).Scan(&acct.ID, &acct.Balance, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounts.ErrCompanyAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company account: %w", err)
	}
	return acct, nil
}

func getOrder(ctx context.Context, q querier, id int64, lock bool) (*orders.Order, error) {
	query := `SELECT id, user_id, status FROM orders WHERE id = $1`
	if lock {
		query += forUpdate
	}

	o := &orders.Order{}
	err := q.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.UserID, &o.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	o.Items, err = orderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// orderItems joins an order's lines with the current catalog.
func orderItems(ctx context.Context, q querier, orderID int64) ([]orders.Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.id, s.name, s.price, oi.quantity
		FROM order_items oi
		JOIN services s ON s.id = oi.service_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []orders.Item
	for rows.Next() {
		var item orders.Item
		if err := rows.Scan(&item.ServiceID, &item.ServiceName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var (
		t                             ledger.Transaction
		fromUser, toUser, order, comp sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.Kind, &t.Amount, &t.Description, &fromUser, &toUser, &order, &comp, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.FromUserID = fromNull(fromUser)
	t.ToUserID = fromNull(toUser)
	t.OrderID = fromNull(order)
	t.ToCompanyAccount = fromNull(comp)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func fromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func toNull(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
