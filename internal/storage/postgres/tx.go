package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/orders"
)

// tx is a ledger.Tx bound to one database transaction. Every row it reads
// is locked until the transaction ends.
type tx struct {
	q   querier
	now func() time.Time
}

func (t *tx) UserExists(ctx context.Context, userID int64) (bool, error) {
	return userExists(ctx, t.q, userID)
}

func (t *tx) GetAccount(ctx context.Context, userID int64, kind accounts.Kind) (*accounts.Account, error) {
	return getUserAccount(ctx, t.q, userID, kind, true)
}

// CreateAccountPair inserts both accounts, tolerating a concurrent insert
// of the same pair, and returns the locked Regular account.
func (t *tx) CreateAccountPair(ctx context.Context, userID int64) (*accounts.Account, error) {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO user_accounts (user_id, kind, balance, updated_at)
		VALUES ($1, 'regular', 0, $2), ($1, 'reserve', 0, $2)
		ON CONFLICT (user_id, kind) DO NOTHING`, userID, t.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts: %w", mapError(err))
	}
	return getUserAccount(ctx, t.q, userID, accounts.KindRegular, true)
}

func (t *tx) GetCompanyAccount(ctx context.Context, id int64) (*accounts.Account, error) {
	return getCompanyAccount(ctx, t.q, id, true)
}

func (t *tx) UpdateBalance(ctx context.Context, acct *accounts.Account) error {
	table := "user_accounts"
	if acct.Kind == accounts.KindCompany {
		table = "company_accounts"
	}
	updatedAt := t.now().UTC()

	res, err := t.q.ExecContext(ctx,
		`UPDATE `+table+` SET balance = $2, updated_at = $3 WHERE id = $1`,
		acct.ID, acct.Balance, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", accounts.ErrAccountNotFound, acct.ID)
	}
	acct.UpdatedAt = updatedAt
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	return getOrder(ctx, t.q, id, true)
}

func (t *tx) UpdateOrderStatus(ctx context.Context, id int64, status orders.Status) error {
	res, err := t.q.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (t *tx) Append(ctx context.Context, txn *ledger.Transaction) error {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO transactions (kind, amount, description, from_user_id, to_user_id, order_id, to_company_account, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		string(txn.Kind), txn.Amount, txn.Description,
		toNull(txn.FromUserID), toNull(txn.ToUserID), toNull(txn.OrderID), toNull(txn.ToCompanyAccount),
		txn.CreatedAt,
	).Scan(&txn.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", mapError(err))
	}
	return nil
}

func (t *tx) FindOrderTransaction(ctx context.Context, orderID int64, kind ledger.Kind) (*ledger.Transaction, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE order_id = $1 AND kind = $2`,
		orderID, string(kind))
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order transaction: %w", err)
	}
	return txn, nil
}
