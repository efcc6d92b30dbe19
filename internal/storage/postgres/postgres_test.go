package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/money"
	"github.com/mbd888/balances/internal/orders"
	"github.com/mbd888/balances/internal/pagination"
	"github.com/mbd888/balances/internal/query"
	"github.com/mbd888/balances/internal/revenue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ledger.Store   = (*Store)(nil)
	_ query.Source   = (*Store)(nil)
	_ revenue.Source = (*Store)(nil)
)

var now = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db,
		WithBaseDelay(time.Millisecond),
		WithClock(func() time.Time { return now }),
	)
	return store, mock
}

var accountCols = []string{"id", "user_id", "kind", "balance", "updated_at"}

func TestDeposit_NewUserCreatesAccountPair(t *testing.T) {
	store, mock := newMockStore(t)
	engine := ledger.NewEngine(store, ledger.WithClock(func() time.Time { return now }))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE id = \$1\)`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM user_accounts WHERE user_id = \$1 AND kind = \$2 FOR UPDATE`).
		WithArgs(int64(7), "regular").
		WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectExec(`INSERT INTO user_accounts .* ON CONFLICT \(user_id, kind\) DO NOTHING`).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`FROM user_accounts WHERE user_id = \$1 AND kind = \$2 FOR UPDATE`).
		WithArgs(int64(7), "regular").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(int64(11), int64(7), "regular", "0", now))
	mock.ExpectExec(`UPDATE user_accounts SET balance = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs(int64(11), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO transactions .* RETURNING id`).
		WithArgs("deposit", sqlmock.AnyArg(), sqlmock.AnyArg(), nil, int64(7), nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	txn, err := engine.Deposit(context.Background(), ledger.DepositRequest{ToUserID: 7, Amount: decimal.NewFromInt(25)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_LocksLowerUserIDFirst(t *testing.T) {
	store, mock := newMockStore(t)
	engine := ledger.NewEngine(store, ledger.WithClock(func() time.Time { return now }))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE id = \$1\)`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM user_accounts WHERE user_id = \$1 AND kind = \$2 FOR UPDATE`).
		WithArgs(int64(4), "regular").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(int64(40), int64(4), "regular", "5", now))
	mock.ExpectQuery(`FROM user_accounts WHERE user_id = \$1 AND kind = \$2 FOR UPDATE`).
		WithArgs(int64(9), "regular").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(int64(90), int64(9), "regular", "50", now))
	mock.ExpectExec(`UPDATE user_accounts SET balance = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs(int64(90), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE user_accounts SET balance = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs(int64(40), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO transactions .* RETURNING id`).
		WithArgs("transfer", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(9), int64(4), nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectCommit()

	txn, err := engine.Transfer(context.Background(), ledger.TransferRequest{FromUserID: 9, ToUserID: 4, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx ledger.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RetriesDeadlock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(&pq.Error{Code: codeDeadlockDetected})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	calls := 0
	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		calls++
		_, err := tx.UserExists(context.Background(), 1)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_GivesUpAfterMaxAttempts(t *testing.T) {
	store, mock := newMockStore(t)
	store.maxAttempts = 2

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(&pq.Error{Code: codeSerializationFailure})
		mock.ExpectRollback()
	}

	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.UserExists(context.Background(), 1)
		return err
	})
	require.Error(t, err)
	assert.True(t, isRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_DomainErrorsAreNotRetried(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		calls++
		return accounts.ErrNegativeBalance
	})
	assert.ErrorIs(t, err, accounts.ErrNegativeBalance)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_ConstraintViolationsMapToDomainErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("balance check", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE user_accounts SET balance`).
			WillReturnError(&pq.Error{Code: codeCheckViolation, Constraint: "chk_user_accounts_balance"})
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(tx ledger.Tx) error {
			return tx.UpdateBalance(ctx, &accounts.Account{ID: 1, UserID: 1, Kind: accounts.KindRegular, Balance: decimal.NewFromInt(-1)})
		})
		assert.ErrorIs(t, err, accounts.ErrNegativeBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO user_accounts`).
			WillReturnError(&pq.Error{Code: codeForeignKeyViolation})
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(tx ledger.Tx) error {
			_, err := tx.CreateAccountPair(ctx, 99)
			return err
		})
		assert.ErrorIs(t, err, accounts.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate order transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO transactions`).
			WillReturnError(&pq.Error{Code: codeUniqueViolation})
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(tx ledger.Tx) error {
			orderID := int64(3)
			return tx.Append(ctx, &ledger.Transaction{Kind: ledger.KindReserve, OrderID: &orderID})
		})
		assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("numeric overflow", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE user_accounts SET balance`).
			WillReturnError(&pq.Error{Code: codeNumericOverflow})
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(tx ledger.Tx) error {
			return tx.UpdateBalance(ctx, &accounts.Account{ID: 1, UserID: 1, Kind: accounts.KindRegular, Balance: decimal.New(1, 30)})
		})
		assert.ErrorIs(t, err, money.ErrInvalid)
		assert.True(t, ledger.IsRejection(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTx_UpdateCompanyBalance(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, balance, updated_at FROM company_accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "updated_at"}).AddRow(int64(1), "10.5", now))
	mock.ExpectExec(`UPDATE company_accounts SET balance = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs(int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.GetCompanyAccount(ctx, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, accounts.KindCompany, acct.Kind)
		assert.True(t, acct.Balance.Equal(decimal.RequireFromString("10.5")))
		acct.Balance = acct.Balance.Add(decimal.NewFromInt(1))
		return tx.UpdateBalance(ctx, acct)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM company_accounts WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "updated_at"}))
	mock.ExpectQuery(`SELECT id, user_id, status FROM orders WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}))
	mock.ExpectQuery(`FROM transactions WHERE order_id = \$1 AND kind = \$2`).
		WithArgs(int64(5), "reserve").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "amount", "description", "from_user_id", "to_user_id", "order_id", "to_company_account", "created_at"}))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.GetCompanyAccount(ctx, 9)
		assert.ErrorIs(t, err, accounts.ErrCompanyAccountNotFound)
		_, err = tx.GetOrder(ctx, 5)
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)
		_, err = tx.FindOrderTransaction(ctx, 5, ledger.KindReserve)
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_GetOrderWithItems(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, user_id, status FROM orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).AddRow(int64(100), int64(1), "not_submitted"))
	mock.ExpectQuery(`FROM order_items oi JOIN services s ON s.id = oi.service_id WHERE oi.order_id = \$1 ORDER BY oi.id`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "quantity"}).
			AddRow(int64(10), "Service A", "15.00", 2).
			AddRow(int64(11), "Service B", "20.00", 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		o, err := tx.GetOrder(ctx, 100)
		if err != nil {
			return err
		}
		assert.Equal(t, orders.StatusNotSubmitted, o.Status)
		assert.Len(t, o.Items, 2)
		assert.True(t, o.Total().Equal(decimal.NewFromInt(50)))
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactions_OrderAndPage(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"id", "kind", "amount", "description", "from_user_id", "to_user_id", "order_id", "to_company_account", "created_at"}
	mock.ExpectQuery(`WHERE t.from_user_id = \$1 OR t.to_user_id = \$1 OR o.user_id = \$1 ORDER BY t.created_at DESC, t.amount DESC, t.id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(int64(1), 5, 5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(9), "transfer", "2.5", "desc", int64(1), int64(2), nil, nil, now).
			AddRow(int64(4), "reserve", "50", "desc", int64(1), nil, int64(100), nil, now))

	txns, err := store.ListTransactions(context.Background(), 1, query.ListOptions{
		SortBy: []query.SortKey{query.SortDate, query.SortAmount},
		Page:   pagination.Page{Number: 2, Size: 5},
	})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, ledger.KindTransfer, txns[0].Kind)
	require.NotNil(t, txns[0].ToUserID)
	assert.Equal(t, int64(2), *txns[0].ToUserID)
	assert.Nil(t, txns[0].OrderID)
	require.NotNil(t, txns[1].OrderID)
	assert.Equal(t, int64(100), *txns[1].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, "t.id ASC", orderBy(nil))
	assert.Equal(t, "t.amount DESC, t.id DESC", orderBy([]query.SortKey{query.SortAmount}))
	assert.Equal(t, "t.created_at DESC, t.id DESC", orderBy([]query.SortKey{query.SortDate}))
}

func TestPaymentsBetween_GroupsItemsByTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE t.kind = \$1 AND t.created_at >= \$2 AND t.created_at < \$3 ORDER BY t.id, oi.id`).
		WithArgs("payment_to_company", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"t_id", "order_id", "amount", "created_at", "s_id", "name", "price", "quantity"}).
			AddRow(int64(3), int64(100), "50", now, int64(10), "Service A", "15", 2).
			AddRow(int64(3), int64(100), "50", now, int64(11), "Service B", "20", 1).
			AddRow(int64(8), int64(101), "20", now, int64(11), "Service B", "20", 1))

	payments, err := store.PaymentsBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Len(t, payments[0].Items, 2)
	assert.Len(t, payments[1].Items, 1)
	assert.Equal(t, int64(101), payments[1].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pq.Error{Code: codeDeadlockDetected}))
	assert.True(t, isRetryable(errors.Join(errors.New("wrapped"), &pq.Error{Code: codeSerializationFailure})))
	assert.False(t, isRetryable(&pq.Error{Code: codeCheckViolation}))
	assert.False(t, isRetryable(accounts.ErrNegativeBalance))
	assert.Nil(t, mapError(nil))
}
