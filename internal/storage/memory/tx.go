package memory

import (
	"context"
	"fmt"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/orders"
	"github.com/shopspring/decimal"
)

// WithTx runs fn as one unit of work. Every write fn makes is undone if fn
// returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
		if err != nil {
			t.rollback()
		}
	}()
	return fn(t)
}

// tx is a write handle valid only inside WithTx. undo holds the inverse of
// every write, applied in reverse on rollback.
type tx struct {
	s    *Store
	undo []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) UserExists(ctx context.Context, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.s.users[userID], nil
}

func (t *tx) GetAccount(ctx context.Context, userID int64, kind accounts.Kind) (*accounts.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, ok := t.s.accounts[accountKey{userID, kind}]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (t *tx) CreateAccountPair(ctx context.Context, userID int64) (*accounts.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !t.s.users[userID] {
		return nil, fmt.Errorf("%w: user %d", accounts.ErrUserNotFound, userID)
	}

	for _, kind := range []accounts.Kind{accounts.KindRegular, accounts.KindReserve} {
		key := accountKey{userID, kind}
		if _, ok := t.s.accounts[key]; ok {
			continue
		}
		t.s.nextAccountID++
		t.s.accounts[key] = &accounts.Account{
			ID:        t.s.nextAccountID,
			UserID:    userID,
			Kind:      kind,
			Balance:   decimal.Zero,
			UpdatedAt: t.s.now().UTC(),
		}
		t.undo = append(t.undo, func() {
			delete(t.s.accounts, key)
			t.s.nextAccountID--
		})
	}
	return t.s.accounts[accountKey{userID, accounts.KindRegular}].Clone(), nil
}

func (t *tx) GetCompanyAccount(ctx context.Context, id int64) (*accounts.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, ok := t.s.companies[id]
	if !ok {
		return nil, accounts.ErrCompanyAccountNotFound
	}
	return acct.Clone(), nil
}

func (t *tx) UpdateBalance(ctx context.Context, acct *accounts.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var stored *accounts.Account
	if acct.Kind == accounts.KindCompany {
		stored = t.s.companies[acct.ID]
	} else {
		stored = t.s.accounts[accountKey{acct.UserID, acct.Kind}]
	}
	if stored == nil || stored.ID != acct.ID {
		return fmt.Errorf("%w: id %d", accounts.ErrAccountNotFound, acct.ID)
	}
	if acct.Balance.IsNegative() {
		return &accounts.NegativeBalanceError{
			AccountID: stored.ID,
			UserID:    stored.UserID,
			Kind:      stored.Kind,
			Balance:   stored.Balance,
			Debit:     stored.Balance.Sub(acct.Balance),
		}
	}

	prev := *stored
	t.undo = append(t.undo, func() { *stored = prev })
	stored.Balance = acct.Balance
	stored.UpdatedAt = t.s.now().UTC()
	acct.UpdatedAt = stored.UpdatedAt
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := t.s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return t.s.toOrder(o), nil
}

func (t *tx) UpdateOrderStatus(ctx context.Context, id int64, status orders.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o, ok := t.s.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	prev := o.status
	t.undo = append(t.undo, func() { o.status = prev })
	o.status = status
	return nil
}

func (t *tx) Append(ctx context.Context, txn *ledger.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if txn.OrderID != nil {
		if _, err := t.findOrderTransaction(*txn.OrderID, txn.Kind); err == nil {
			return fmt.Errorf("%w: order %d, %s", ledger.ErrDuplicateTransaction, *txn.OrderID, txn.Kind)
		}
	}

	t.s.nextTxID++
	txn.ID = t.s.nextTxID
	t.s.txns = append(t.s.txns, txn.Clone())
	t.undo = append(t.undo, func() {
		t.s.txns = t.s.txns[:len(t.s.txns)-1]
		t.s.nextTxID--
	})
	return nil
}

func (t *tx) FindOrderTransaction(ctx context.Context, orderID int64, kind ledger.Kind) (*ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.findOrderTransaction(orderID, kind)
}

func (t *tx) findOrderTransaction(orderID int64, kind ledger.Kind) (*ledger.Transaction, error) {
	for _, txn := range t.s.txns {
		if txn.Kind == kind && txn.OrderID != nil && *txn.OrderID == orderID {
			return txn.Clone(), nil
		}
	}
	return nil, ledger.ErrTransactionNotFound
}
