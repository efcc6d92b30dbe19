package memory

import (
	"context"
	"slices"
	"time"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/orders"
	"github.com/mbd888/balances/internal/pagination"
	"github.com/mbd888/balances/internal/query"
	"github.com/mbd888/balances/internal/revenue"
)

// UserExists reports whether the user is registered.
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID], nil
}

// FindAccount returns a copy of the user's account of the given kind.
func (s *Store) FindAccount(ctx context.Context, userID int64, kind accounts.Kind) (*accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountKey{userID, kind}]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

// CompanyAccount returns a copy of a company account.
func (s *Store) CompanyAccount(ctx context.Context, id int64) (*accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.companies[id]
	if !ok {
		return nil, accounts.ErrCompanyAccountNotFound
	}
	return acct.Clone(), nil
}

// Order returns a copy of the order with current catalog prices.
func (s *Store) Order(ctx context.Context, id int64) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return s.toOrder(o), nil
}

// ListTransactions returns the transactions the user sent, received, or
// that reference one of the user's orders.
func (s *Store) ListTransactions(ctx context.Context, userID int64, opts query.ListOptions) ([]*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*ledger.Transaction
	for _, txn := range s.txns {
		if s.involves(txn, userID) {
			matched = append(matched, txn)
		}
	}
	slices.SortStableFunc(matched, query.Compare(opts.SortBy))

	page := pagination.Slice(matched, opts.Page)
	out := make([]*ledger.Transaction, 0, len(page))
	for _, txn := range page {
		out = append(out, txn.Clone())
	}
	return out, nil
}

func (s *Store) involves(txn *ledger.Transaction, userID int64) bool {
	if txn.FromUserID != nil && *txn.FromUserID == userID {
		return true
	}
	if txn.ToUserID != nil && *txn.ToUserID == userID {
		return true
	}
	if txn.OrderID != nil {
		if o, ok := s.orders[*txn.OrderID]; ok && o.userID == userID {
			return true
		}
	}
	return false
}

// PaymentsBetween returns company payments recorded in [from, to), each
// with its order's lines at current catalog prices.
func (s *Store) PaymentsBetween(ctx context.Context, from, to time.Time) ([]revenue.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []revenue.Payment
	for _, txn := range s.txns {
		if txn.Kind != ledger.KindPaymentToCompany || txn.OrderID == nil {
			continue
		}
		if txn.CreatedAt.Before(from) || !txn.CreatedAt.Before(to) {
			continue
		}
		o, ok := s.orders[*txn.OrderID]
		if !ok {
			continue
		}
		out = append(out, revenue.Payment{
			TransactionID: txn.ID,
			OrderID:       o.id,
			Amount:        txn.Amount,
			PaidAt:        txn.CreatedAt,
			Items:         s.items(o),
		})
	}
	return out, nil
}
