package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/balances/internal/money"
	"github.com/shopspring/decimal"
)

// Manager applies account rules on top of a Store.
type Manager struct {
	store Store
}

// NewManager creates a manager bound to store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Get returns the user's account of the given kind. A miss is reported as
// ErrUserNotFound when the user itself is unknown.
func (m *Manager) Get(ctx context.Context, userID int64, kind Kind) (*Account, error) {
	acct, err := m.store.GetAccount(ctx, userID, kind)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to get %s account of user %d: %w", kind, userID, err)
	}

	exists, err := m.store.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user %d: %w", userID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
	}
	return nil, fmt.Errorf("%w: user %d has no %s account", ErrAccountNotFound, userID, kind)
}

// GetOrCreateRegularAndReserve returns the user's Regular account, creating
// the Regular and Reserve pair first if the user has none. The user must exist.
func (m *Manager) GetOrCreateRegularAndReserve(ctx context.Context, userID int64) (*Account, error) {
	exists, err := m.store.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user %d: %w", userID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
	}

	acct, err := m.store.GetAccount(ctx, userID, KindRegular)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to get regular account of user %d: %w", userID, err)
	}

	acct, err = m.store.CreateAccountPair(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts for user %d: %w", userID, err)
	}
	return acct, nil
}

// GetCompany returns the company account with the given id.
func (m *Manager) GetCompany(ctx context.Context, id int64) (*Account, error) {
	acct, err := m.store.GetCompanyAccount(ctx, id)
	if errors.Is(err, ErrCompanyAccountNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrCompanyAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company account %d: %w", id, err)
	}
	return acct, nil
}

// ApplyDelta adds a signed amount to the account and persists it. It is the
// only way balances change. Nothing is written if the result would be negative.
func (m *Manager) ApplyDelta(ctx context.Context, acct *Account, delta decimal.Decimal) error {
	next := acct.Balance.Add(delta)
	if next.IsNegative() {
		return &NegativeBalanceError{
			AccountID: acct.ID,
			UserID:    acct.UserID,
			Kind:      acct.Kind,
			Balance:   acct.Balance,
			Debit:     delta.Neg(),
		}
	}
	if !money.FitsScale(next) {
		return fmt.Errorf("%w: balance of %s account %d would exceed %d integer digits",
			money.ErrInvalid, acct.Kind, acct.ID, money.MaxIntegerDigits)
	}

	prev := acct.Balance
	acct.Balance = next
	if err := m.store.UpdateBalance(ctx, acct); err != nil {
		acct.Balance = prev
		return fmt.Errorf("failed to update %s account %d: %w", acct.Kind, acct.ID, err)
	}
	return nil
}
