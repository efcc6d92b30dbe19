package orders

import (
	"context"
	"errors"
	"fmt"
)

// Manager applies order rules on top of a Store.
type Manager struct {
	store Store
}

// NewManager creates a manager bound to store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Get loads an order with its items.
func (m *Manager) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := m.store.GetOrder(ctx, id)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return o, nil
}

// Transition moves the order from one status to another. It is the only
// place order status changes: the order must currently be in from and the
// table must allow from -> to.
func (m *Manager) Transition(ctx context.Context, o *Order, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if err := Expect(o, from); err != nil {
		return err
	}
	if err := m.store.UpdateOrderStatus(ctx, o.ID, to); err != nil {
		return fmt.Errorf("failed to update order %d status: %w", o.ID, err)
	}
	o.Status = to
	return nil
}
