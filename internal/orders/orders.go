// Package orders models purchase orders, their line items and the service
// catalog, and owns the order status state machine.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusNotSubmitted Status = "not_submitted"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

// transitions is the complete table of legal status changes.
var transitions = map[Status][]Status{
	StatusNotSubmitted: {StatusInProgress},
	StatusInProgress:   {StatusCompleted, StatusCancelled},
	StatusCompleted:    nil,
	StatusCancelled:    nil,
}

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIncorrectStatus   = errors.New("incorrect order status")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// StatusError reports an operation attempted on an order in the wrong state.
type StatusError struct {
	OrderID  int64
	Expected Status
	Actual   Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: transaction cannot be performed on order %d since it is in %q status (requires %q)",
		ErrIncorrectStatus, e.OrderID, e.Actual, e.Expected)
}

func (e *StatusError) Unwrap() error { return ErrIncorrectStatus }

// Item is an order line joined with its catalog entry. UnitPrice is the
// catalog price at the time the order was read.
type Item struct {
	ServiceID   int64           `json:"serviceId"`
	ServiceName string          `json:"serviceName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

// Subtotal is quantity x unit price.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a purchase of one or more catalog services.
type Order struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"userId"`
	Status Status `json:"status"`
	Items  []Item `json:"items"`
}

// Total sums quantity x unit price over the items at the prices they carry,
// which are the catalog prices at load time.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}

// Expect fails with a *StatusError unless the order is in want.
func Expect(o *Order, want Status) error {
	if o.Status != want {
		return &StatusError{OrderID: o.ID, Expected: want, Actual: o.Status}
	}
	return nil
}

// Store is the persistence contract for orders. GetOrder locks the order row
// for the rest of the unit of work.
type Store interface {
	// GetOrder returns ErrOrderNotFound for unknown ids.
	GetOrder(ctx context.Context, id int64) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status Status) error
}
