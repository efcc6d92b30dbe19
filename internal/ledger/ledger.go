// Package ledger is the transaction engine. It moves money between accounts,
// advances order status and appends an immutable transaction record, all
// as one atomic unit of work.
//
// Five operations are supported:
//   - Deposit: external funds credited to a user's Regular account
//   - Transfer: Regular to Regular between two users
//   - Reserve: an order's total moved from Regular to Reserve
//   - ReserveRefund: the reserved amount returned to Regular, order cancelled
//   - PaymentToCompany: the reserved amount paid to the Company account, order completed
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/money"
	"github.com/mbd888/balances/internal/orders"
	"github.com/shopspring/decimal"
)

// Kind identifies what a transaction did.
type Kind string

const (
	KindDeposit          Kind = "deposit"
	KindTransfer         Kind = "transfer"
	KindReserve          Kind = "reserve"
	KindReserveRefund    Kind = "reserve_refund"
	KindPaymentToCompany Kind = "payment_to_company"
)

// Kinds lists every transaction kind.
var Kinds = []Kind{KindDeposit, KindTransfer, KindReserve, KindReserveRefund, KindPaymentToCompany}

// OrderBound reports whether transactions of this kind reference an order.
func (k Kind) OrderBound() bool {
	return k == KindReserve || k == KindReserveRefund || k == KindPaymentToCompany
}

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrSenderRecipientSame = errors.New("sender and recipient are the same user")
	ErrInvalidAmount       = errors.New("amount must be positive with at most 14 integer and 6 decimal digits")
)

// ErrDuplicateTransaction reports a second order-bound transaction of the
// same kind for one order. Storage enforces it; the order state machine
// keeps the engine from ever triggering it.
var ErrDuplicateTransaction = errors.New("order already has a transaction of this kind")

// Transaction is an immutable record of one balance-affecting event.
// Participant fields are populated per kind; unused ones are nil.
type Transaction struct {
	ID               int64           `json:"id"`
	Kind             Kind            `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	FromUserID       *int64          `json:"fromUserId,omitempty"`
	ToUserID         *int64          `json:"toUserId,omitempty"`
	OrderID          *int64          `json:"orderId,omitempty"`
	ToCompanyAccount *int64          `json:"toCompanyAccount,omitempty"`
	CreatedAt        time.Time       `json:"date"`
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.FromUserID = clonePtr(t.FromUserID)
	c.ToUserID = clonePtr(t.ToUserID)
	c.OrderID = clonePtr(t.OrderID)
	c.ToCompanyAccount = clonePtr(t.ToCompanyAccount)
	return &c
}

func clonePtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ref(v int64) *int64 { return &v }

// TransactionLog is the append-only transaction store.
type TransactionLog interface {
	// Append stores t and assigns its ID.
	Append(ctx context.Context, t *Transaction) error
	// FindOrderTransaction returns the order's transaction of the given kind,
	// or ErrTransactionNotFound.
	FindOrderTransaction(ctx context.Context, orderID int64, kind Kind) (*Transaction, error)
}

// Tx is a unit of work over every store the engine touches.
type Tx interface {
	accounts.Store
	orders.Store
	TransactionLog
}

// Store opens units of work. WithTx commits when fn returns nil and rolls
// back every write otherwise; the handle is released on every exit path.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// IsRejection reports whether err is a domain rule rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		accounts.ErrUserNotFound,
		accounts.ErrAccountNotFound,
		accounts.ErrCompanyAccountNotFound,
		accounts.ErrNegativeBalance,
		orders.ErrOrderNotFound,
		orders.ErrIncorrectStatus,
		ErrTransactionNotFound,
		ErrSenderRecipientSame,
		ErrInvalidAmount,
		money.ErrInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
