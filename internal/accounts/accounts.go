// Package accounts owns user and company balances.
//
// Every user who has ever been credited holds exactly two accounts, a
// Regular (spendable) and a Reserve (earmarked for in-progress orders).
// The single Company account receives completed-order payments and is
// provisioned out of band.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies an account variant.
type Kind string

const (
	KindRegular Kind = "regular"
	KindReserve Kind = "reserve"
	KindCompany Kind = "company"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrCompanyAccountNotFound = errors.New("company account not found")
	ErrNegativeBalance        = errors.New("account balance cannot be negative")
)

// Account is a single balance. UserID is zero for the Company account.
type Account struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId,omitempty"`
	Kind      Kind            `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Clone returns a copy safe to hand to callers.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// NegativeBalanceError reports a debit the account could not absorb.
type NegativeBalanceError struct {
	AccountID int64
	UserID    int64
	Kind      Kind
	Balance   decimal.Decimal
	Debit     decimal.Decimal
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("%s: %s account %d holds %s, cannot debit %s",
		ErrNegativeBalance, e.Kind, e.AccountID, e.Balance.String(), e.Debit.String())
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// Store is the persistence contract for accounts. Implementations are bound
// to a unit of work: rows returned by GetAccount and GetCompanyAccount stay
// locked until it commits or rolls back.
type Store interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	// GetAccount returns ErrAccountNotFound when the user has no account of kind.
	GetAccount(ctx context.Context, userID int64, kind Kind) (*Account, error)
	// CreateAccountPair creates zero-balance Regular and Reserve accounts if
	// absent and returns the Regular one.
	CreateAccountPair(ctx context.Context, userID int64) (*Account, error)
	GetCompanyAccount(ctx context.Context, id int64) (*Account, error)
	UpdateBalance(ctx context.Context, acct *Account) error
}
