package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mbd888/balances/internal/accounts"
	"github.com/mbd888/balances/internal/ledger"
	"github.com/mbd888/balances/internal/money"
)

// SQLSTATE codes the store reacts to.
const (
	codeNumericOverflow      = "22003"
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// isRetryable reports whether err is a transient conflict that a fresh
// transaction may not hit again.
func isRetryable(err error) bool {
	switch pqCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	default:
		return false
	}
}

// mapError translates constraint violations into domain errors. Other
// errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch pqCode(err) {
	case codeCheckViolation:
		return fmt.Errorf("%w: %v", accounts.ErrNegativeBalance, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %v", accounts.ErrUserNotFound, err)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %v", ledger.ErrDuplicateTransaction, err)
	case codeNumericOverflow:
		return fmt.Errorf("%w: %v", money.ErrInvalid, err)
	default:
		return err
	}
}
