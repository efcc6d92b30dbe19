package query

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/mbd888/balances/internal/ledger"
)

// SortKey names a transaction listing sort field. Every key sorts descending.
type SortKey string

const (
	SortDate   SortKey = "date"
	SortAmount SortKey = "amount"
)

// precedence orders keys when several are requested: date, then amount.
var precedence = []SortKey{SortDate, SortAmount}

// ParseSort validates requested sort fields and returns them in precedence
// order. Fields may be comma-separated; duplicates and blanks are ignored.
func ParseSort(fields ...string) ([]SortKey, error) {
	requested := make(map[SortKey]bool)
	for _, field := range fields {
		for _, name := range strings.Split(field, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			key := SortKey(name)
			if key != SortDate && key != SortAmount {
				return nil, fmt.Errorf("%w: %q", ErrUnsupportedSortField, name)
			}
			requested[key] = true
		}
	}

	var keys []SortKey
	for _, key := range precedence {
		if requested[key] {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Compare returns the listing order for keys: each key descending, ties by
// id descending. With no keys the order is id ascending.
func Compare(keys []SortKey) func(a, b *ledger.Transaction) int {
	if len(keys) == 0 {
		return func(a, b *ledger.Transaction) int {
			return cmp.Compare(a.ID, b.ID)
		}
	}
	return func(a, b *ledger.Transaction) int {
		for _, key := range keys {
			var c int
			switch key {
			case SortDate:
				c = b.CreatedAt.Compare(a.CreatedAt)
			case SortAmount:
				c = b.Amount.Cmp(a.Amount)
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(b.ID, a.ID)
	}
}
