package ledger

import (
	"fmt"

	"github.com/mbd888/balances/internal/money"
)

const descriptionDateLayout = "2006-01-02 15:04:05 UTC"

type describer func(t *Transaction, amount, date string) string

// descriptions renders the human-readable text of each kind.
var descriptions = map[Kind]describer{
	KindDeposit: func(t *Transaction, amount, date string) string {
		return fmt.Sprintf("Money in the amount of %sUSD was deposited to user %d from external services on %s.",
			amount, deref(t.ToUserID), date)
	},
	KindTransfer: func(t *Transaction, amount, date string) string {
		return fmt.Sprintf("Money in the amount of %sUSD was transferred from user %d to user %d on %s.",
			amount, deref(t.FromUserID), deref(t.ToUserID), date)
	},
	KindReserve: func(t *Transaction, amount, date string) string {
		return fmt.Sprintf("Money in the amount of %sUSD was reserved on user %d reserve account as per the order %d on %s.",
			amount, deref(t.FromUserID), deref(t.OrderID), date)
	},
	KindReserveRefund: func(t *Transaction, amount, date string) string {
		return fmt.Sprintf("Money in the amount of %sUSD was refunded to user %d account from his/her reserve account as per the order %d on %s.",
			amount, deref(t.FromUserID), deref(t.OrderID), date)
	},
	KindPaymentToCompany: func(t *Transaction, amount, date string) string {
		return fmt.Sprintf("Money in the amount of %sUSD was paid by user %d to the company account as per the order %d on %s.",
			amount, deref(t.FromUserID), deref(t.OrderID), date)
	},
}

func init() {
	for _, k := range Kinds {
		if descriptions[k] == nil {
			panic(fmt.Sprintf("ledger: no description template for kind %q", k))
		}
	}
}

// Describe renders the description of t from its kind, amount, participants
// and timestamp.
func Describe(t *Transaction) string {
	return descriptions[t.Kind](t, money.Format(t.Amount), t.CreatedAt.UTC().Format(descriptionDateLayout))
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
