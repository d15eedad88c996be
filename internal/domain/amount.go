package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money columns are NUMERIC(20,8): 8 fractional digits, 12 integral.
const AmountScale = 8

// MaxAmount is the largest value a money column or a balance can hold.
var MaxAmount = decimal.New(1, 20-AmountScale).Sub(decimal.New(1, -AmountScale))

// CheckAmount rejects amounts a money column cannot hold exactly. Postgres
// would round them, and the balance and its ledger row could round apart.
func CheckAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	case !amount.Equal(amount.Truncate(AmountScale)):
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountScale)
	case amount.GreaterThan(MaxAmount):
		return fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, MaxAmount)
	}
	return nil
}
