package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Settings is the read-only platform configuration consumed at request
// validation and principal return time.
type Settings struct {
	MinRecharge   decimal.Decimal `json:"minRecharge"`
	MinWithdrawal decimal.Decimal `json:"minWithdrawal"`
	WithdrawalFee decimal.Decimal `json:"withdrawalFee"`
	// PrincipalTax is a percentage in [0, 100].
	PrincipalTax decimal.Decimal `json:"principalTax"`
}

func (s Settings) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"minRecharge":   s.MinRecharge,
		"minWithdrawal": s.MinWithdrawal,
		"withdrawalFee": s.WithdrawalFee,
		"principalTax":  s.PrincipalTax,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s is negative", ErrInvalidSettings, name)
		}
	}
	if s.PrincipalTax.GreaterThan(hundred) {
		return fmt.Errorf("%w: principalTax above 100", ErrInvalidSettings)
	}
	return nil
}

// WithdrawalQuote computes the fee and net payout for a withdrawal of amount.
// The net is never negative: amounts that do not cover the fee are rejected.
func (s Settings) WithdrawalQuote(amount decimal.Decimal) (fee, net decimal.Decimal, err error) {
	if err := CheckAmount(amount); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if amount.LessThan(s.MinWithdrawal) || amount.LessThan(s.WithdrawalFee) {
		return decimal.Zero, decimal.Zero, ErrBelowMinimum
	}
	return s.WithdrawalFee, amount.Sub(s.WithdrawalFee), nil
}

// PrincipalAfterTax returns price reduced by PrincipalTax percent, rounded to 8 places.
func (s Settings) PrincipalAfterTax(price decimal.Decimal) decimal.Decimal {
	keep := hundred.Sub(s.PrincipalTax).Div(hundred)
	return price.Mul(keep).Round(8)
}
