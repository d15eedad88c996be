package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWithdrawalQuote(t *testing.T) {
	s := Settings{MinWithdrawal: d("10"), WithdrawalFee: d("5")}

	fee, net, err := s.WithdrawalQuote(d("50.00"))
	require.NoError(t, err)
	assert.True(t, fee.Equal(d("5")))
	assert.True(t, net.Equal(d("45.00")))
	assert.True(t, net.Add(fee).Equal(d("50.00")))

	_, _, err = s.WithdrawalQuote(d("9.99"))
	assert.ErrorIs(t, err, ErrBelowMinimum)

	_, _, err = s.WithdrawalQuote(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = s.WithdrawalQuote(d("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawalQuoteNeverNegative(t *testing.T) {
	// Misconfigured: fee above the minimum.
	s := Settings{MinWithdrawal: d("1"), WithdrawalFee: d("5")}

	_, _, err := s.WithdrawalQuote(d("3"))
	assert.ErrorIs(t, err, ErrBelowMinimum)

	_, net, err := s.WithdrawalQuote(d("5"))
	require.NoError(t, err)
	assert.True(t, net.IsZero())
}

func TestPrincipalAfterTax(t *testing.T) {
	cases := []struct {
		tax, price, want string
	}{
		{"0", "100", "100"},
		{"10", "100", "90"},
		{"2.5", "1000", "975"},
		{"100", "250", "0"},
		{"33", "0.00000001", "0.00000001"},
	}
	for _, tc := range cases {
		s := Settings{PrincipalTax: d(tc.tax)}
		got := s.PrincipalAfterTax(d(tc.price))
		assert.True(t, got.Equal(d(tc.want)), "tax %s on %s: got %s", tc.tax, tc.price, got)
	}
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, Settings{MinRecharge: d("10"), PrincipalTax: d("100")}.Validate())
	assert.ErrorIs(t, Settings{WithdrawalFee: d("-1")}.Validate(), ErrInvalidSettings)
	assert.ErrorIs(t, Settings{PrincipalTax: d("100.01")}.Validate(), ErrInvalidSettings)
}
