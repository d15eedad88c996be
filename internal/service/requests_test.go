package service

import (
	"context"
	"testing"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdrawalReservedThenRefundedOnReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "100.00")

	w, replayed, err := f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d("50.00"), ChainName: "TRON", BlockchainAddress: "T123"})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.True(t, w.Fee.Equal(d("5.00")))
	assert.True(t, w.NetAmount.Equal(d("45.00")))
	assert.Equal(t, domain.RequestPending, w.Status)
	assertBalance(t, f, user, "50.00")

	rejected, err := f.withdrawals.Reject(ctx, w.ID, 900, "address blacklisted")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)
	assert.Equal(t, "address blacklisted", rejected.Reason)
	require.NotNil(t, rejected.ApprovedByID)
	assert.EqualValues(t, 900, *rejected.ApprovedByID)

	assertBalance(t, f, user, "100.00")
	assertBalanceInvariant(t, f, user)

	txns := f.mem.Transactions(user)
	require.Len(t, txns, 3)
	assert.Equal(t, domain.SourceWithdraw, txns[1].Source)
	assert.Equal(t, domain.TxnDebit, txns[1].Type)
	assert.Equal(t, domain.SourceWithdraw, txns[2].Source)
	assert.Equal(t, domain.TxnCredit, txns[2].Type)
	assert.Equal(t, w.ID, txns[2].ReferenceID)
}

func TestWithdrawalApproveIsStatusOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "100")

	w, _, err := f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d("40")})
	require.NoError(t, err)

	approved, err := f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, approved.Status)
	assertBalance(t, f, user, "60")
	assert.Len(t, f.mem.Transactions(user), 2)

	_, err = f.withdrawals.Reject(ctx, w.ID, 1, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.withdrawals.Approve(ctx, w.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assertBalance(t, f, user, "60")
}

func TestWithdrawalReplayReturnsCreationSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "100")
	in := WithdrawalInput{UserID: user, Amount: d("40"), Idempotency: IdempotencyKey{Key: "k-1", Hash: "h"}}

	w, _, err := f.withdrawals.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)

	again, replayed, err := f.withdrawals.Create(ctx, in)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, w.ID, again.ID)
	assert.Equal(t, domain.RequestPending, again.Status)

	current, err := f.withdrawals.List(ctx, domain.RequestFilter{UserID: user})
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, domain.RequestApproved, current[0].Status)
	assertBalance(t, f, user, "60")
}

func TestWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "30")

	cases := []struct {
		name   string
		amount string
		want   error
	}{
		{"zero", "0", domain.ErrInvalidAmount},
		{"negative", "-5", domain.ErrInvalidAmount},
		{"more than eight decimals", "10.000000005", domain.ErrInvalidAmount},
		{"beyond column range", "10000000000000", domain.ErrInvalidAmount},
		{"below minimum", "9.99", domain.ErrBelowMinimum},
		{"above balance", "30.01", domain.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d(tc.amount)})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	list, err := f.withdrawals.List(ctx, domain.RequestFilter{UserID: user})
	require.NoError(t, err)
	assert.Empty(t, list, "failed creations persist nothing")
	assertBalance(t, f, user, "30")
}

func TestWithdrawalPendingRequestsCannotOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "100")

	_, _, err := f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d("60")})
	require.NoError(t, err)
	_, _, err = f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d("60")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestWithdrawalIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "100")
	key := IdempotencyKey{Key: "wd-1", Hash: "h1"}

	first, replayed, err := f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d("20"), Idempotency: key})
	require.NoError(t, err)
	assert.False(t, replayed)

	again, replayed, err := f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d("20"), Idempotency: key})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.NetAmount.Equal(first.NetAmount))
	assertBalance(t, f, user, "80")

	_, _, err = f.withdrawals.Create(ctx, WithdrawalInput{UserID: user, Amount: d("25"), Idempotency: IdempotencyKey{Key: "wd-1", Hash: "h2"}})
	assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)
	assertBalance(t, f, user, "80")
}

func TestRechargeCreditedOnlyOnApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "0")

	r, err := f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("25"), ChainName: "ETH", TransactionID: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, r.Status)
	assertBalance(t, f, user, "0")

	_, err = f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("25"), ChainName: "ETH", TransactionID: "0xabc"})
	assert.ErrorIs(t, err, domain.ErrDuplicateProof)

	approved, err := f.recharges.Approve(ctx, r.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, approved.Status)
	assertBalance(t, f, user, "25")

	_, err = f.recharges.Approve(ctx, r.ID, 7)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assertBalance(t, f, user, "25")
	assertBalanceInvariant(t, f, user)

	assert.Contains(t, f.pub.types(), domain.EventRequestReviewed)
}

func TestRechargeRejectLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "0")

	r, err := f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("25"), TransactionID: "0xdef"})
	require.NoError(t, err)

	rejected, err := f.recharges.Reject(ctx, r.ID, 7, "proof not found on chain")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)
	assertBalance(t, f, user, "0")
	assert.Empty(t, f.mem.Transactions(user))

	pending, err := f.recharges.List(ctx, domain.RequestFilter{Status: domain.RequestPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRechargeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "0")

	_, err := f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("0"), TransactionID: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("50.000000001"), TransactionID: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("1e13"), TransactionID: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("9"), TransactionID: "b"})
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)
	_, err = f.recharges.Create(ctx, RechargeInput{UserID: 12345, Amount: d("50"), TransactionID: "c"})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = f.recharges.Approve(ctx, 424242, 1)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestRequestReviewRetriesAreSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "0")

	r, err := f.recharges.Create(ctx, RechargeInput{UserID: user, Amount: d("30"), TransactionID: "0x1"})
	require.NoError(t, err)

	f.mem.LockFailures = 1
	_, err = f.recharges.Approve(ctx, r.ID, 1)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assertBalance(t, f, user, "0")

	_, err = f.recharges.Approve(ctx, r.ID, 1)
	require.NoError(t, err)
	assertBalance(t, f, user, "30")
}
