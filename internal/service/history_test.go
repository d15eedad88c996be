package service

import (
	"context"
	"testing"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionsPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "1")
	for i := 0; i < 4; i++ {
		_, err := f.wallet.CreditNow(ctx, user, d("2"), domain.SourceReward, int64(i), "")
		require.NoError(t, err)
	}

	page, err := f.history.Transactions(ctx, user, domain.PageQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, domain.PageMeta{Page: 2, Limit: 2, TotalItems: 5, TotalPages: 3, HasNextPage: true, HasPreviousPage: true}, page.Meta)
	assert.Greater(t, page.Data[0].ID, page.Data[1].ID, "newest first by default")

	page, err = f.history.Transactions(ctx, user, domain.PageQuery{SortBy: "amount", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Data, 5)
	assert.True(t, page.Data[0].Amount.Equal(d("1")))

	_, err = f.history.Transactions(ctx, 999, domain.PageQuery{})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDailyReturnsGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "0")
	plan := f.mem.AddPlan(d("10"), d("0.5"), 60)
	f.mem.AddSubscription(user, plan, date(2025, 1, 1), date(2025, 3, 1))
	for _, day := range []time.Time{date(2025, 1, 30), date(2025, 1, 31), date(2025, 2, 1), date(2025, 2, 2)} {
		_, err := f.accrual.RunAccrualFor(ctx, day)
		require.NoError(t, err)
	}

	months, err := f.history.DailyReturns(ctx, user, time.Time{}, domain.PeriodMonth)
	require.NoError(t, err)
	require.Len(t, months.Data, 2)
	assert.Equal(t, "2025-01", months.Data[0].PeriodKey)
	assert.True(t, months.Summary.TotalProfit.Equal(d("2")))

	days, err := f.history.DailyReturns(ctx, user, date(2025, 1, 31), domain.PeriodDay)
	require.NoError(t, err)
	require.Len(t, days.Data, 3)
	assert.Equal(t, "2025-01-31", days.Data[0].PeriodKey)
	assert.True(t, days.Summary.TotalProfit.Equal(d("1.5")))

	// 2025-01-30 is a Thursday in ISO week 5; since mid-week still includes it.
	weeks, err := f.history.DailyReturns(ctx, user, date(2025, 2, 1), domain.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, weeks.Data, 1)
	assert.Equal(t, "2025-W05", weeks.Data[0].PeriodKey)
	assert.EqualValues(t, 4, weeks.Data[0].Count)

	bal, err := f.history.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, bal.WalletBalance.Equal(d("2")))
}
