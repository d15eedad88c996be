package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummariesAcrossIsoYearBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "0")
	plan := f.mem.AddPlan(d("10"), d("1.10"), 30)
	f.mem.AddSubscription(user, plan, date(2024, 12, 28), date(2025, 1, 26))

	for _, day := range []int{28, 29, 30, 31} {
		_, err := f.accrual.RunAccrualFor(ctx, date(2024, 12, day))
		require.NoError(t, err)
	}
	_, err := f.accrual.RunAccrualFor(ctx, date(2025, 1, 1))
	require.NoError(t, err)

	byKey := map[string]domain.DailyReturnSummary{}
	for _, s := range f.mem.Summaries(user) {
		byKey[string(s.PeriodType)+"/"+s.PeriodKey] = s
	}

	assert.True(t, byKey["week/2024-W52"].TotalAmount.Equal(d("2.20")))
	assert.EqualValues(t, 2, byKey["week/2024-W52"].Count)
	assert.True(t, byKey["week/2025-W01"].TotalAmount.Equal(d("3.30")))
	assert.True(t, byKey["month/2024-12"].TotalAmount.Equal(d("4.40")))
	assert.True(t, byKey["month/2025-01"].TotalAmount.Equal(d("1.10")))
	assert.EqualValues(t, 1, byKey["day/2025-01-01"].Count)
	assert.Len(t, byKey, 5+2+2)

	check, err := f.summary.Verify(ctx, user)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.True(t, check.LogTotal.Equal(d("5.50")))
}

func TestSummaryRebuildRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, "0")
	plan := f.mem.AddPlan(d("10"), d("0.3"), 30)
	f.mem.AddSubscription(user, plan, date(2025, 3, 1), date(2025, 3, 30))
	for day := 1; day <= 4; day++ {
		_, err := f.accrual.RunAccrualFor(ctx, date(2025, 3, day))
		require.NoError(t, err)
	}
	before := rollupLines(f.mem.Summaries(user))

	f.mem.CorruptSummary(user, domain.PeriodMonth, "2025-03", d("99"))
	check, err := f.summary.Verify(ctx, user)
	require.NoError(t, err)
	assert.False(t, check.Consistent)

	replayed, err := f.summary.Rebuild(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 4, replayed)

	check, err = f.summary.Verify(ctx, user)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, before, rollupLines(f.mem.Summaries(user)))
}

func rollupLines(rows []domain.DailyReturnSummary) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, fmt.Sprintf("%s %s %s x%d", r.PeriodType, r.PeriodKey, r.TotalAmount.StringFixed(8), r.Count))
	}
	return out
}

func TestSummaryVerifyUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.summary.Verify(context.Background(), 31337)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
