package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/punchamoorthee/yieldledger/internal/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func platform(fee string) domain.Settings {
	return domain.Settings{
		MinRecharge:   decimal.NewFromInt(10),
		MinWithdrawal: decimal.NewFromInt(10),
		WithdrawalFee: decimal.RequireFromString(fee),
		PrincipalTax:  decimal.Zero,
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSettingsCachedUntilExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	src := storetest.NewSettings(platform("1.5"))
	c := NewSettings(src, rdb, time.Minute, nil)
	ctx := context.Background()

	s, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, s.WithdrawalFee.Equal(decimal.RequireFromString("1.5")))

	src.Set(platform("2"))
	s, err = c.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, s.WithdrawalFee.Equal(decimal.RequireFromString("1.5")), "served from cache")
	assert.Equal(t, 1, src.Reads)

	mr.FastForward(2 * time.Minute)
	s, err = c.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, s.WithdrawalFee.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, 2, src.Reads)
}

func TestSettingsInvalidate(t *testing.T) {
	_, rdb := newRedis(t)
	src := storetest.NewSettings(platform("1"))
	c := NewSettings(src, rdb, time.Hour, nil)
	ctx := context.Background()

	_, err := c.Settings(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	_, err = c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Reads)
}

func TestSettingsFallsBackWhenRedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	src := storetest.NewSettings(platform("3"))
	c := NewSettings(src, rdb, time.Minute, nil)
	mr.Close()

	s, err := c.Settings(context.Background())
	require.NoError(t, err)
	assert.True(t, s.WithdrawalFee.Equal(decimal.NewFromInt(3)))
}

func TestSettingsWithoutClient(t *testing.T) {
	src := storetest.NewSettings(platform("1"))
	c := NewSettings(src, nil, time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Settings(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.Reads)
	assert.NoError(t, c.Invalidate(context.Background()))
}

func TestSettingsSourceErrorNotCached(t *testing.T) {
	_, rdb := newRedis(t)
	src := storetest.NewSettings(platform("1"))
	src.Fail(domain.ErrInvalidSettings)
	c := NewSettings(src, rdb, time.Minute, nil)

	_, err := c.Settings(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)
	assert.Equal(t, int64(0), rdb.Exists(context.Background(), settingsKey).Val())
}
