// Package cache puts a Redis TTL cache in front of the platform settings row.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const settingsKey = "yieldledger:settings:platform"

// Source is the authoritative settings reader behind the cache.
type Source interface {
	Settings(ctx context.Context) (domain.Settings, error)
}

// Settings serves settings from Redis and falls back to Source on a miss or
// when Redis is unavailable. A nil client disables caching.
type Settings struct {
	src Source
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewSettings(src Source, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Settings {
	if log == nil {
		log = zap.NewNop()
	}
	return &Settings{src: src, rdb: rdb, ttl: ttl, log: log}
}

func (c *Settings) Settings(ctx context.Context) (domain.Settings, error) {
	if c.rdb == nil || c.ttl <= 0 {
		return c.src.Settings(ctx)
	}

	val, err := c.rdb.Get(ctx, settingsKey).Bytes()
	switch {
	case err == nil:
		var s domain.Settings
		if err := json.Unmarshal(val, &s); err == nil && s.Validate() == nil {
			return s, nil
		}
		c.log.Warn("discarding unreadable cached settings")
	case !errors.Is(err, redis.Nil):
		c.log.Warn("settings cache read failed", zap.Error(err))
	}

	s, err := c.src.Settings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if data, err := json.Marshal(s); err == nil {
		if err := c.rdb.Set(ctx, settingsKey, data, c.ttl).Err(); err != nil {
			c.log.Warn("settings cache write failed", zap.Error(err))
		}
	}
	return s, nil
}

// Invalidate drops the cached copy so the next read goes to Source.
func (c *Settings) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, settingsKey).Err()
}
