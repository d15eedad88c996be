// Package pub publishes committed ledger events over Redis pub/sub.
package pub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "yieldledger:ledger_events"

// RedisPublisher is fire-and-forget: events are emitted after commit and a
// delivery failure is logged, never propagated to the ledger operation.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, log *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...domain.LedgerEvent) {
	for _, ev := range events {
		if err := p.publish(ctx, ev); err != nil {
			p.log.Warn("ledger event dropped",
				zap.String("event_id", ev.ID),
				zap.String("type", ev.Type),
				zap.Int64("user_id", ev.UserID),
				zap.Error(err))
		}
	}
}

func (p *RedisPublisher) publish(ctx context.Context, ev domain.LedgerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.log.Debug("ledger event published",
		zap.String("type", ev.Type),
		zap.Int64("user_id", ev.UserID),
		zap.Int64("transaction_id", ev.TransactionID))
	return nil
}
