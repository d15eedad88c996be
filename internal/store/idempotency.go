package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/domain"
)

// ReserveIdempotencyKey inserts the key as in_progress in the caller's
// transaction. A concurrent request with the same key blocks on the primary
// key until this transaction ends, then either sees the completed record or
// fails with a unique violation (translated to ErrIdempotencyConflict).
func (t *pgTx) ReserveIdempotencyKey(ctx context.Context, userID int64, key, scope, hash string) (*domain.IdempotencyRecord, error) {
	rec := domain.IdempotencyRecord{UserID: userID, Key: key}
	var status string
	err := t.tx.QueryRow(ctx, `
		SELECT scope, request_hash, status, response_body
		FROM idempotency_keys
		WHERE user_id = $1 AND key = $2`,
		userID, key,
	).Scan(&rec.Scope, &rec.RequestHash, &status, &rec.ResponseBody)

	if err == nil {
		if rec.RequestHash != hash || rec.Scope != scope {
			return nil, domain.ErrIdempotencyMismatch
		}
		if status != "completed" {
			return nil, domain.ErrIdempotencyConflict
		}
		return &rec, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, scope, request_hash, status)
		VALUES ($1, $2, $3, $4, 'in_progress')`,
		userID, key, scope, hash)
	if err != nil {
		return nil, fmt.Errorf("key reservation failed: %w", err)
	}
	return nil, nil
}

func (t *pgTx) CompleteIdempotencyKey(ctx context.Context, userID int64, key string, body []byte) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = 'completed', response_body = $1
		WHERE user_id = $2 AND key = $3`,
		body, userID, key)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}
