package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/yieldledger/internal/store"
)

// IdempotencyKey is the client-supplied key of a money-moving request plus
// a hash of the request payload. The zero value disables replay protection.
type IdempotencyKey struct {
	Key  string
	Hash string
}

// idempotent runs op under k inside tx. When k was already completed with
// the same payload, the stored result is decoded and returned with
// replayed=true and op is not run. The stored result is the response as it
// was at creation; later state changes such as an approval are not reflected.
func idempotent[T any](ctx context.Context, tx store.Tx, userID int64, scope string, k IdempotencyKey, op func() (*T, error)) (*T, bool, error) {
	if k.Key == "" {
		v, err := op()
		return v, false, err
	}

	rec, err := tx.ReserveIdempotencyKey(ctx, userID, k.Key, scope, k.Hash)
	if err != nil {
		return nil, false, err
	}
	if rec != nil {
		var v T
		if err := json.Unmarshal(rec.ResponseBody, &v); err != nil {
			return nil, false, fmt.Errorf("stored response for key %q unreadable: %w", k.Key, err)
		}
		return &v, true, nil
	}

	v, err := op()
	if err != nil {
		return nil, false, err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	if err := tx.CompleteIdempotencyKey(ctx, userID, k.Key, body); err != nil {
		return nil, false, err
	}
	return v, false, nil
}
