package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

const defaultIdempotencyTTL = 7 * 24 * time.Hour

// idempotent replays a stored response when key was already used for the same
// request. An empty key or a nil store runs fn unguarded.
func idempotent[T any](
	ctx context.Context,
	store ports.IdempotencyStore,
	key string,
	request map[string]any,
	now time.Time,
	ttl time.Duration,
	fn func() (T, error),
) (T, error) {
	var zero T
	key = strings.TrimSpace(key)
	if store == nil || key == "" {
		return fn()
	}
	requestHash := hashPayload(request)
	record, found, err := store.GetIdempotency(ctx, key, now)
	if err != nil {
		return zero, err
	}
	if found {
		if record.RequestHash != requestHash {
			return zero, domainerrors.ErrIdempotencyKeyConflict
		}
		var replayed T
		if err := json.Unmarshal(record.Response, &replayed); err != nil {
			return zero, err
		}
		return replayed, nil
	}

	result, err := fn()
	if err != nil {
		return zero, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return zero, err
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if err := store.PutIdempotency(ctx, ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Response:    payload,
		ExpiresAt:   now.Add(ttl),
	}); err != nil {
		return zero, err
	}
	return result, nil
}

func hashPayload(payload map[string]any) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
