// Package idempotency implements the Idempotency-Key claim/replay contract
// of SPEC_FULL.md §4.E, built directly on the same redis.Client usage as
// internal/cache (SET NX claim, TTL refresh, replay on completion).
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
)

const ttl = 24 * time.Hour
const processingSentinel = "__processing__"

// Record is the captured response body+status replayed on a duplicate
// request with the same key.
type Record struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%s", idempotencyKey)
}

// Claim attempts to acquire the lock for idempotencyKey. If a replay of a
// completed request arrives, it returns (record, true, nil). If a replay
// arrives while the original is still processing, it returns
// apperror.IdempotencyConflict(). If the claim is fresh, it returns
// (nil, false, nil) and the caller must call Complete when done.
func (s *Store) Claim(ctx context.Context, idempotencyKey string) (*Record, bool, error) {
	k := key(idempotencyKey)

	ok, err := s.client.SetNX(ctx, k, processingSentinel, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: claim: %w", err)
	}
	if ok {
		return nil, false, nil
	}

	existing, err := s.client.Get(ctx, k).Result()
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: read existing: %w", err)
	}
	if existing == processingSentinel {
		return nil, false, apperror.IdempotencyConflict()
	}

	var rec Record
	if err := json.Unmarshal([]byte(existing), &rec); err != nil {
		return nil, false, fmt.Errorf("idempotency: decode stored record: %w", err)
	}
	return &rec, true, nil
}

// Complete stores the final response so replays return byte-identical
// bodies and statuses, per §8 property 5.
func (s *Store) Complete(ctx context.Context, idempotencyKey string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	return s.client.Set(ctx, key(idempotencyKey), payload, ttl).Err()
}

// Release clears a claim, used when the handler fails before producing a
// response worth replaying (so a retry with the same key can proceed
// fresh instead of being stuck at __processing__ until TTL expiry).
func (s *Store) Release(ctx context.Context, idempotencyKey string) error {
	return s.client.Del(ctx, key(idempotencyKey)).Err()
}
