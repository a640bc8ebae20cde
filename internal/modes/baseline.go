package modes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const baselineTTL = 6 * time.Hour

// BaselineStore persists the mode-specific snapshot captured at
// proposal-commit time, §3 "Baseline ... stored in Redis with a 6-hour
// TTL, keyed by bet_id", generalized from the teacher's
// internal/cache round-state pattern to this domain's baseline shape.
type BaselineStore struct {
	client *redis.Client
}

func NewBaselineStore(client *redis.Client) *BaselineStore {
	return &BaselineStore{client: client}
}

func baselineKey(betID string) string {
	return fmt.Sprintf("baseline:%s", betID)
}

// Put writes a baseline once; it returns an error if a baseline already
// exists for this bet, enforcing §3's "baselines are immutable once
// written".
func (s *BaselineStore) Put(ctx context.Context, betID string, baseline any) error {
	data, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("modes: marshal baseline: %w", err)
	}
	ok, err := s.client.SetNX(ctx, baselineKey(betID), data, baselineTTL).Result()
	if err != nil {
		return fmt.Errorf("modes: write baseline: %w", err)
	}
	if !ok {
		return fmt.Errorf("modes: baseline for bet %s already exists", betID)
	}
	return nil
}

// Get loads and decodes a baseline into dest (a pointer), returning
// redis.Nil if none exists (e.g. expired past the 6h TTL, or the refined
// file it depended on was cleaned up and the validator should wash).
func (s *BaselineStore) Get(ctx context.Context, betID string, dest any) error {
	data, err := s.client.Get(ctx, baselineKey(betID)).Result()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("modes: decode baseline: %w", err)
	}
	return nil
}

func (s *BaselineStore) Delete(ctx context.Context, betID string) error {
	return s.client.Del(ctx, baselineKey(betID)).Err()
}
