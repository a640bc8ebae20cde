// Package livedata is the Live Data Store of SPEC_FULL.md §4.A: a periodic
// ingest loop that refines raw provider payloads into RefinedGameDoc files,
// guarded by a circuit breaker, and a cached Read API that mode resolvers
// consult for baselines and outcomes.
package livedata

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ReadAPI is the small accessor library of §4.A "Read API" that mode
// resolvers depend on; internal/modes consumes this interface rather than
// the concrete Store so mode tests can fake it.
type ReadAPI interface {
	GetGameStatus(ctx context.Context, league, gameID string) (GameStatus, error)
	GetGameDoc(ctx context.Context, league, gameID string) (RefinedGameDoc, error)
	GetHomeTeam(ctx context.Context, league, gameID string) (Team, error)
	GetAwayTeam(ctx context.Context, league, gameID string) (Team, error)
	GetPossessionTeamID(ctx context.Context, league, gameID string) (string, error)
	GetPlayerStat(ctx context.Context, league, gameID, playerID, category string) (float64, error)
	Invalidate(league, gameID string)
}

type cacheEntry struct {
	doc       RefinedGameDoc
	cachedAt  time.Time
}

// Store implements ReadAPI over a FileStore, fronted by an in-process TTL
// cache with singleflight-coalesced misses, grounded on
// MOHCentral-opm-stats-api's go.mod golang.org/x/sync usage pattern
// (cache-miss coalescing under concurrent readers).
type Store struct {
	fs  *FileStore
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry

	group singleflight.Group
}

// NewStore builds a Store with the given cache TTL, §4.A "TTL ≈ 90% of the
// ingest interval (minimum 5 s)".
func NewStore(fs *FileStore, ttl time.Duration) *Store {
	if ttl < 5*time.Second {
		ttl = 5 * time.Second
	}
	return &Store{fs: fs, ttl: ttl, cache: make(map[string]cacheEntry)}
}

func cacheKey(league, gameID string) string {
	return league + ":" + gameID
}

func (s *Store) GetGameDoc(ctx context.Context, league, gameID string) (RefinedGameDoc, error) {
	key := cacheKey(league, gameID)

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Since(entry.cachedAt) < s.ttl {
		return entry.doc, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		doc, err := s.fs.ReadRefined(league, gameID)
		if err != nil {
			return RefinedGameDoc{}, err
		}
		s.mu.Lock()
		s.cache[key] = cacheEntry{doc: doc, cachedAt: time.Now()}
		s.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return RefinedGameDoc{}, err
	}
	return v.(RefinedGameDoc), nil
}

// Invalidate flushes the cache entry for (league, gameID), §4.A "explicit
// invalidate(gameId) for post-write flushes" — called by the ingest loop
// right after a fresh refined write.
func (s *Store) Invalidate(league, gameID string) {
	s.mu.Lock()
	delete(s.cache, cacheKey(league, gameID))
	s.mu.Unlock()
}

func (s *Store) GetGameStatus(ctx context.Context, league, gameID string) (GameStatus, error) {
	doc, err := s.GetGameDoc(ctx, league, gameID)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

func (s *Store) GetHomeTeam(ctx context.Context, league, gameID string) (Team, error) {
	doc, err := s.GetGameDoc(ctx, league, gameID)
	if err != nil {
		return Team{}, err
	}
	t, ok := doc.HomeTeam()
	if !ok {
		return Team{}, fmt.Errorf("livedata: no home team for game %s", gameID)
	}
	return t, nil
}

func (s *Store) GetAwayTeam(ctx context.Context, league, gameID string) (Team, error) {
	doc, err := s.GetGameDoc(ctx, league, gameID)
	if err != nil {
		return Team{}, err
	}
	t, ok := doc.AwayTeam()
	if !ok {
		return Team{}, fmt.Errorf("livedata: no away team for game %s", gameID)
	}
	return t, nil
}

func (s *Store) GetPossessionTeamID(ctx context.Context, league, gameID string) (string, error) {
	doc, err := s.GetGameDoc(ctx, league, gameID)
	if err != nil {
		return "", err
	}
	id, ok := doc.PossessionTeamID()
	if !ok {
		return "", fmt.Errorf("livedata: no possession flag set for game %s", gameID)
	}
	return id, nil
}

func (s *Store) GetPlayerStat(ctx context.Context, league, gameID, playerID, category string) (float64, error) {
	doc, err := s.GetGameDoc(ctx, league, gameID)
	if err != nil {
		return 0, err
	}
	v, ok := doc.PlayerStat(playerID, category)
	if !ok {
		return 0, fmt.Errorf("livedata: no stat %q for player %s in game %s", category, playerID, gameID)
	}
	return v, nil
}

// Ingest is the background polling loop of §4.A, generalized from the
// teacher's internal/game round-ticker loops (time.Ticker + jitter + a
// stop channel checked on every tick).
type Ingest struct {
	fs       *FileStore
	store    *Store
	provider Provider
	refiners map[string]Refiner
	logger   zerolog.Logger

	breakers map[string]*breaker

	stop chan struct{}
	done chan struct{}
}

// IngestConfig configures one Ingest loop instance.
type IngestConfig struct {
	Leagues              []string
	BaseInterval         time.Duration
	JitterPercent        int
	BreakerThreshold     int
	BreakerCooldown      time.Duration
	RawCleanupAge        time.Duration
	FinalCleanupAge      time.Duration
}

func NewIngest(fs *FileStore, store *Store, provider Provider, refiners []Refiner, cfg IngestConfig, logger zerolog.Logger) *Ingest {
	refinerByLeague := make(map[string]Refiner, len(refiners))
	breakers := make(map[string]*breaker, len(cfg.Leagues))
	for _, r := range refiners {
		refinerByLeague[r.League()] = r
	}
	for _, league := range cfg.Leagues {
		breakers[league] = newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	return &Ingest{
		fs:       fs,
		store:    store,
		provider: provider,
		refiners: refinerByLeague,
		logger:   logger,
		breakers: breakers,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// BreakerState reports the circuit breaker state for a league, consumed by
// internal/metrics for the breaker-state gauge.
func (ig *Ingest) BreakerState(league string) BreakerState {
	b, ok := ig.breakers[league]
	if !ok {
		return BreakerClosed
	}
	return b.State()
}

// BreakerStateValue adapts BreakerState to an int for internal/metrics,
// which polls this without importing the livedata package's enum type.
func (ig *Ingest) BreakerStateValue(league string) int {
	return int(ig.BreakerState(league))
}

func jitteredInterval(base time.Duration, jitterPercent int) time.Duration {
	if jitterPercent <= 0 {
		return base
	}
	spread := float64(base) * float64(jitterPercent) / 100.0
	delta := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(base) + delta)
}

// Run drives the ingest loop until ctx is cancelled or Stop is called.
func (ig *Ingest) Run(ctx context.Context, cfg IngestConfig) {
	defer close(ig.done)
	for {
		interval := jitteredInterval(cfg.BaseInterval, cfg.JitterPercent)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-ig.stop:
			timer.Stop()
			return
		case <-timer.C:
			for _, league := range cfg.Leagues {
				ig.tick(ctx, league, cfg)
			}
		}
	}
}

func (ig *Ingest) Stop() {
	close(ig.stop)
	<-ig.done
}

func (ig *Ingest) tick(ctx context.Context, league string, cfg IngestConfig) {
	b := ig.breakers[league]
	if b != nil && !b.Allow(time.Now()) {
		return
	}

	events, err := ig.provider.FetchScoreboard(ctx, league)
	if err != nil {
		if b != nil {
			b.RecordFailure(time.Now())
		}
		ig.logger.Warn().Err(err).Str("league", league).Msg("scoreboard fetch failed")
		return
	}
	if b != nil {
		b.RecordSuccess()
	}

	refiner, hasRefiner := ig.refiners[league]

	for _, ev := range events {
		if ev.GameState != "in" && ev.GameState != "pre" {
			continue
		}
		raw, err := ig.provider.FetchRaw(ctx, league, ev.GameID)
		if err != nil {
			ig.logger.Warn().Err(err).Str("league", league).Str("gameId", ev.GameID).Msg("raw fetch failed, skipping this cycle")
			continue
		}
		if err := ig.fs.WriteRaw(league, ev.GameID, raw); err != nil {
			ig.logger.Error().Err(err).Str("gameId", ev.GameID).Msg("write raw failed")
			continue
		}
		if !hasRefiner {
			continue
		}
		doc, err := refiner.Refine(raw)
		if err != nil {
			ig.logger.Warn().Err(err).Str("gameId", ev.GameID).Msg("refine failed, skipping this cycle")
			continue
		}
		doc.GameID = ev.GameID
		doc.League = league
		doc.RefinedAt = time.Now()
		if err := ig.fs.WriteRefined(league, ev.GameID, doc); err != nil {
			ig.logger.Error().Err(err).Str("gameId", ev.GameID).Msg("write refined failed")
			continue
		}
		ig.store.Invalidate(league, ev.GameID)
	}

	ig.cleanup(league, events, cfg)
}

func (ig *Ingest) cleanup(league string, events []ScoreboardEvent, cfg IngestConfig) {
	finalSet := make(map[string]bool, len(events))
	for _, ev := range events {
		if ev.GameState == "post" {
			finalSet[ev.GameID] = true
		}
	}
	isFinal := func(gameID string) bool { return finalSet[gameID] }

	if _, err := ig.fs.CleanupRaw(league, cfg.RawCleanupAge, cfg.FinalCleanupAge, isFinal, time.Now()); err != nil {
		ig.logger.Warn().Err(err).Str("league", league).Msg("raw cleanup failed")
	}
	if _, err := ig.fs.CleanupOrphanRefined(league); err != nil {
		ig.logger.Warn().Err(err).Str("league", league).Msg("orphan cleanup failed")
	}
}
