package livedata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileStore_AtomicWriteRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	doc := RefinedGameDoc{GameID: "g1", League: "nfl", Status: StatusInProgress, Teams: []Team{
		{ID: "home", Home: true, Score: 7, Possession: true},
		{ID: "away", Home: false, Score: 3},
	}}
	if err := fs.WriteRefined("nfl", "g1", doc); err != nil {
		t.Fatalf("WriteRefined() error = %v", err)
	}
	got, err := fs.ReadRefined("nfl", "g1")
	if err != nil {
		t.Fatalf("ReadRefined() error = %v", err)
	}
	if got.GameID != "g1" || got.Status != StatusInProgress {
		t.Errorf("got = %+v", got)
	}
	if id, ok := got.PossessionTeamID(); !ok || id != "home" {
		t.Errorf("PossessionTeamID() = %q, %v, want home, true", id, ok)
	}
}

func TestFileStore_CleanupOrphanRefined(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	doc := RefinedGameDoc{GameID: "g2", League: "nba", Status: StatusFinal}
	if err := fs.WriteRefined("nba", "g2", doc); err != nil {
		t.Fatalf("WriteRefined() error = %v", err)
	}
	// no matching raw file exists for g2, so it's an orphan.
	removed, err := fs.CleanupOrphanRefined("nba")
	if err != nil {
		t.Fatalf("CleanupOrphanRefined() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := fs.ReadRefined("nba", "g2"); err == nil {
		t.Fatal("expected refined file to be gone")
	}
}

type fakeProvider struct {
	mu          sync.Mutex
	events      []ScoreboardEvent
	raw         map[string][]byte
	scoreboardErr error
	calls       int32
}

func (f *fakeProvider) FetchScoreboard(ctx context.Context, league string) ([]ScoreboardEvent, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scoreboardErr != nil {
		return nil, f.scoreboardErr
	}
	return f.events, nil
}

func (f *fakeProvider) FetchRaw(ctx context.Context, league, gameID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.raw[gameID]
	if !ok {
		return nil, errors.New("no such game")
	}
	return data, nil
}

type fakeRefiner struct{ league string }

func (r fakeRefiner) League() string { return r.league }
func (r fakeRefiner) Refine(raw []byte) (RefinedGameDoc, error) {
	return RefinedGameDoc{Status: StatusInProgress, Teams: []Team{{ID: "home", Home: true}}}, nil
}

func TestIngest_TickWritesRefinedAndInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	store := NewStore(fs, 5*time.Second)
	provider := &fakeProvider{
		events: []ScoreboardEvent{{GameID: "g1", League: "nfl", GameState: "in"}},
		raw:    map[string][]byte{"g1": []byte(`{}`)},
	}
	ig := NewIngest(fs, store, provider, []Refiner{fakeRefiner{league: "nfl"}}, IngestConfig{
		Leagues: []string{"nfl"}, BreakerThreshold: 3, BreakerCooldown: time.Second,
		RawCleanupAge: time.Hour, FinalCleanupAge: time.Hour,
	}, testLogger())

	ctx := context.Background()
	ig.tick(ctx, "nfl", IngestConfig{Leagues: []string{"nfl"}, RawCleanupAge: time.Hour, FinalCleanupAge: time.Hour})

	doc, err := store.GetGameDoc(ctx, "nfl", "g1")
	if err != nil {
		t.Fatalf("GetGameDoc() error = %v", err)
	}
	if doc.Status != StatusInProgress {
		t.Errorf("doc.Status = %v, want in_progress", doc.Status)
	}
}

func TestIngest_ScoreboardFailureOpensBreaker(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	store := NewStore(fs, 5*time.Second)
	provider := &fakeProvider{scoreboardErr: errors.New("upstream down")}
	ig := NewIngest(fs, store, provider, nil, IngestConfig{
		Leagues: []string{"nfl"}, BreakerThreshold: 2, BreakerCooldown: time.Minute,
	}, testLogger())

	cfg := IngestConfig{Leagues: []string{"nfl"}, RawCleanupAge: time.Hour, FinalCleanupAge: time.Hour}
	ctx := context.Background()
	ig.tick(ctx, "nfl", cfg)
	ig.tick(ctx, "nfl", cfg)

	if ig.BreakerState("nfl") != BreakerOpen {
		t.Fatalf("breaker state = %v, want open after repeated failures", ig.BreakerState("nfl"))
	}

	callsBefore := provider.calls
	ig.tick(ctx, "nfl", cfg)
	if provider.calls != callsBefore {
		t.Error("open breaker should have skipped the provider call")
	}
}
