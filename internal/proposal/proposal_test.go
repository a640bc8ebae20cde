package proposal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
	"github.com/jackhudsonnnn/p2picks/internal/database"
	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
	"github.com/jackhudsonnnn/p2picks/internal/ratelimit"
	"github.com/jackhudsonnnn/p2picks/internal/session"
)

type fakeTables struct{ member bool }

func (f fakeTables) IsMember(ctx context.Context, tableID, userID string) (bool, error) {
	return f.member, nil
}

type fakeBets struct {
	mu    sync.Mutex
	rows  map[string]domain.BetProposal
	calls []string
}

func newFakeBets() *fakeBets { return &fakeBets{rows: map[string]domain.BetProposal{}} }

func (f *fakeBets) Insert(ctx context.Context, b domain.BetProposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "insert:"+b.BetID)
	f.rows[b.BetID] = b
	return nil
}

func (f *fakeBets) Get(ctx context.Context, betID string) (domain.BetProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[betID]
	if !ok {
		return domain.BetProposal{}, database.ErrNoRows
	}
	return b, nil
}

func (f *fakeBets) Delete(ctx context.Context, betID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+betID)
	delete(f.rows, betID)
	return nil
}

type fakeHistory struct {
	mu     sync.Mutex
	events []domain.ResolutionHistoryEvent
	fail   bool
}

func (f *fakeHistory) Append(ctx context.Context, e domain.ResolutionHistoryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return apperror.Internal("boom")
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeHistory) LatestByType(ctx context.Context, betID, eventType string) (domain.ResolutionHistoryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].BetID == betID && f.events[i].EventType == eventType {
			return f.events[i], nil
		}
	}
	return domain.ResolutionHistoryEvent{}, database.ErrNoRows
}

type fakeFeed struct {
	mu   sync.Mutex
	rows []domain.FeedItem
}

func (f *fakeFeed) Insert(ctx context.Context, item domain.FeedItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, item)
	return nil
}

type fakeLive struct{ status livedata.GameStatus }

func (f fakeLive) GetGameStatus(ctx context.Context, league, gameID string) (livedata.GameStatus, error) {
	return f.status, nil
}
func (f fakeLive) GetGameDoc(ctx context.Context, league, gameID string) (livedata.RefinedGameDoc, error) {
	return livedata.RefinedGameDoc{}, nil
}
func (f fakeLive) GetHomeTeam(ctx context.Context, league, gameID string) (livedata.Team, error) {
	return livedata.Team{}, nil
}
func (f fakeLive) GetAwayTeam(ctx context.Context, league, gameID string) (livedata.Team, error) {
	return livedata.Team{}, nil
}
func (f fakeLive) GetPossessionTeamID(ctx context.Context, league, gameID string) (string, error) {
	return "", nil
}
func (f fakeLive) GetPlayerStat(ctx context.Context, league, gameID, playerID, category string) (float64, error) {
	return 0, nil
}
func (f fakeLive) Invalidate(league, gameID string) {}

func newTestRegistry() *modes.Registry {
	r := modes.NewRegistry()
	r.Register(modes.NewU2PickMode())
	r.Finalize()
	return r
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestService(t *testing.T, tables TableMembership, bets *fakeBets, hist *fakeHistory, feed *fakeFeed, live livedata.ReadAPI) *Service {
	t.Helper()
	client := newTestRedis(t)
	registry := newTestRegistry()
	sessions := session.NewService(client, registry)
	limiter := ratelimit.New(client, zerolog.Nop())
	return NewService(sessions, registry, limiter, live, tables, bets, hist, feed)
}

func TestCreate_RawBody_U2Pick(t *testing.T) {
	ctx := context.Background()
	bets := newFakeBets()
	hist := &fakeHistory{}
	feed := &fakeFeed{}
	svc := newTestService(t, fakeTables{member: true}, bets, hist, feed, fakeLive{status: livedata.StatusInProgress})

	bet, err := svc.Create(ctx, Request{
		TableID:          "table-1",
		ProposerUserID:   "user-1",
		ModeKey:          "u2pick",
		League:           "NFL",
		Description:      "Who scores next?",
		ModeConfig:       map[string]any{"options": []string{"a", "b"}},
		WagerAmount:      1.5,
		TimeLimitSeconds: 30,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if bet.BetStatus != domain.BetStatusActive {
		t.Errorf("BetStatus = %v, want active", bet.BetStatus)
	}
	if len(hist.events) != 1 || hist.events[0].EventType != domain.EventTypeModeConfig {
		t.Errorf("expected one mode_config history event, got %+v", hist.events)
	}
	if len(feed.rows) != 1 {
		t.Errorf("expected one feed item, got %d", len(feed.rows))
	}
}

func TestCreate_RejectsNonMember(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, fakeTables{member: false}, newFakeBets(), &fakeHistory{}, &fakeFeed{}, fakeLive{status: livedata.StatusInProgress})

	_, err := svc.Create(ctx, Request{TableID: "t", ProposerUserID: "u", ModeKey: "u2pick", League: "NFL"})
	apperr, ok := apperror.As(err)
	if !ok || apperr.Code != "FORBIDDEN" {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}

func TestCreate_RejectsFinishedGame(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, fakeTables{member: true}, newFakeBets(), &fakeHistory{}, &fakeFeed{}, fakeLive{status: livedata.StatusFinal})

	_, err := svc.Create(ctx, Request{
		TableID: "t", ProposerUserID: "u", ModeKey: "u2pick", League: "NFL",
		LeagueGameID: "game-1", ModeConfig: map[string]any{"options": []string{"a", "b"}},
	})
	apperr, ok := apperror.As(err)
	if !ok || apperr.Code != "BAD_INPUT" {
		t.Fatalf("err = %v, want BAD_INPUT", err)
	}
}

func TestCreate_CompensatingDeleteOnHistoryFailure(t *testing.T) {
	ctx := context.Background()
	bets := newFakeBets()
	hist := &fakeHistory{fail: true}
	svc := newTestService(t, fakeTables{member: true}, bets, hist, &fakeFeed{}, fakeLive{status: livedata.StatusInProgress})

	_, err := svc.Create(ctx, Request{
		TableID: "t", ProposerUserID: "u", ModeKey: "u2pick", League: "NFL",
		ModeConfig: map[string]any{"options": []string{"a", "b"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(bets.rows) != 0 {
		t.Errorf("expected compensating delete, row still present: %+v", bets.rows)
	}
	foundDelete := false
	for _, c := range bets.calls {
		if len(c) >= 7 && c[:7] == "delete:" {
			foundDelete = true
		}
	}
	if !foundDelete {
		t.Errorf("expected a delete call, got %v", bets.calls)
	}
}

func TestPoke_RequiresSettledSource(t *testing.T) {
	ctx := context.Background()
	bets := newFakeBets()
	now := time.Now().UTC()
	bets.rows["bet-active"] = domain.BetProposal{BetID: "bet-active", BetStatus: domain.BetStatusActive, ProposalTime: now, CloseTime: now}
	svc := newTestService(t, fakeTables{member: true}, bets, &fakeHistory{}, &fakeFeed{}, fakeLive{status: livedata.StatusInProgress})

	_, err := svc.Poke(ctx, "bet-active", "user-1")
	apperr, ok := apperror.As(err)
	if !ok || apperr.Code != "BAD_INPUT" {
		t.Fatalf("err = %v, want BAD_INPUT", err)
	}
}

func TestPoke_ReproposesSettledBet(t *testing.T) {
	ctx := context.Background()
	bets := newFakeBets()
	hist := &fakeHistory{}
	now := time.Now().UTC()
	source := domain.BetProposal{
		BetID: "bet-done", TableID: "table-1", ProposerUserID: "user-1", League: "NFL",
		ModeKey: "u2pick", Description: "orig", ProposalTime: now, CloseTime: now,
		BetStatus: domain.BetStatusResolved, TimeLimitSecs: 30,
	}
	bets.rows[source.BetID] = source
	cfgPayload, _ := json.Marshal(map[string]any{"options": []string{"a", "b"}, "league": "NFL"})
	hist.events = append(hist.events, domain.ResolutionHistoryEvent{
		BetID: source.BetID, EventType: domain.EventTypeModeConfig, Payload: cfgPayload, CreatedAt: now,
	})

	svc := newTestService(t, fakeTables{member: true}, bets, hist, &fakeFeed{}, fakeLive{status: livedata.StatusInProgress})

	newBet, err := svc.Poke(ctx, source.BetID, "user-2")
	if err != nil {
		t.Fatalf("Poke() error = %v", err)
	}
	if newBet.OriginBetID == nil || *newBet.OriginBetID != source.BetID {
		t.Errorf("OriginBetID = %v, want %s", newBet.OriginBetID, source.BetID)
	}
	if newBet.BetID == source.BetID {
		t.Error("expected a fresh bet id")
	}
}
