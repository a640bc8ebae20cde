package modes

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
)

func newTestBaselines(t *testing.T) *BaselineStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBaselineStore(client)
}

type fakeReadAPI struct {
	status  livedata.GameStatus
	doc     livedata.RefinedGameDoc
	stats   map[string]float64 // "playerID:category" -> value
	getErr  error
}

func (f *fakeReadAPI) GetGameStatus(ctx context.Context, league, gameID string) (livedata.GameStatus, error) {
	return f.status, f.getErr
}
func (f *fakeReadAPI) GetGameDoc(ctx context.Context, league, gameID string) (livedata.RefinedGameDoc, error) {
	return f.doc, f.getErr
}
func (f *fakeReadAPI) GetHomeTeam(ctx context.Context, league, gameID string) (livedata.Team, error) {
	return livedata.Team{}, f.getErr
}
func (f *fakeReadAPI) GetAwayTeam(ctx context.Context, league, gameID string) (livedata.Team, error) {
	return livedata.Team{}, f.getErr
}
func (f *fakeReadAPI) GetPossessionTeamID(ctx context.Context, league, gameID string) (string, error) {
	return "", f.getErr
}
func (f *fakeReadAPI) GetPlayerStat(ctx context.Context, league, gameID, playerID, category string) (float64, error) {
	if f.getErr != nil {
		return 0, f.getErr
	}
	v, ok := f.stats[playerID+":"+category]
	if !ok {
		return 0, errNoStat
	}
	return v, nil
}
func (f *fakeReadAPI) Invalidate(league, gameID string) {}

var errNoStat = &statErr{}

type statErr struct{}

func (*statErr) Error() string { return "no such stat" }

func TestEitherOrMode_ValidateResolvesHigherDelta(t *testing.T) {
	baselines := newTestBaselines(t)
	m := NewEitherOrMode(baselines)
	ctx := context.Background()

	if err := baselines.Put(ctx, "bet1", EitherOrBaseline{Player1Stat0: 10, Player2Stat0: 5, ResolveAtPeriod: 2}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	gameID := "G1"
	bet := domain.BetProposal{BetID: "bet1", League: "NFL", LeagueGameID: &gameID}
	config := map[string]any{"player1_id": "P1", "player2_id": "P2", "stat": "receivingYards"}

	live := &fakeReadAPI{
		status: "STATUS_IN_PROGRESS",
		doc:    livedata.RefinedGameDoc{Period: "2"},
		stats:  map[string]float64{"P1:receivingYards": 25, "P2:receivingYards": 12},
	}

	decision, err := m.Validate(ctx, bet, config, live)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if decision.WinningChoice != "P1" {
		t.Errorf("decision = %+v, want WinningChoice=P1", decision)
	}
}

func TestEitherOrMode_WashesOnEarlyFinal(t *testing.T) {
	baselines := newTestBaselines(t)
	m := NewEitherOrMode(baselines)
	ctx := context.Background()

	if err := baselines.Put(ctx, "bet2", EitherOrBaseline{Player1Stat0: 10, Player2Stat0: 5, ResolveAtPeriod: 4}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	gameID := "G2"
	bet := domain.BetProposal{BetID: "bet2", League: "NFL", LeagueGameID: &gameID}
	config := map[string]any{"player1_id": "P1", "player2_id": "P2", "stat": "receivingYards"}

	live := &fakeReadAPI{status: "STATUS_FINAL", doc: livedata.RefinedGameDoc{Period: "1"}}

	decision, err := m.Validate(ctx, bet, config, live)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !decision.Wash {
		t.Errorf("decision = %+v, want Wash=true", decision)
	}
}

func TestEitherOrMode_BaselineImmutable(t *testing.T) {
	baselines := newTestBaselines(t)
	ctx := context.Background()
	if err := baselines.Put(ctx, "bet3", EitherOrBaseline{Player1Stat0: 1}); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := baselines.Put(ctx, "bet3", EitherOrBaseline{Player1Stat0: 2}); err == nil {
		t.Fatal("expected second Put() to fail, baselines are immutable")
	}
}
