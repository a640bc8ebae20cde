package resolver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
	"github.com/jackhudsonnnn/p2picks/internal/queue"
)

type fakeBetRepo struct {
	mu       sync.Mutex
	pending  map[string][]domain.BetProposal // key: league|modeKey
	resolved map[string]string
	washed   map[string]bool
}

func newFakeBetRepo() *fakeBetRepo {
	return &fakeBetRepo{pending: make(map[string][]domain.BetProposal), resolved: make(map[string]string), washed: make(map[string]bool)}
}

func (f *fakeBetRepo) ListResolvable(ctx context.Context, league, modeKey string) ([]domain.BetProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[league+"|"+modeKey], nil
}

func (f *fakeBetRepo) SetWinningChoice(ctx context.Context, betID, winningChoice string, resolvedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, done := f.resolved[betID]; done {
		return false, nil
	}
	if f.washed[betID] {
		return false, nil
	}
	f.resolved[betID] = winningChoice
	return true, nil
}

func (f *fakeBetRepo) Wash(ctx context.Context, betID string, resolvedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.washed[betID] {
		return false, nil
	}
	if _, done := f.resolved[betID]; done {
		return false, nil
	}
	f.washed[betID] = true
	return true, nil
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	configs map[string]map[string]any
	events  []domain.ResolutionHistoryEvent
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{configs: make(map[string]map[string]any)}
}

func (f *fakeHistoryStore) Append(ctx context.Context, e domain.ResolutionHistoryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeHistoryStore) LatestByType(ctx context.Context, betID, eventType string) (domain.ResolutionHistoryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[betID]
	if !ok {
		return domain.ResolutionHistoryEvent{}, nil
	}
	payload, _ := json.Marshal(cfg)
	return domain.ResolutionHistoryEvent{BetID: betID, EventType: eventType, Payload: payload}, nil
}

type fakeEnqueuer struct {
	mu  sync.Mutex
	got []queue.EnqueueRequest
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, req queue.EnqueueRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	return nil
}

func (f *fakeEnqueuer) requests() []queue.EnqueueRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.EnqueueRequest, len(f.got))
	copy(out, f.got)
	return out
}

// stubMode is a minimal modes.Module whose Validate decision is fixed per
// test, standing in for a real resolver like either_or.
type stubMode struct {
	key      string
	decision modes.Decision
}

func (m stubMode) Key() string                { return m.key }
func (m stubMode) SupportedLeagues() []string { return []string{"nfl"} }
func (m stubMode) Label() string              { return "Stub" }
func (m stubMode) Overview() string           { return "" }
func (m stubMode) RequiresInProgress() bool   { return false }
func (m stubMode) ComputeOptions(ctx context.Context, input modes.ConfigInput) ([]string, error) {
	return nil, nil
}
func (m stubMode) ComputeWinningCondition(ctx context.Context, input modes.ConfigInput) (string, error) {
	return "", nil
}
func (m stubMode) BuildUserConfig(ctx context.Context, input modes.ConfigInput) ([]modes.WizardStep, error) {
	return nil, nil
}
func (m stubMode) ValidateProposal(ctx context.Context, input modes.ConfigInput) (modes.ValidationResult, error) {
	return modes.ValidationResult{Valid: true}, nil
}
func (m stubMode) PrepareConfig(ctx context.Context, input modes.PrepareInput) (map[string]any, error) {
	return input.Config, nil
}
func (m stubMode) CaptureBaseline(ctx context.Context, live livedata.ReadAPI, betID string, config map[string]any) error {
	return nil
}
func (m stubMode) GetLiveInfo(ctx context.Context, bet domain.BetProposal, config map[string]any) (modes.LiveInfo, error) {
	return modes.LiveInfo{Fields: []modes.LiveInfoField{{Label: "score", Value: "7-3"}}}, nil
}
func (m stubMode) Validate(ctx context.Context, bet domain.BetProposal, config map[string]any, live livedata.ReadAPI) (modes.Decision, error) {
	return m.decision, nil
}

func newTestRegistry(mod modes.Module) *modes.Registry {
	r := modes.NewRegistry()
	r.Register(mod)
	r.Finalize()
	return r
}

func TestSweep_StillRunning_EnqueuesNothing(t *testing.T) {
	mod := stubMode{key: "either_or", decision: modes.Decision{StillRunning: true}}
	bets := newFakeBetRepo()
	bets.pending["nfl|either_or"] = []domain.BetProposal{{BetID: "bet-1"}}
	history := newFakeHistoryStore()
	history.configs["bet-1"] = map[string]any{"x": "y"}
	enq := &fakeEnqueuer{}

	w := NewWorker(bets, history, newTestRegistry(mod), nil, enq, nil, []string{"nfl"}, time.Second, zerolog.Nop())
	w.Sweep(context.Background())

	if len(enq.requests()) != 0 {
		t.Fatalf("expected no enqueue for still-running decision, got %+v", enq.requests())
	}
}

func TestSweep_Resolve_EnqueuesSetWinningChoice(t *testing.T) {
	mod := stubMode{key: "either_or", decision: modes.Decision{WinningChoice: "player1"}}
	bets := newFakeBetRepo()
	bets.pending["nfl|either_or"] = []domain.BetProposal{{BetID: "bet-2"}}
	history := newFakeHistoryStore()
	history.configs["bet-2"] = map[string]any{}
	enq := &fakeEnqueuer{}

	w := NewWorker(bets, history, newTestRegistry(mod), nil, enq, nil, []string{"nfl"}, time.Second, zerolog.Nop())
	w.Sweep(context.Background())

	reqs := enq.requests()
	if len(reqs) != 1 || reqs[0].Type != queue.TypeSetWinningChoice || reqs[0].DedupKey != "resolve-bet-2" {
		t.Fatalf("unexpected enqueue requests: %+v", reqs)
	}
}

func TestSweep_Wash_EnqueuesWashBet(t *testing.T) {
	mod := stubMode{key: "either_or", decision: modes.Decision{Wash: true, Explanation: "game ended early"}}
	bets := newFakeBetRepo()
	bets.pending["nfl|either_or"] = []domain.BetProposal{{BetID: "bet-3"}}
	history := newFakeHistoryStore()
	history.configs["bet-3"] = map[string]any{}
	enq := &fakeEnqueuer{}

	w := NewWorker(bets, history, newTestRegistry(mod), nil, enq, nil, []string{"nfl"}, time.Second, zerolog.Nop())
	w.Sweep(context.Background())

	reqs := enq.requests()
	if len(reqs) != 1 || reqs[0].Type != queue.TypeWashBet || reqs[0].DedupKey != "wash-bet-3" {
		t.Fatalf("unexpected enqueue requests: %+v", reqs)
	}
}

func TestHandleSetWinningChoice_AppendsResolvedAndSnapshot(t *testing.T) {
	bets := newFakeBetRepo()
	history := newFakeHistoryStore()
	w := NewWorker(bets, history, newTestRegistry(stubMode{key: "m"}), nil, &fakeEnqueuer{}, nil, nil, time.Second, zerolog.Nop())

	payload, _ := json.Marshal(setWinningChoicePayload{
		WinningChoice: "player1",
		History:       &historyPayload{EventType: domain.EventTypeLiveInfoSnapshot, Payload: json.RawMessage(`{"score":"7-3"}`)},
	})
	job := queue.Job{BetID: "bet-4", Type: queue.TypeSetWinningChoice, Payload: payload}

	if err := w.handleSetWinningChoice(context.Background(), job); err != nil {
		t.Fatalf("handleSetWinningChoice() error = %v", err)
	}
	if bets.resolved["bet-4"] != "player1" {
		t.Fatalf("bet not resolved, got %+v", bets.resolved)
	}
	if len(history.events) != 2 {
		t.Fatalf("expected 2 history events (resolved + snapshot), got %d", len(history.events))
	}
}

func TestHandleSetWinningChoice_NoopWhenAlreadyResolved(t *testing.T) {
	bets := newFakeBetRepo()
	bets.resolved["bet-5"] = "player2"
	history := newFakeHistoryStore()
	w := NewWorker(bets, history, newTestRegistry(stubMode{key: "m"}), nil, &fakeEnqueuer{}, nil, nil, time.Second, zerolog.Nop())

	payload, _ := json.Marshal(setWinningChoicePayload{WinningChoice: "player1"})
	job := queue.Job{BetID: "bet-5", Type: queue.TypeSetWinningChoice, Payload: payload}

	if err := w.handleSetWinningChoice(context.Background(), job); err != nil {
		t.Fatalf("handleSetWinningChoice() error = %v", err)
	}
	if bets.resolved["bet-5"] != "player2" {
		t.Fatalf("resolved choice should be unchanged, got %q", bets.resolved["bet-5"])
	}
	if len(history.events) != 0 {
		t.Fatalf("expected no history writes on a no-op update, got %d", len(history.events))
	}
}

func TestHandleWashBet_AppendsWashedAndSnapshot(t *testing.T) {
	bets := newFakeBetRepo()
	history := newFakeHistoryStore()
	w := NewWorker(bets, history, newTestRegistry(stubMode{key: "m"}), nil, &fakeEnqueuer{}, nil, nil, time.Second, zerolog.Nop())

	payload, _ := json.Marshal(washBetPayload{
		Explanation: "drive never ended",
		EventType:   domain.EventTypeWashed,
		ModeLabel:   "Choose Their Fate",
		Payload:     json.RawMessage(`{"score":"7-3"}`),
	})
	job := queue.Job{BetID: "bet-6", Type: queue.TypeWashBet, Payload: payload}

	if err := w.handleWashBet(context.Background(), job); err != nil {
		t.Fatalf("handleWashBet() error = %v", err)
	}
	if !bets.washed["bet-6"] {
		t.Fatalf("bet not washed")
	}
	if len(history.events) != 2 {
		t.Fatalf("expected 2 history events (washed + snapshot), got %d", len(history.events))
	}
}

func TestHandleRecordHistory_AppendsEvent(t *testing.T) {
	bets := newFakeBetRepo()
	history := newFakeHistoryStore()
	w := NewWorker(bets, history, newTestRegistry(stubMode{key: "m"}), nil, &fakeEnqueuer{}, nil, nil, time.Second, zerolog.Nop())

	payload, _ := json.Marshal(recordHistoryPayload{EventType: "custom_event", Payload: json.RawMessage(`{"a":1}`)})
	job := queue.Job{BetID: "bet-7", Type: queue.TypeRecordHistory, Payload: payload}

	if err := w.handleRecordHistory(context.Background(), job); err != nil {
		t.Fatalf("handleRecordHistory() error = %v", err)
	}
	if len(history.events) != 1 || history.events[0].EventType != "custom_event" {
		t.Fatalf("unexpected history events: %+v", history.events)
	}
}
