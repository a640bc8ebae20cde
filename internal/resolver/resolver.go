// Package resolver implements the Mode Resolvers of SPEC_FULL.md §4.H: a
// polling sweep that asks each registered mode to judge its own pending
// bets against live data, then enqueues the terminal decision onto the
// Resolution Queue. It also owns the three queue job handlers (§4.G's job
// contract table) since persisting a decision and computing the
// settlement snapshot are two faces of the same mode-aware operation.
// Grounded on the teacher's gameLoop ticker idiom, generalized the same
// way internal/lifecycle.Worker already does.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/hub"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
	"github.com/jackhudsonnnn/p2picks/internal/queue"
)

// BetRepo is the narrow slice of BetProposalRepo this worker needs.
type BetRepo interface {
	ListResolvable(ctx context.Context, league, modeKey string) ([]domain.BetProposal, error)
	SetWinningChoice(ctx context.Context, betID, winningChoice string, resolvedAt time.Time) (bool, error)
	Wash(ctx context.Context, betID string, resolvedAt time.Time) (bool, error)
}

// HistoryStore is the slice of ResolutionHistoryRepo this worker needs.
type HistoryStore interface {
	Append(ctx context.Context, e domain.ResolutionHistoryEvent) error
	LatestByType(ctx context.Context, betID, eventType string) (domain.ResolutionHistoryEvent, error)
}

// Enqueuer is the slice of *queue.Queue this worker needs; narrowed so
// tests can fake the dispatch boundary without a real Redis connection.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) error
}

// Broadcaster is the slice of *hub.Hub this worker needs to push
// resolution events to subscribed websocket clients. Optional: a nil
// Broadcaster simply skips the push.
type Broadcaster interface {
	Publish(ev hub.Event)
}

// historyPayload is the optional settlement snapshot attached to a
// set_winning_choice or wash_bet job, §4.G's job contract table.
type historyPayload struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

type setWinningChoicePayload struct {
	WinningChoice string           `json:"winningChoice"`
	History       *historyPayload  `json:"history,omitempty"`
}

type washBetPayload struct {
	Payload     json.RawMessage `json:"payload"`
	Explanation string          `json:"explanation"`
	EventType   string          `json:"eventType"`
	ModeLabel   string          `json:"modeLabel"`
}

type recordHistoryPayload struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// Worker is the sweep loop plus the queue job handlers.
type Worker struct {
	bets     BetRepo
	history  HistoryStore
	registry *modes.Registry
	live     livedata.ReadAPI
	queue    Enqueuer
	hub      Broadcaster

	leagues      []string
	pollInterval time.Duration
	logger       zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

func NewWorker(bets BetRepo, history HistoryStore, registry *modes.Registry, live livedata.ReadAPI, q Enqueuer, b Broadcaster, leagues []string, pollInterval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		bets:         bets,
		history:      history,
		registry:     registry,
		live:         live,
		queue:        q,
		hub:          b,
		leagues:      leagues,
		pollInterval: pollInterval,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (w *Worker) publish(ev hub.Event) {
	if w.hub != nil {
		w.hub.Publish(ev)
	}
}

// RegisterHandlers binds the three §4.G job types to this worker's
// handlers. Call on the concrete *queue.Queue before Start.
func (w *Worker) RegisterHandlers(q *queue.Queue) {
	q.RegisterHandler(queue.TypeSetWinningChoice, w.handleSetWinningChoice)
	q.RegisterHandler(queue.TypeWashBet, w.handleWashBet)
	q.RegisterHandler(queue.TypeRecordHistory, w.handleRecordHistory)
}

// Run drives the sweep loop until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func modeSupports(mod modes.Module, league string) bool {
	for _, l := range mod.SupportedLeagues() {
		if l == "*" || l == league {
			return true
		}
	}
	return false
}

// Sweep evaluates every (mode, league, active-or-pending bet) triple once,
// §4.G's job contract covering both statuses. Exported so cmd/server can
// also run it synchronously at startup if desired.
func (w *Worker) Sweep(ctx context.Context) {
	for _, mod := range w.registry.All() {
		for _, league := range w.leagues {
			if !modeSupports(mod, league) {
				continue
			}
			bets, err := w.bets.ListResolvable(ctx, league, mod.Key())
			if err != nil {
				w.logger.Warn().Err(err).Str("league", league).Str("mode", mod.Key()).Msg("resolver: list resolvable failed")
				continue
			}
			for _, bet := range bets {
				w.evaluate(ctx, mod, bet)
			}
		}
	}
}

func (w *Worker) loadModeConfig(ctx context.Context, betID string) (map[string]any, error) {
	event, err := w.history.LatestByType(ctx, betID, domain.EventTypeModeConfig)
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(event.Payload, &cfg); err != nil {
		return nil, fmt.Errorf("resolver: decode mode_config: %w", err)
	}
	return cfg, nil
}

func (w *Worker) evaluate(ctx context.Context, mod modes.Module, bet domain.BetProposal) {
	cfg, err := w.loadModeConfig(ctx, bet.BetID)
	if err != nil {
		w.logger.Warn().Err(err).Str("betId", bet.BetID).Msg("resolver: load mode_config failed")
		return
	}

	decision, err := mod.Validate(ctx, bet, cfg, w.live)
	if err != nil {
		w.logger.Warn().Err(err).Str("betId", bet.BetID).Str("mode", mod.Key()).Msg("resolver: validate failed")
		return
	}
	if decision.StillRunning {
		return
	}

	snapshot := w.snapshot(ctx, mod, bet, cfg)

	if decision.Wash {
		w.enqueueWash(ctx, mod, bet, decision, snapshot)
		return
	}
	if decision.WinningChoice != "" {
		w.enqueueResolve(ctx, bet, decision, snapshot)
	}
}

// snapshot computes the settlement live-info projection, best-effort:
// a failure here never blocks the resolve/wash decision itself, §4.H
// "Snapshot at settlement".
func (w *Worker) snapshot(ctx context.Context, mod modes.Module, bet domain.BetProposal, cfg map[string]any) json.RawMessage {
	info, err := mod.GetLiveInfo(ctx, bet, cfg)
	if err != nil {
		w.logger.Warn().Err(err).Str("betId", bet.BetID).Msg("resolver: live-info snapshot failed")
		return nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil
	}
	return data
}

func (w *Worker) enqueueResolve(ctx context.Context, bet domain.BetProposal, decision modes.Decision, snapshot json.RawMessage) {
	payload := setWinningChoicePayload{WinningChoice: decision.WinningChoice}
	if snapshot != nil {
		payload.History = &historyPayload{EventType: domain.EventTypeLiveInfoSnapshot, Payload: snapshot}
	}
	req := queue.EnqueueRequest{
		Type:     queue.TypeSetWinningChoice,
		BetID:    bet.BetID,
		DedupKey: "resolve-" + bet.BetID,
		Payload:  payload,
	}
	if err := w.queue.Enqueue(ctx, req); err != nil {
		w.logger.Error().Err(err).Str("betId", bet.BetID).Msg("resolver: enqueue resolve failed")
	}
}

func (w *Worker) enqueueWash(ctx context.Context, mod modes.Module, bet domain.BetProposal, decision modes.Decision, snapshot json.RawMessage) {
	payload := washBetPayload{
		Payload:     snapshot,
		Explanation: decision.Explanation,
		EventType:   domain.EventTypeWashed,
		ModeLabel:   mod.Label(),
	}
	req := queue.EnqueueRequest{
		Type:     queue.TypeWashBet,
		BetID:    bet.BetID,
		DedupKey: "wash-" + bet.BetID,
		Payload:  payload,
	}
	if err := w.queue.Enqueue(ctx, req); err != nil {
		w.logger.Error().Err(err).Str("betId", bet.BetID).Msg("resolver: enqueue wash failed")
	}
}

func (w *Worker) appendHistory(ctx context.Context, betID, eventType string, payload json.RawMessage) {
	if payload == nil {
		return
	}
	event := domain.ResolutionHistoryEvent{
		EventID:   uuid.NewString(),
		BetID:     betID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.history.Append(ctx, event); err != nil {
		w.logger.Error().Err(err).Str("betId", betID).Str("eventType", eventType).Msg("resolver: append history failed")
	}
}

// handleSetWinningChoice is the set_winning_choice handler of §4.G's job
// contract table.
func (w *Worker) handleSetWinningChoice(ctx context.Context, job queue.Job) error {
	var p setWinningChoicePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("resolver: decode set_winning_choice payload: %w", err)
	}

	ok, err := w.bets.SetWinningChoice(ctx, job.BetID, p.WinningChoice, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolver: set winning choice: %w", err)
	}
	if !ok {
		// Already resolved/washed by a prior attempt; the conditional
		// UPDATE protects us, nothing further to do.
		return nil
	}

	resolvedPayload, _ := json.Marshal(map[string]string{"winningChoice": p.WinningChoice})
	w.appendHistory(ctx, job.BetID, domain.EventTypeResolved, resolvedPayload)
	if p.History != nil {
		w.appendHistory(ctx, job.BetID, p.History.EventType, p.History.Payload)
	}
	w.publish(hub.Event{Type: "resolved", Topic: hub.BetTopic(job.BetID), Data: map[string]string{"winningChoice": p.WinningChoice}})
	return nil
}

// handleWashBet is the wash_bet handler of §4.G's job contract table.
func (w *Worker) handleWashBet(ctx context.Context, job queue.Job) error {
	var p washBetPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("resolver: decode wash_bet payload: %w", err)
	}

	ok, err := w.bets.Wash(ctx, job.BetID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolver: wash bet: %w", err)
	}
	if !ok {
		return nil
	}

	washedPayload, _ := json.Marshal(map[string]string{"explanation": p.Explanation, "modeLabel": p.ModeLabel})
	w.appendHistory(ctx, job.BetID, p.EventType, washedPayload)
	if p.Payload != nil {
		w.appendHistory(ctx, job.BetID, domain.EventTypeLiveInfoSnapshot, p.Payload)
	}
	w.publish(hub.Event{Type: "washed", Topic: hub.BetTopic(job.BetID), Data: map[string]string{"explanation": p.Explanation}})
	return nil
}

// handleRecordHistory is the record_history handler of §4.G's job
// contract table: an unconditional audit-log insert, no dedup key.
func (w *Worker) handleRecordHistory(ctx context.Context, job queue.Job) error {
	var p recordHistoryPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("resolver: decode record_history payload: %w", err)
	}
	event := domain.ResolutionHistoryEvent{
		EventID:   uuid.NewString(),
		BetID:     job.BetID,
		EventType: p.EventType,
		Payload:   p.Payload,
		CreatedAt: time.Now().UTC(),
	}
	return w.history.Append(ctx, event)
}
