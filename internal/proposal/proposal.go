// Package proposal implements the Bet Proposal Service pipeline of
// SPEC_FULL.md §4.E: the single place a bet row is born, wired together
// from the rate limiter, the config session wizard, the mode registry and
// the relational store, modeled on the teacher's internal/game round-start
// orchestration (validate -> persist -> enrich -> broadcast).
package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
	"github.com/jackhudsonnnn/p2picks/internal/database"
	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
	"github.com/jackhudsonnnn/p2picks/internal/ratelimit"
	"github.com/jackhudsonnnn/p2picks/internal/session"
)

// Request is the input to Create, assembled by the HTTP layer from either
// a config session or a raw body, §4.E step 3.
type Request struct {
	TableID          string
	ProposerUserID   string
	ConfigSessionID  string // empty when the caller submits a raw body
	ModeKey          string
	League           string
	LeagueGameID     string
	ModeConfig       map[string]any
	Description      string
	WagerAmount      float64
	TimeLimitSeconds int
	OriginBetID      *string // set by Poke, §4.E "Poke"
}

// Preview mirrors session.Preview for the raw-body path so both entry
// points surface the same shape to callers.
type Preview struct {
	WinningCondition string
	Options          []string
	Errors           []string
}

// TableMembership is the slice of TableRepo this pipeline depends on,
// narrowed to an interface so tests can fake the external membership
// boundary without a database.
type TableMembership interface {
	IsMember(ctx context.Context, tableID, userID string) (bool, error)
}

// BetStore is the slice of BetProposalRepo the pipeline needs.
type BetStore interface {
	Insert(ctx context.Context, b domain.BetProposal) error
	Get(ctx context.Context, betID string) (domain.BetProposal, error)
	Delete(ctx context.Context, betID string) error
}

// HistoryStore is the slice of ResolutionHistoryRepo the pipeline needs.
type HistoryStore interface {
	Append(ctx context.Context, e domain.ResolutionHistoryEvent) error
	LatestByType(ctx context.Context, betID, eventType string) (domain.ResolutionHistoryEvent, error)
}

// FeedStore is the slice of FeedItemRepo the pipeline needs.
type FeedStore interface {
	Insert(ctx context.Context, item domain.FeedItem) error
}

// Service commits validated, enriched bets atomically, §4.E.
type Service struct {
	sessions  *session.Service
	registry  *modes.Registry
	limiter   *ratelimit.Limiter
	live      livedata.ReadAPI
	tables    TableMembership
	bets      BetStore
	history   HistoryStore
	feedItems FeedStore
}

func NewService(
	sessions *session.Service,
	registry *modes.Registry,
	limiter *ratelimit.Limiter,
	live livedata.ReadAPI,
	tables TableMembership,
	bets BetStore,
	history HistoryStore,
	feedItems FeedStore,
) *Service {
	return &Service{
		sessions:  sessions,
		registry:  registry,
		limiter:   limiter,
		live:      live,
		tables:    tables,
		bets:      bets,
		history:   history,
		feedItems: feedItems,
	}
}

// resolved is the fully-derived input to the remaining pipeline steps
// after step 3 (session resolution or raw-body validation).
type resolved struct {
	modeKey          string
	league           string
	leagueGameID     string
	config           map[string]any
	description      string
	wagerAmount      float64
	timeLimitSeconds int
}

func lookupMode(registry *modes.Registry, league, modeKey string) (modes.Module, error) {
	mod, err := registry.Lookup(league, modeKey)
	switch err {
	case nil:
		return mod, nil
	case modes.ErrModeNotFound:
		return nil, apperror.ModeNotFound(modeKey)
	case modes.ErrModeUnavailableForLeague:
		return nil, apperror.ModeUnavailableForLeague(modeKey, league)
	default:
		return nil, err
	}
}

// resolveFromSession loads a committed config session (§4.C "commit") and
// adapts it into the pipeline's resolved shape, §4.E step 3.
func (s *Service) resolveFromSession(ctx context.Context, sessionID string) (resolved, modes.Module, error) {
	sess, err := s.sessions.Commit(ctx, sessionID)
	if err != nil {
		return resolved{}, nil, err
	}
	mod, err := lookupMode(s.registry, sess.League, sess.ModeKey)
	if err != nil {
		return resolved{}, nil, err
	}

	cfg := make(map[string]any, len(sess.Steps)+2)
	for key, step := range sess.Steps {
		cfg[key] = step.SelectedChoiceID
	}
	cfg["league"] = sess.League
	cfg["leagueGameId"] = sess.LeagueGameID

	var wager float64
	var timeLimit int
	if sess.General.WagerAmount != nil {
		wager = *sess.General.WagerAmount
	}
	if sess.General.TimeLimitSeconds != nil {
		timeLimit = *sess.General.TimeLimitSeconds
	}

	return resolved{
		modeKey:          sess.ModeKey,
		league:           sess.League,
		leagueGameID:     sess.LeagueGameID,
		config:           cfg,
		description:      sess.Preview.WinningCondition,
		wagerAmount:      wager,
		timeLimitSeconds: timeLimit,
	}, mod, nil
}

// resolveFromRawBody adapts a raw-body request, §4.E step 3 "raw-body
// validation".
func (s *Service) resolveFromRawBody(req Request) (resolved, modes.Module, error) {
	mod, err := lookupMode(s.registry, req.League, req.ModeKey)
	if err != nil {
		return resolved{}, nil, err
	}

	cfg := make(map[string]any, len(req.ModeConfig)+2)
	for k, v := range req.ModeConfig {
		cfg[k] = v
	}
	cfg["league"] = req.League
	cfg["leagueGameId"] = req.LeagueGameID

	return resolved{
		modeKey:          req.ModeKey,
		league:           req.League,
		leagueGameID:     req.LeagueGameID,
		config:           cfg,
		description:      req.Description,
		wagerAmount:      req.WagerAmount,
		timeLimitSeconds: req.TimeLimitSeconds,
	}, mod, nil
}

// configInput adapts an enriched config map back into a modes.ConfigInput
// so validateProposal / validateModeConfig can run over either the
// wizard-built or raw-body-built config through the same code path, §4.E
// step 6.
func configInput(r resolved) modes.ConfigInput {
	steps := make(map[string]modes.WizardStep, len(r.config))
	for k, v := range r.config {
		if k == "league" || k == "leagueGameId" {
			continue
		}
		switch val := v.(type) {
		case string:
			steps[k] = modes.WizardStep{Key: k, SelectedChoiceID: val, Completed: val != ""}
		case []string:
			steps[k] = modes.WizardStep{Key: k, Choices: choicesFromLabels(val), Completed: len(val) > 0}
		case []any:
			labels := make([]string, 0, len(val))
			for _, item := range val {
				if s, ok := item.(string); ok {
					labels = append(labels, s)
				}
			}
			steps[k] = modes.WizardStep{Key: k, Choices: choicesFromLabels(labels), Completed: len(labels) > 0}
		}
	}
	return modes.ConfigInput{League: r.league, LeagueGameID: r.leagueGameID, Steps: steps}
}

func choicesFromLabels(labels []string) []modes.Choice {
	choices := make([]modes.Choice, len(labels))
	for i, label := range labels {
		choices[i] = modes.Choice{ID: label, Label: label}
	}
	return choices
}

// gateOnLiveStatus implements §4.E step 5: reject STATUS_FINAL for every
// mode, and STATUS_IN_PROGRESS-only modes reject anything else. Modes
// with no league_game_id skip the gate entirely.
func (s *Service) gateOnLiveStatus(ctx context.Context, mod modes.Module, r resolved) error {
	if r.leagueGameID == "" {
		return nil
	}
	status, err := s.live.GetGameStatus(ctx, r.league, r.leagueGameID)
	if err != nil {
		// Gating is best-effort: an unavailable live document does not
		// block a proposal, it just skips the status check.
		return nil
	}
	if status == livedata.StatusFinal {
		return apperror.BadInput("cannot propose a bet on a game that has already finished")
	}
	if mod.RequiresInProgress() && status != livedata.StatusInProgress {
		return apperror.BadInput(fmt.Sprintf("mode %q requires the game to be in progress", mod.Key()))
	}
	return nil
}

// Create runs the full §4.E pipeline and returns the committed bet.
func (s *Service) Create(ctx context.Context, req Request) (domain.BetProposal, error) {
	// Step 1: table-membership check (external system boundary).
	member, err := s.tables.IsMember(ctx, req.TableID, req.ProposerUserID)
	if err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: membership check: %w", err)
	}
	if !member {
		return domain.BetProposal{}, apperror.Forbidden("not a member of this table")
	}

	// Step 2: rate limit.
	subject := req.ProposerUserID + ":" + req.TableID
	limit, err := s.limiter.Check(ctx, ratelimit.KindBets, subject)
	if err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: rate limit: %w", err)
	}
	if !limit.Allowed {
		return domain.BetProposal{}, apperror.RateLimited("too many bet proposals, try again shortly")
	}

	// Step 3: resolve session or raw body.
	var r resolved
	var mod modes.Module
	if req.ConfigSessionID != "" {
		r, mod, err = s.resolveFromSession(ctx, req.ConfigSessionID)
	} else {
		r, mod, err = s.resolveFromRawBody(req)
	}
	if err != nil {
		// Step 4 is folded into resolve*: mode lookup failures surface here.
		return domain.BetProposal{}, err
	}

	// Step 5: live-data gating.
	if err := s.gateOnLiveStatus(ctx, mod, r); err != nil {
		return domain.BetProposal{}, err
	}

	// Step 6: validateProposal + validateModeConfig. The teacher's modes
	// expose a single ValidateProposal hook that already covers both —
	// there is no distinct mode-config-only check in this catalogue.
	input := configInput(r)
	result, err := mod.ValidateProposal(ctx, input)
	if err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: validate: %w", err)
	}
	if !result.Valid {
		return domain.BetProposal{}, apperror.ValidationError(result.Error)
	}

	// Step 7: build and check the preview.
	condition, err := mod.ComputeWinningCondition(ctx, input)
	if err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: compute winning condition: %w", err)
	}
	if _, err := mod.ComputeOptions(ctx, input); err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: compute options: %w", err)
	}
	description := r.description
	if description == "" {
		description = condition
	}

	// Step 8: insert with clamping.
	now := time.Now().UTC()
	clampedWager := database.ClampWager(decimal.NewFromFloat(r.wagerAmount))
	clampedTimeLimit := database.ClampTimeLimit(r.timeLimitSeconds)
	closeTime := now.Add(time.Duration(clampedTimeLimit) * time.Second)

	var leagueGameID *string
	if r.leagueGameID != "" {
		leagueGameID = &r.leagueGameID
	}

	bet := domain.BetProposal{
		BetID:          uuid.NewString(),
		TableID:        req.TableID,
		ProposerUserID: req.ProposerUserID,
		League:         r.league,
		LeagueGameID:   leagueGameID,
		ModeKey:        r.modeKey,
		Description:    description,
		WagerAmount:    clampedWager,
		TimeLimitSecs:  clampedTimeLimit,
		ProposalTime:   now,
		CloseTime:      closeTime,
		BetStatus:      domain.BetStatusActive,
		OriginBetID:    req.OriginBetID,
	}
	if err := s.bets.Insert(ctx, bet); err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: insert: %w", err)
	}

	// Step 9: prepareConfig, persist as a mode_config history event,
	// capture baseline. A storage failure here compensating-deletes the
	// row just inserted.
	enriched, err := mod.PrepareConfig(ctx, modes.PrepareInput{Bet: bet, Config: r.config})
	if err != nil {
		s.compensate(ctx, bet.BetID)
		return domain.BetProposal{}, fmt.Errorf("proposal: prepare config: %w", err)
	}

	payload, err := json.Marshal(enriched)
	if err != nil {
		s.compensate(ctx, bet.BetID)
		return domain.BetProposal{}, fmt.Errorf("proposal: marshal mode config: %w", err)
	}
	event := domain.ResolutionHistoryEvent{
		EventID:   uuid.NewString(),
		BetID:     bet.BetID,
		EventType: domain.EventTypeModeConfig,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := s.history.Append(ctx, event); err != nil {
		s.compensate(ctx, bet.BetID)
		return domain.BetProposal{}, fmt.Errorf("proposal: persist mode config: %w", err)
	}

	if err := mod.CaptureBaseline(ctx, s.live, bet.BetID, enriched); err != nil {
		s.compensate(ctx, bet.BetID)
		return domain.BetProposal{}, fmt.Errorf("proposal: capture baseline: %w", err)
	}

	// Step 10: feed item so the table chat surfaces the new proposal.
	feedPayload, _ := json.Marshal(map[string]string{
		"betId":       bet.BetID,
		"description": description,
		"modeKey":     r.modeKey,
	})
	feedItem := domain.FeedItem{
		FeedItemID: uuid.NewString(),
		TableID:    req.TableID,
		Kind:       "bet_proposed",
		Payload:    feedPayload,
		CreatedAt:  now,
	}
	if err := s.feedItems.Insert(ctx, feedItem); err != nil {
		// The bet itself has already committed successfully; a failed
		// chat-feed write is logged by the caller, not fatal to the bet.
		return bet, fmt.Errorf("proposal: feed item write failed (bet committed): %w", err)
	}

	if req.ConfigSessionID != "" {
		_ = s.sessions.Destroy(ctx, req.ConfigSessionID)
	}

	return bet, nil
}

// compensate deletes a just-inserted row when an enrichment step fails,
// §4.E step 9 "storage fails -> compensating-delete the BetProposal row".
func (s *Service) compensate(ctx context.Context, betID string) {
	_ = s.bets.Delete(ctx, betID)
}

// Poke re-proposes a settled bet under a fresh id, §4.E "Poke".
func (s *Service) Poke(ctx context.Context, sourceBetID, proposerUserID string) (domain.BetProposal, error) {
	source, err := s.bets.Get(ctx, sourceBetID)
	if err != nil {
		if err == database.ErrNoRows {
			return domain.BetProposal{}, apperror.NotFound("bet")
		}
		return domain.BetProposal{}, err
	}
	if source.BetStatus != domain.BetStatusResolved && source.BetStatus != domain.BetStatusWashed {
		return domain.BetProposal{}, apperror.BadInput("only a resolved or washed bet can be poked")
	}

	event, err := s.history.LatestByType(ctx, sourceBetID, domain.EventTypeModeConfig)
	if err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: poke: load mode config: %w", err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(event.Payload, &cfg); err != nil {
		return domain.BetProposal{}, fmt.Errorf("proposal: poke: decode mode config: %w", err)
	}

	wagerFloat, _ := source.WagerAmount.Float64()
	req := Request{
		TableID:          source.TableID,
		ProposerUserID:   proposerUserID,
		ModeKey:          source.ModeKey,
		League:           source.League,
		ModeConfig:       cfg,
		Description:      source.Description,
		WagerAmount:      wagerFloat,
		TimeLimitSeconds: source.TimeLimitSecs,
		OriginBetID:      &sourceBetID,
	}
	if source.LeagueGameID != nil {
		req.LeagueGameID = *source.LeagueGameID
	}

	return s.Create(ctx, req)
}
