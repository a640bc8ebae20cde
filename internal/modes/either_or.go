package modes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
)

// EitherOrBaseline is the snapshot captured at proposal-commit time, §3
// "EitherOrBaseline{player1Stat0, player2Stat0, resolveAtPeriod}".
type EitherOrBaseline struct {
	Player1Stat0   float64 `json:"player1Stat0"`
	Player2Stat0   float64 `json:"player2Stat0"`
	ResolveAtPeriod int    `json:"resolveAtPeriod"`
}

// EitherOrMode implements "either-or on a player stat", §4.H example 1.
type EitherOrMode struct {
	baselines *BaselineStore
}

func NewEitherOrMode(baselines *BaselineStore) *EitherOrMode {
	return &EitherOrMode{baselines: baselines}
}

func (m *EitherOrMode) Key() string               { return "either_or" }
func (m *EitherOrMode) SupportedLeagues() []string { return []string{"*"} }
func (m *EitherOrMode) Label() string              { return "Either/Or" }
func (m *EitherOrMode) Overview() string {
	return "Pick which of two players accumulates more of a stat by a given period."
}

func (m *EitherOrMode) RequiresInProgress() bool { return false }

func (m *EitherOrMode) ComputeOptions(ctx context.Context, input ConfigInput) ([]string, error) {
	step := input.Steps["player1"]
	p1 := step.SelectedChoiceID
	p2 := input.Steps["player2"].SelectedChoiceID
	if p1 == "" || p2 == "" {
		return []string{domain.NoEntryGuess}, nil
	}
	return []string{p1, p2, domain.NoEntryGuess}, nil
}

func (m *EitherOrMode) ComputeWinningCondition(ctx context.Context, input ConfigInput) (string, error) {
	p1 := input.Steps["player1"].SelectedChoiceID
	p2 := input.Steps["player2"].SelectedChoiceID
	stat := input.Steps["stat"].SelectedChoiceID
	return fmt.Sprintf("Whichever of %s or %s has the higher %s gain wins.", p1, p2, stat), nil
}

func (m *EitherOrMode) BuildUserConfig(ctx context.Context, input ConfigInput) ([]WizardStep, error) {
	return []WizardStep{
		{Key: "player1", Label: "First player"},
		{Key: "player2", Label: "Second player"},
		{Key: "stat", Label: "Stat to compare"},
		{Key: "resolve_at", Label: "Resolve at period"},
	}, nil
}

func (m *EitherOrMode) ValidateProposal(ctx context.Context, input ConfigInput) (ValidationResult, error) {
	for _, key := range []string{"player1", "player2", "stat", "resolve_at"} {
		if input.Steps[key].SelectedChoiceID == "" {
			return ValidationResult{Valid: false, Error: fmt.Sprintf("step %q is required", key)}, nil
		}
	}
	if input.Steps["player1"].SelectedChoiceID == input.Steps["player2"].SelectedChoiceID {
		return ValidationResult{Valid: false, Error: "player1 and player2 must be different"}, nil
	}
	return ValidationResult{Valid: true}, nil
}

// PrepareConfig copies the player1/player2 steps to the player1_id/
// player2_id keys CaptureBaseline and Validate read, and turns a
// resolve_at label such as "Q2 ends" into its period number.
func (m *EitherOrMode) PrepareConfig(ctx context.Context, input PrepareInput) (map[string]any, error) {
	cfg := make(map[string]any, len(input.Config)+2)
	for k, v := range input.Config {
		cfg[k] = v
	}
	cfg["player1_id"] = cfg["player1"]
	cfg["player2_id"] = cfg["player2"]
	if s, ok := cfg["resolve_at"].(string); ok {
		digits := strings.TrimFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
		if n, err := strconv.Atoi(digits); err == nil {
			cfg["resolve_at"] = float64(n)
		}
	}
	return cfg, nil
}

// CaptureBaseline reads live stats at commit time and persists the
// EitherOrBaseline, called from internal/proposal's commit step (§4.E
// "Baseline-store failures during commit: fatal to that proposal").
func (m *EitherOrMode) CaptureBaseline(ctx context.Context, live livedata.ReadAPI, betID string, cfg map[string]any) error {
	league, _ := cfg["league"].(string)
	gameID, _ := cfg["leagueGameId"].(string)
	p1, _ := cfg["player1_id"].(string)
	p2, _ := cfg["player2_id"].(string)
	stat, _ := cfg["stat"].(string)
	resolveAt, _ := cfg["resolve_at"].(float64)

	v1, err := live.GetPlayerStat(ctx, league, gameID, p1, stat)
	if err != nil {
		return fmt.Errorf("modes: either_or baseline stat for player1: %w", err)
	}
	v2, err := live.GetPlayerStat(ctx, league, gameID, p2, stat)
	if err != nil {
		return fmt.Errorf("modes: either_or baseline stat for player2: %w", err)
	}

	baseline := EitherOrBaseline{Player1Stat0: v1, Player2Stat0: v2, ResolveAtPeriod: int(resolveAt)}
	return m.baselines.Put(ctx, betID, baseline)
}

func (m *EitherOrMode) GetLiveInfo(ctx context.Context, bet domain.BetProposal, config map[string]any) (LiveInfo, error) {
	var baseline EitherOrBaseline
	if err := m.baselines.Get(ctx, bet.BetID, &baseline); err != nil {
		return LiveInfo{}, err
	}
	return LiveInfo{Fields: []LiveInfoField{
		{Label: "Player 1 baseline", Value: strconv.FormatFloat(baseline.Player1Stat0, 'f', 1, 64)},
		{Label: "Player 2 baseline", Value: strconv.FormatFloat(baseline.Player2Stat0, 'f', 1, 64)},
	}}, nil
}

func (m *EitherOrMode) Validate(ctx context.Context, bet domain.BetProposal, config map[string]any, live livedata.ReadAPI) (Decision, error) {
	if bet.LeagueGameID == nil {
		return Decision{Wash: true, Explanation: "no league_game_id on bet"}, nil
	}

	var baseline EitherOrBaseline
	if err := m.baselines.Get(ctx, bet.BetID, &baseline); err != nil {
		return Decision{Wash: true, Explanation: "baseline unavailable"}, nil
	}

	p1, _ := config["player1_id"].(string)
	p2, _ := config["player2_id"].(string)
	stat, _ := config["stat"].(string)

	status, err := live.GetGameStatus(ctx, bet.League, *bet.LeagueGameID)
	if err != nil {
		return Decision{StillRunning: true}, nil
	}

	doc, err := live.GetGameDoc(ctx, bet.League, *bet.LeagueGameID)
	if err != nil {
		return Decision{StillRunning: true}, nil
	}

	period, _ := strconv.Atoi(doc.Period)
	if status == "STATUS_FINAL" && period < baseline.ResolveAtPeriod {
		return Decision{Wash: true, Explanation: "resolve condition never reached"}, nil
	}
	if period < baseline.ResolveAtPeriod {
		return Decision{StillRunning: true}, nil
	}

	v1, err1 := live.GetPlayerStat(ctx, bet.League, *bet.LeagueGameID, p1, stat)
	v2, err2 := live.GetPlayerStat(ctx, bet.League, *bet.LeagueGameID, p2, stat)
	if err1 != nil || err2 != nil {
		return Decision{StillRunning: true}, nil
	}

	delta1 := v1 - baseline.Player1Stat0
	delta2 := v2 - baseline.Player2Stat0

	switch {
	case delta1 > delta2:
		return Decision{WinningChoice: p1}, nil
	case delta2 > delta1:
		return Decision{WinningChoice: p2}, nil
	default:
		return Decision{Wash: true, Explanation: "tie at resolve period"}, nil
	}
}
