// Package modes is the pluggable bet-mode catalogue of SPEC_FULL.md §4.B.
// The Module interface and Registry are modeled directly on the teacher's
// internal/game/engine.go GameEngine/GameFactory pair and on
// XavierBriggs-Mercury's pkg/contracts/sport_module.go SportModule
// interface — a per-domain unit registered once at startup and looked up
// by key, never branched on inside the core.
package modes

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
)

// WizardStep is one step of a mode's config wizard, §3 ConfigSession.steps.
type WizardStep struct {
	Key              string        `json:"key"`
	Label            string        `json:"label"`
	Choices          []Choice      `json:"choices"`
	SelectedChoiceID string        `json:"selectedChoiceId,omitempty"`
	Completed        bool          `json:"completed"`
}

// Choice is one selectable option within a WizardStep. Clears names
// dependent step keys that should reset when this choice is applied,
// per §4.C "cascade clears on dependent steps declared in the choice
// descriptor".
type Choice struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Clears []string `json:"clears,omitempty"`
}

// ConfigInput is the accumulated wizard state passed to the per-mode hooks
// while the config session is live.
type ConfigInput struct {
	League       string
	LeagueGameID string
	Steps        map[string]WizardStep
}

// ValidationResult is what validateProposal / validateModeConfig return.
type ValidationResult struct {
	Valid         bool
	Error         string
	ConfigUpdates map[string]any
}

// PrepareInput bundles what prepareConfig needs to enrich a mode_config
// with a baseline captured from the Live Data Store at commit time.
type PrepareInput struct {
	Bet    domain.BetProposal
	Config map[string]any
}

// LiveInfoField is one rendered field of a mode's live-info projection.
type LiveInfoField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LiveInfo is the getLiveInfo response, §4.B / §4.H "Snapshot at
// settlement".
type LiveInfo struct {
	Fields []LiveInfoField `json:"fields"`
}

// Decision is what a mode validator reports for one active bet, §4.H.
type Decision struct {
	StillRunning  bool
	WinningChoice string // set when resolving
	Wash          bool
	Explanation   string // set when washing
}

// Module is the extension surface every bet mode implements, §4.B.
type Module interface {
	Key() string
	SupportedLeagues() []string // ["*"] matches every league
	Label() string
	Overview() string

	// RequiresInProgress reports whether a proposal in this mode must be
	// rejected unless the underlying game is STATUS_IN_PROGRESS, §4.E
	// step 5 ("e.g. choose-their-fate requires STATUS_IN_PROGRESS").
	RequiresInProgress() bool

	ComputeOptions(ctx context.Context, input ConfigInput) ([]string, error)
	ComputeWinningCondition(ctx context.Context, input ConfigInput) (string, error)
	BuildUserConfig(ctx context.Context, input ConfigInput) ([]WizardStep, error)
	ValidateProposal(ctx context.Context, input ConfigInput) (ValidationResult, error)
	PrepareConfig(ctx context.Context, input PrepareInput) (map[string]any, error)

	// CaptureBaseline snapshots whatever live state the mode needs to
	// evaluate outcomes later, immediately after the bet row commits,
	// §4.E step 9. Modes with nothing to snapshot (e.g. u2pick) no-op.
	CaptureBaseline(ctx context.Context, live livedata.ReadAPI, betID string, config map[string]any) error

	GetLiveInfo(ctx context.Context, bet domain.BetProposal, config map[string]any) (LiveInfo, error)

	// Validate evaluates one active bet against live data and the mode's
	// baseline, returning still-running/resolve/wash. Modes with no
	// automatic validator (e.g. u2pick) return Decision{StillRunning: true}
	// unconditionally; resolution happens only via the manual endpoint.
	Validate(ctx context.Context, bet domain.BetProposal, config map[string]any, live livedata.ReadAPI) (Decision, error)
}

func supportsLeague(supported []string, league string) bool {
	for _, s := range supported {
		if s == "*" || s == league {
			return true
		}
	}
	return false
}

// Registry indexes modules by (league, modeKey), per §4.B "Lookup".
type Registry struct {
	mu          sync.RWMutex
	modules     map[string]Module
	initialized bool
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module. Idempotent: registering the same key twice
// replaces the prior entry rather than erroring, matching §4.B
// "Idempotent registration at process start".
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Key()] = m
}

// EnsureInitialized gates any public call per §4.B, returning an error if
// Finalize was never called.
func (r *Registry) EnsureInitialized() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return fmt.Errorf("modes: registry not initialized")
	}
	return nil
}

// Finalize marks the registry ready for lookups. Call once at startup
// after all Register calls.
func (r *Registry) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = true
}

// ErrModeNotFound / ErrModeUnavailableForLeague are sentinel lookup
// failures; internal/server maps them to the §7 taxonomy.
var (
	ErrModeNotFound             = fmt.Errorf("mode not found")
	ErrModeUnavailableForLeague = fmt.Errorf("mode unavailable for league")
)

// Lookup resolves (league, modeKey) to a Module per §4.B.
func (r *Registry) Lookup(league, modeKey string) (Module, error) {
	if err := r.EnsureInitialized(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[modeKey]
	if !ok {
		return nil, ErrModeNotFound
	}
	if !supportsLeague(m.SupportedLeagues(), league) {
		return nil, ErrModeUnavailableForLeague
	}
	return m, nil
}

// All returns every registered module, for catalog/bootstrap endpoints.
func (r *Registry) All() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	return out
}
