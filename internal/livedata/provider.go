package livedata

import "context"

// ScoreboardEvent is one event returned by a provider's scoreboard listing,
// filtered to games in the "pre" or "in" game-state per §4.A step 1.
type ScoreboardEvent struct {
	GameID    string
	League    string
	GameState string // "pre" | "in" | "post"
}

// Provider is the stable boundary to an external sports-data vendor, modeled
// on XavierBriggs-Mercury's pkg/contracts VendorAdapter — a narrow adapter
// interface so the ingest loop never depends on a concrete vendor SDK.
type Provider interface {
	// FetchScoreboard lists in-progress/upcoming events for a league.
	FetchScoreboard(ctx context.Context, league string) ([]ScoreboardEvent, error)
	// FetchRaw retrieves the raw per-game JSON payload for one event.
	FetchRaw(ctx context.Context, league, gameID string) ([]byte, error)
}

// Refiner normalises a league's raw provider payload into a RefinedGameDoc,
// §4.A step 3 "league-specific refiner".
type Refiner interface {
	League() string
	Refine(raw []byte) (RefinedGameDoc, error)
}

// NoopProvider reports no scoreboard events for every league. No live
// sports-data vendor integration ships with this core (out of scope per
// §1 Non-goals' narrow real-money/settlement surface — vendor wiring is
// an integration concern, not a core one); it satisfies Provider so the
// ingest loop, breaker, and refiners are exercised end to end against
// whatever vendor adapter a deployment supplies in its place.
type NoopProvider struct{}

func (NoopProvider) FetchScoreboard(ctx context.Context, league string) ([]ScoreboardEvent, error) {
	return nil, nil
}

func (NoopProvider) FetchRaw(ctx context.Context, league, gameID string) ([]byte, error) {
	return nil, nil
}
