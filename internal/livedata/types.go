package livedata

import "time"

// GameStatus mirrors the provider's coarse game-state vocabulary, §3.
type GameStatus string

const (
	StatusScheduled GameStatus = "STATUS_SCHEDULED"
	StatusInProgress GameStatus = "STATUS_IN_PROGRESS"
	StatusFinal      GameStatus = "STATUS_FINAL"
)

// PlayerStat is one category/value pair for a player (e.g. "points" -> 24).
type PlayerStat map[string]float64

// Player is one roster entry carried on a Team within a RefinedGameDoc.
type Player struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Stats PlayerStat `json:"stats"`
}

// Team is one side of a RefinedGameDoc, §3.
type Team struct {
	ID         string             `json:"id"`
	Abbr       string             `json:"abbr"`
	Score      int                `json:"score"`
	Home       bool               `json:"home"`
	Possession bool               `json:"possession"`
	Stats      map[string]float64 `json:"stats"`
	Players    []Player           `json:"players"`
}

// RefinedGameDoc is the normalised per-game document written atomically by
// the ingest worker and served by the Read API, §3.
type RefinedGameDoc struct {
	GameID    string     `json:"gameId"`
	League    string     `json:"league"`
	Status    GameStatus `json:"status"`
	Period    string     `json:"period,omitempty"`
	Teams     []Team     `json:"teams"`
	RefinedAt time.Time  `json:"refinedAt"`
	// Extensions carries league-specific fields the refiner chooses not to
	// flatten into Teams/Stats (e.g. possession-team id for football).
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (d RefinedGameDoc) teamByFlag(home bool) (Team, bool) {
	for _, t := range d.Teams {
		if t.Home == home {
			return t, true
		}
	}
	return Team{}, false
}

func (d RefinedGameDoc) HomeTeam() (Team, bool) { return d.teamByFlag(true) }
func (d RefinedGameDoc) AwayTeam() (Team, bool) { return d.teamByFlag(false) }

func (d RefinedGameDoc) PossessionTeamID() (string, bool) {
	for _, t := range d.Teams {
		if t.Possession {
			return t.ID, true
		}
	}
	return "", false
}

func (d RefinedGameDoc) PlayerStat(playerID, category string) (float64, bool) {
	for _, t := range d.Teams {
		for _, p := range t.Players {
			if p.ID == playerID {
				v, ok := p.Stats[category]
				return v, ok
			}
		}
	}
	return 0, false
}
