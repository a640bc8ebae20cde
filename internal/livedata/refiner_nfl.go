package livedata

import (
	"encoding/json"
	"strconv"
)

// rawNFLPayload is the provider's raw scoreboard-detail shape for NFL.
// Field names follow a common sports-data-API convention (competitions ->
// competitors -> team/score/statistics); the provider integration itself is
// out of scope (§ Non-goals "no live provider integration is shipped"),
// this refiner exists to exercise the normalisation contract end to end.
type rawNFLPayload struct {
	Status struct {
		Type struct {
			State string `json:"state"` // "pre" | "in" | "post"
			Name  string `json:"name"`  // "STATUS_SCHEDULED" etc.
		} `json:"type"`
		Period int `json:"period"`
	} `json:"status"`
	Competitors []struct {
		TeamID     string `json:"teamId"`
		Abbr       string `json:"abbreviation"`
		Score      int    `json:"score"`
		HomeAway   string `json:"homeAway"` // "home" | "away"
		Possession bool   `json:"possession"`
		Players    []struct {
			PlayerID string             `json:"playerId"`
			Name     string             `json:"name"`
			Stats    map[string]float64 `json:"stats"`
		} `json:"players"`
	} `json:"competitors"`
	LastPlay struct {
		Type            string `json:"type"` // provider's play-type vocabulary, e.g. "touchdown"
		PossessionBefore string `json:"possessionTeamId"`
	} `json:"lastPlay"`
}

// driveOutcomeByPlayType maps the provider's raw play-type vocabulary to
// this package's drive-outcome vocabulary, §4.H example 2. Unrecognised
// play types (incomplete pass, first down, etc.) are not drive-ending and
// are left unmapped.
var driveOutcomeByPlayType = map[string]string{
	"touchdown": "Touchdown",
	"field-goal": "Field Goal",
	"field_goal": "Field Goal",
	"safety":     "Safety",
	"punt":       "Punt",
	"turnover":   "Turnover",
	"interception": "Turnover",
	"fumble-lost":  "Turnover",
	"fumble_lost":  "Turnover",
	"turnover-on-downs": "Turnover",
	"turnover_on_downs": "Turnover",
}

// NFLRefiner normalises raw NFL provider payloads into RefinedGameDoc.
type NFLRefiner struct{}

func (NFLRefiner) League() string { return "NFL" }

func (NFLRefiner) Refine(raw []byte) (RefinedGameDoc, error) {
	var payload rawNFLPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return RefinedGameDoc{}, err
	}

	status := StatusScheduled
	switch payload.Status.Type.State {
	case "in":
		status = StatusInProgress
	case "post":
		status = StatusFinal
	}

	teams := make([]Team, 0, len(payload.Competitors))
	for _, c := range payload.Competitors {
		players := make([]Player, 0, len(c.Players))
		for _, p := range c.Players {
			players = append(players, Player{ID: p.PlayerID, Name: p.Name, Stats: p.Stats})
		}
		teams = append(teams, Team{
			ID:         c.TeamID,
			Abbr:       c.Abbr,
			Score:      c.Score,
			Home:       c.HomeAway == "home",
			Possession: c.Possession,
			Players:    players,
		})
	}

	doc := RefinedGameDoc{
		Status: status,
		Teams:  teams,
	}
	if payload.Status.Period > 0 {
		doc.Period = strconv.Itoa(payload.Status.Period)
	}
	if outcome, ok := driveOutcomeByPlayType[payload.LastPlay.Type]; ok {
		doc.Extensions = map[string]any{
			"lastDriveOutcome":           outcome,
			"lastDrivePossessionTeamId": payload.LastPlay.PossessionBefore,
		}
	}
	return doc, nil
}
