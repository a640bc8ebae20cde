// Package domain holds the plain data types of SPEC_FULL.md §3. They carry
// no behavior, following the flat struct + JSON-tag style of the teacher's
// internal/game/types.go.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the bet lifecycle state, §3 BetProposal.bet_status.
type BetStatus string

const (
	BetStatusActive   BetStatus = "active"
	BetStatusPending  BetStatus = "pending"
	BetStatusResolved BetStatus = "resolved"
	BetStatusWashed   BetStatus = "washed"
)

// Rank gives the monotonic lifecycle order so callers can assert
// non-regression (§8 property 3) without string-comparing.
func (s BetStatus) Rank() int {
	switch s {
	case BetStatusActive:
		return 0
	case BetStatusPending:
		return 1
	case BetStatusResolved, BetStatusWashed:
		return 2
	default:
		return -1
	}
}

// BetProposal is the authoritative bet record, §3.
type BetProposal struct {
	BetID          string
	TableID        string
	ProposerUserID string
	League         string
	LeagueGameID   *string
	ModeKey        string
	Description    string
	WagerAmount    decimal.Decimal
	TimeLimitSecs  int
	ProposalTime   time.Time
	CloseTime      time.Time
	BetStatus      BetStatus
	WinningChoice  *string
	ResolutionTime *time.Time
	OriginBetID    *string
}

// BetParticipation is one (bet, user) acceptance, §3.
type BetParticipation struct {
	ParticipationID   string
	BetID             string
	UserID            string
	UserGuess         string
	ParticipationTime time.Time
}

const NoEntryGuess = "No Entry"

// ResolutionHistoryEvent is an append-only audit record, §3.
type ResolutionHistoryEvent struct {
	EventID   string
	BetID     string
	EventType string
	Payload   []byte // raw JSON
	CreatedAt time.Time
}

const (
	EventTypeModeConfig        = "mode_config"
	EventTypeLiveInfoSnapshot  = "live_info_snapshot"
	EventTypeResolved          = "resolved"
	EventTypeWashed            = "washed"
)

// Ticket is the read-model projection returned by the ticket listing
// endpoint, §3. No independent lifecycle.
type Ticket struct {
	ParticipationID   string
	BetID             string
	UserID            string
	UserGuess         string
	ParticipationTime time.Time
	Bet               BetProposal
}

// Table is the minimal private-room record the out-of-scope table/membership
// system owns; only the fields the bet lifecycle and §6.1 listing endpoints
// need are modeled here.
type Table struct {
	TableID      string
	Name         string
	CreatedAt    time.Time
	LastActivity time.Time
}

// FeedItem is a chat-feed entry surfaced by bet proposal/resolution, §4.E
// step 10 and SPEC_FULL.md's supplemented settlement feed write.
type FeedItem struct {
	FeedItemID string
	TableID    string
	Kind       string
	Payload    []byte
	CreatedAt  time.Time
}
