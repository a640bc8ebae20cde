package server

import (
	"time"

	"github.com/jackhudsonnnn/p2picks/internal/database"
	"github.com/jackhudsonnnn/p2picks/internal/domain"
)

// Response DTOs with snake_case JSON tags: domain.BetProposal et al. carry
// no JSON tags of their own (they are the relational store's shape, not
// the wire shape), so §6.1's payload examples are built from these
// instead of marshaling domain types directly.

type betDTO struct {
	BetID            string   `json:"bet_id"`
	TableID          string   `json:"table_id"`
	ProposerUserID   string   `json:"proposer_user_id"`
	League           string   `json:"league"`
	LeagueGameID     *string  `json:"league_game_id,omitempty"`
	ModeKey          string   `json:"mode_key"`
	Description      string   `json:"description"`
	WagerAmount      string   `json:"wager_amount"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
	ProposalTime     time.Time `json:"proposal_time"`
	CloseTime        time.Time `json:"close_time"`
	BetStatus        string   `json:"bet_status"`
	WinningChoice    *string  `json:"winning_choice,omitempty"`
	ResolutionTime   *time.Time `json:"resolution_time,omitempty"`
	OriginBetID      *string  `json:"origin_bet_id,omitempty"`
}

func toBetDTO(b domain.BetProposal) betDTO {
	return betDTO{
		BetID:            b.BetID,
		TableID:          b.TableID,
		ProposerUserID:   b.ProposerUserID,
		League:           b.League,
		LeagueGameID:     b.LeagueGameID,
		ModeKey:          b.ModeKey,
		Description:      b.Description,
		WagerAmount:      b.WagerAmount.StringFixed(2),
		TimeLimitSeconds: b.TimeLimitSecs,
		ProposalTime:     b.ProposalTime,
		CloseTime:        b.CloseTime,
		BetStatus:        string(b.BetStatus),
		WinningChoice:    b.WinningChoice,
		ResolutionTime:   b.ResolutionTime,
		OriginBetID:      b.OriginBetID,
	}
}

type ticketDTO struct {
	ParticipationID   string    `json:"participation_id"`
	UserID            string    `json:"user_id"`
	UserGuess         string    `json:"user_guess"`
	ParticipationTime time.Time `json:"participation_time"`
	Bet               betDTO    `json:"bet"`
}

func toTicketDTO(t domain.Ticket) ticketDTO {
	return ticketDTO{
		ParticipationID:   t.ParticipationID,
		UserID:            t.UserID,
		UserGuess:         t.UserGuess,
		ParticipationTime: t.ParticipationTime,
		Bet:               toBetDTO(t.Bet),
	}
}

type tableDTO struct {
	TableID      string    `json:"table_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func toTableDTO(t domain.Table) tableDTO {
	return tableDTO{
		TableID:      t.TableID,
		Name:         t.Name,
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
	}
}

// parseTicketCursor reads beforeParticipatedAt/beforeParticipationId query
// params into a *database.TicketCursor, §6.1. Either both are present or
// neither — a partial pair is treated as "no cursor" (first page).
func parseTicketCursor(before string, id string) *database.TicketCursor {
	if before == "" || id == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, before)
	if err != nil {
		return nil
	}
	return &database.TicketCursor{ParticipatedAt: ts, ParticipationID: id}
}

func parseTableCursor(before string, id string) *database.TableCursor {
	if before == "" || id == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, before)
	if err != nil {
		return nil
	}
	return &database.TableCursor{ActivityAt: ts, TableID: id}
}
