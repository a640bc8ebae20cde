package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
)

const defaultPageSize = 20
const maxPageSize = 100

func pageSize(c *fiber.Ctx) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

// ticketsHandler lists the calling user's tickets, keyset-paginated on
// (participation_time, participation_id), §6.1.
func (s *FiberServer) ticketsHandler(c *fiber.Ctx) error {
	uid, err := authUserID(c)
	if err != nil {
		return err
	}

	limit := pageSize(c)
	cursor := parseTicketCursor(c.Query("beforeParticipatedAt"), c.Query("beforeParticipationId"))

	tickets, err := s.deps.Participations.ListTicketsByUser(c.Context(), uid, limit, cursor)
	if err != nil {
		return apperror.Internal("failed to list tickets").Wrap(err)
	}

	out := make([]ticketDTO, len(tickets))
	for i, t := range tickets {
		out[i] = toTicketDTO(t)
	}
	return c.JSON(fiber.Map{"tickets": out})
}

// tablesHandler lists the calling user's tables, most recently active
// first, keyset-paginated on (last_activity, table_id), §6.1.
func (s *FiberServer) tablesHandler(c *fiber.Ctx) error {
	uid, err := authUserID(c)
	if err != nil {
		return err
	}

	limit := pageSize(c)
	cursor := parseTableCursor(c.Query("beforeActivityAt"), c.Query("beforeTableId"))

	tables, err := s.deps.Tables.ListForUser(c.Context(), uid, limit, cursor)
	if err != nil {
		return apperror.Internal("failed to list tables").Wrap(err)
	}

	out := make([]tableDTO, len(tables))
	for i, t := range tables {
		out[i] = toTableDTO(t)
	}
	return c.JSON(fiber.Map{"tables": out})
}
