package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
)

// authUserID extracts the caller's identity from the Bearer token, §6.1
// "authentication is Bearer-token". Verifying the token is an external
// collaborator's job per the Non-goals ("authentication middleware" is
// out of scope); this core trusts the token value as the already-
// authenticated user id, the same boundary the teacher's routes draw
// around a caller-supplied user id (gameWebSocketHandler's user_id query
// param, getUserBalanceHandler's :userId path param).
func authUserID(c *fiber.Ctx) (string, error) {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", apperror.Unauthorized("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", apperror.Unauthorized("missing bearer token")
	}
	return token, nil
}

// subjectFromAuth is the rate-limiter subject function: the authenticated
// user id when present, falling back to the caller's IP so an
// unauthenticated request still gets rate-limited rather than bypassing
// the limiter entirely.
func subjectFromAuth(c *fiber.Ctx) string {
	uid, err := authUserID(c)
	if err != nil {
		return c.IP()
	}
	return uid
}
