package ratelimit

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
)

// Middleware runs Check for kind against subjectFn(c) and sets the
// X-RateLimit-* headers on every response, Retry-After on denial, per
// SPEC_FULL.md §4.D / §6.1.
func Middleware(l *Limiter, kind Kind, subjectFn func(c *fiber.Ctx) string) fiber.Handler {
	rule := DefaultRules[kind]
	return func(c *fiber.Ctx) error {
		subject := subjectFn(c)
		result, err := l.Check(c.Context(), kind, subject)
		if err != nil {
			return apperror.Internal("rate limiter unavailable").Wrap(err)
		}

		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retrySeconds := int(result.RetryAfter.Seconds())
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			c.Set("Retry-After", strconv.Itoa(retrySeconds))
			return apperror.RateLimited(fmt.Sprintf("rate limit of %d requests per window exceeded", rule.Max))
		}

		return c.Next()
	}
}
