package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader is the HTTP header for the request correlation ID.
	CorrelationIDHeader = "X-Correlation-ID"

	// correlationIDKey is the fiber.Ctx locals key holding the correlation ID.
	correlationIDKey = "correlation_id"
)

// correlationID ensures every request carries a unique identifier so a
// payout can be traced from the approval call through the ledger logs.
// Callers may supply their own ID; otherwise one is generated.
func correlationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(CorrelationIDHeader, id)
		c.Locals(correlationIDKey, id)

		return c.Next()
	}
}

// getCorrelationID retrieves the correlation ID set by the middleware.
func getCorrelationID(c *fiber.Ctx) string {
	if id, ok := c.Locals(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
