package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/veloramarket/push-engine/internal/observability"
)

const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationMiddleware tags each request with a correlation ID, taken from
// the incoming header or freshly generated, and echoes it on the response.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := c.Get(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		c.Set(CorrelationIDHeader, correlationID)
		return c.Next()
	}
}
