package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/veloramarket/push-engine/internal/observability"
	"go.uber.org/zap"
)

// ErrorHandler is the fiber-level catch-all for errors no handler mapped
// itself. Log lines carry the request's correlation id when the middleware
// has stamped one.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		observability.WithContextLogger(logger, c.UserContext()).Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
