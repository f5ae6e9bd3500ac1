package transport

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/veloramarket/push-engine/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandlerLogsWithCorrelationID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/boom", func(c *fiber.Ctx) error {
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), "corr-1"))
		return fiber.NewError(fiber.StatusBadGateway, "upstream broke")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusBadGateway)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["correlationId"] != "corr-1" {
		t.Fatalf("correlationId = %v, want corr-1", fields["correlationId"])
	}
	if fields["status"] != int64(fiber.StatusBadGateway) {
		t.Fatalf("status field = %v, want %d", fields["status"], fiber.StatusBadGateway)
	}
}
