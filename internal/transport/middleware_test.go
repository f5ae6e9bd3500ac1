package transport

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/veloramarket/push-engine/internal/observability"
)

func TestCorrelationMiddlewareGeneratesID(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(CorrelationMiddleware())

	var seen string
	app.Get("/ping", func(c *fiber.Ctx) error {
		id, ok := observability.CorrelationIDFromContext(c.UserContext())
		if !ok {
			t.Error("correlation id missing from request context")
		}
		seen = id
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	echoed := resp.Header.Get(CorrelationIDHeader)
	if echoed == "" {
		t.Fatal("response should echo a correlation id")
	}
	if echoed != seen {
		t.Fatalf("response id %q != context id %q", echoed, seen)
	}
}

func TestCorrelationMiddlewarePropagatesIncomingID(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(CorrelationMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(CorrelationIDHeader, "cid-from-client")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if got := resp.Header.Get(CorrelationIDHeader); got != "cid-from-client" {
		t.Fatalf("correlation id = %q, want %q", got, "cid-from-client")
	}
}
