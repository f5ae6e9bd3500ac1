package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/veloramarket/push-engine/internal/campaign"
	"github.com/veloramarket/push-engine/internal/domain"
	"github.com/veloramarket/push-engine/internal/engine"
	"github.com/veloramarket/push-engine/internal/registry"
)

// NotificationEngine is the engine surface the HTTP layer depends on.
type NotificationEngine interface {
	DispatchToUser(ctx context.Context, userID string, eventType domain.EventType, subtype string, fields map[string]string) engine.DispatchResult
	DispatchBroadcast(ctx context.Context, title, body string, eventType domain.EventType, data map[string]string) engine.BroadcastResult
	DispatchPromotionalToUser(ctx context.Context, userID, preferredCategory string) engine.DispatchResult
	SendTestToUser(ctx context.Context, userID string) engine.DispatchResult
	SchedulerStart() (campaign.Status, bool)
	SchedulerStop() (campaign.Status, bool)
	SchedulerStatus() campaign.Status
	RunCampaignNow(ctx context.Context, name string) engine.DispatchResult
}

type NotificationHandler struct {
	engine NotificationEngine
	tokens registry.TokenStore
}

func NewNotificationHandler(engine NotificationEngine, tokens registry.TokenStore) (*NotificationHandler, error) {
	if engine == nil {
		return nil, fmt.Errorf("notification engine is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	return &NotificationHandler{engine: engine, tokens: tokens}, nil
}

func RegisterNotificationRoutes(router fiber.Router, engine NotificationEngine, tokens registry.TokenStore) error {
	h, err := NewNotificationHandler(engine, tokens)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications/dispatch", h.Dispatch)
	v1.Post("/notifications/broadcast", h.Broadcast)
	v1.Post("/notifications/promotional/:userId", h.Promotional)
	v1.Post("/notifications/test/:userId", h.SendTest)
	v1.Post("/scheduler/start", h.SchedulerStart)
	v1.Post("/scheduler/stop", h.SchedulerStop)
	v1.Get("/scheduler/status", h.SchedulerStatus)
	v1.Post("/scheduler/campaigns/:name/run", h.RunCampaign)
	v1.Put("/tokens/:userId", h.SetToken)
	v1.Delete("/tokens/:userId", h.ClearToken)
	v1.Delete("/tokens", h.ClearAllTokens)

	return nil
}

type dispatchRequest struct {
	UserID    string            `json:"userId"`
	EventType string            `json:"eventType"`
	Subtype   string            `json:"subtype"`
	Context   map[string]string `json:"context,omitempty"`
}

type broadcastRequest struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Type  string            `json:"type,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type setTokenRequest struct {
	Token string `json:"token"`
}

type schedulerControlResponse struct {
	Running   bool                      `json:"running"`
	Campaigns []campaign.CampaignStatus `json:"campaigns"`
	Warning   string                    `json:"warning,omitempty"`
}

func (h *NotificationHandler) Dispatch(c *fiber.Ctx) error {
	var req dispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType, err := domain.ParseEventTypeFromString(req.EventType)
	if err != nil {
		return toHTTPError(err)
	}

	result := h.engine.DispatchToUser(c.UserContext(), req.UserID, eventType, req.Subtype, req.Context)
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) Broadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType := domain.EventPromotional
	if strings.TrimSpace(req.Type) != "" {
		parsed, err := domain.ParseEventTypeFromString(req.Type)
		if err != nil {
			return toHTTPError(err)
		}
		eventType = parsed
	}

	result := h.engine.DispatchBroadcast(c.UserContext(), req.Title, req.Body, eventType, req.Data)
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) Promotional(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	preferredCategory := strings.TrimSpace(c.Query("category"))

	result := h.engine.DispatchPromotionalToUser(c.UserContext(), userID, preferredCategory)
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) SendTest(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	result := h.engine.SendTestToUser(c.UserContext(), userID)
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) SchedulerStart(c *fiber.Ctx) error {
	status, alreadyRunning := h.engine.SchedulerStart()
	resp := schedulerControlResponse{
		Running:   status.Running,
		Campaigns: status.Campaigns,
	}
	if alreadyRunning {
		resp.Warning = "scheduler is already running"
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *NotificationHandler) SchedulerStop(c *fiber.Ctx) error {
	status, alreadyStopped := h.engine.SchedulerStop()
	resp := schedulerControlResponse{
		Running:   status.Running,
		Campaigns: status.Campaigns,
	}
	if alreadyStopped {
		resp.Warning = "scheduler is already stopped"
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *NotificationHandler) SchedulerStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.engine.SchedulerStatus())
}

func (h *NotificationHandler) RunCampaign(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	result := h.engine.RunCampaignNow(c.UserContext(), name)
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) SetToken(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))

	var req setTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.tokens.Set(c.UserContext(), userID, req.Token); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"userId": userID})
}

func (h *NotificationHandler) ClearToken(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	if err := h.tokens.Clear(c.UserContext(), userID); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"userId": userID})
}

func (h *NotificationHandler) ClearAllTokens(c *fiber.Ctx) error {
	if err := h.tokens.ClearAll(c.UserContext()); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
