package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/veloramarket/push-engine/internal/campaign"
	"github.com/veloramarket/push-engine/internal/composer"
	"github.com/veloramarket/push-engine/internal/domain"
	"github.com/veloramarket/push-engine/internal/gateway"
	"github.com/veloramarket/push-engine/internal/ledger"
	"github.com/veloramarket/push-engine/internal/promo"
	"go.uber.org/zap"
)

// DispatchResult is the structured outcome handed back to API callers.
// Failures surface here as values, never as panics or raw errors.
type DispatchResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BroadcastResult summarizes a fan-out to all registered users.
type BroadcastResult struct {
	Success      bool   `json:"success"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	Error        string `json:"error,omitempty"`
}

// Engine wires Selector, Composer, Gateway, Ledger and Scheduler into the
// operations the HTTP layer invokes.
type Engine struct {
	gateway   *gateway.Gateway
	selector  *promo.Selector
	composer  *composer.Composer
	recorder  ledger.Recorder
	scheduler *campaign.Scheduler
	logger    *zap.Logger
}

func New(
	gw *gateway.Gateway,
	selector *promo.Selector,
	comp *composer.Composer,
	recorder ledger.Recorder,
	scheduler *campaign.Scheduler,
	logger *zap.Logger,
) (*Engine, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if comp == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("ledger recorder is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		gateway:   gw,
		selector:  selector,
		composer:  comp,
		recorder:  recorder,
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// DispatchToUser composes the message for a domain event and delivers it to
// the user's registered device.
func (e *Engine) DispatchToUser(ctx context.Context, userID string, eventType domain.EventType, subtype string, fields map[string]string) DispatchResult {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return DispatchResult{Error: "user id is required"}
	}
	if !eventType.IsValid() {
		return DispatchResult{Error: fmt.Sprintf("invalid event type %q", eventType)}
	}

	msg := e.composer.Compose(eventType, subtype, fields)
	outcome := e.gateway.SendToUser(ctx, userID, msg)
	if errors.Is(outcome.Err, domain.ErrNoToken) {
		return DispatchResult{Error: "No FCM token"}
	}

	e.record(ctx, userID, msg, eventType)
	if outcome.Err != nil {
		return DispatchResult{Error: outcome.Err.Error()}
	}
	return DispatchResult{Success: true}
}

// DispatchBroadcast sends an operator-supplied message to every user with a
// live token.
func (e *Engine) DispatchBroadcast(ctx context.Context, title, body string, eventType domain.EventType, data map[string]string) BroadcastResult {
	if !eventType.IsValid() {
		eventType = domain.EventPromotional
	}

	msg := domain.Message{Title: title, Body: body, Data: data, Category: eventType.String()}
	if err := msg.Validate(); err != nil {
		return BroadcastResult{Error: err.Error()}
	}

	result, err := e.gateway.SendToAllUsers(ctx, msg)
	if err != nil {
		e.logger.Warn("broadcast failed", zap.Error(err))
		return BroadcastResult{Error: err.Error()}
	}

	return BroadcastResult{
		Success:      true,
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
	}
}

// DispatchPromotionalToUser picks a non-repeating promotion for the user and
// delivers it.
func (e *Engine) DispatchPromotionalToUser(ctx context.Context, userID, preferredCategory string) DispatchResult {
	tpl, err := e.selector.Pick(userID, preferredCategory)
	if err != nil {
		return DispatchResult{Error: err.Error()}
	}

	msg := domain.Message{
		Title:    tpl.Title,
		Body:     tpl.Body,
		Category: tpl.Category,
		Data: map[string]string{
			"event_type": "promotional",
			"subtype":    tpl.Subtype,
		},
	}

	outcome := e.gateway.SendToUser(ctx, userID, msg)
	if errors.Is(outcome.Err, domain.ErrNoToken) {
		return DispatchResult{Error: "No FCM token"}
	}

	e.record(ctx, userID, msg, domain.EventPromotional)
	if outcome.Err != nil {
		return DispatchResult{Error: outcome.Err.Error()}
	}
	return DispatchResult{Success: true}
}

// SendTestToUser delivers a fixed diagnostic message, used by operators to
// verify a device registration end to end.
func (e *Engine) SendTestToUser(ctx context.Context, userID string) DispatchResult {
	msg := domain.Message{
		Title:    "Test Notification",
		Body:     "Push notifications are working for your device.",
		Category: domain.EventAccount.String(),
		Data:     map[string]string{"event_type": "account", "subtype": "test"},
	}

	outcome := e.gateway.SendToUser(ctx, userID, msg)
	if errors.Is(outcome.Err, domain.ErrNoToken) {
		return DispatchResult{Error: "No FCM token"}
	}

	e.record(ctx, userID, msg, domain.EventAccount)
	if outcome.Err != nil {
		return DispatchResult{Error: outcome.Err.Error()}
	}
	return DispatchResult{Success: true}
}

// SchedulerStart starts all configured campaigns. Starting twice is a
// warning, not a failure.
func (e *Engine) SchedulerStart() (campaign.Status, bool) {
	err := e.scheduler.Start()
	alreadyRunning := errors.Is(err, domain.ErrSchedulerState)
	return e.scheduler.Status(), alreadyRunning
}

// SchedulerStop stops all campaigns; stopping twice is a warning.
func (e *Engine) SchedulerStop() (campaign.Status, bool) {
	err := e.scheduler.Stop()
	alreadyStopped := errors.Is(err, domain.ErrSchedulerState)
	return e.scheduler.Status(), alreadyStopped
}

func (e *Engine) SchedulerStatus() campaign.Status {
	return e.scheduler.Status()
}

// RunCampaignNow fires one named campaign immediately.
func (e *Engine) RunCampaignNow(ctx context.Context, name string) DispatchResult {
	if err := e.scheduler.RunNow(ctx, name); err != nil {
		return DispatchResult{Error: err.Error()}
	}
	return DispatchResult{Success: true}
}

func (e *Engine) record(ctx context.Context, userID string, msg domain.Message, eventType domain.EventType) {
	if err := e.recorder.Record(ctx, userID, msg, eventType); err != nil {
		e.logger.Error("failed to write notification record",
			zap.String("userId", userID),
			zap.Error(err),
		)
	}
}
