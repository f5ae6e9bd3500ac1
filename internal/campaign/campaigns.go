package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/veloramarket/push-engine/internal/composer"
	"github.com/veloramarket/push-engine/internal/domain"
	"github.com/veloramarket/push-engine/internal/gateway"
	"github.com/veloramarket/push-engine/internal/ledger"
	"github.com/veloramarket/push-engine/internal/promo"
	"github.com/veloramarket/push-engine/internal/registry"
	"github.com/veloramarket/push-engine/internal/storefront"
	"go.uber.org/zap"
)

const (
	CampaignDailyDeal       = "daily-deal"
	CampaignCartReminder    = "cart-reminder"
	CampaignFeedbackRequest = "feedback-request"
)

const (
	// Carts idle less than a day are still active; older than three days are
	// considered abandoned for good.
	cartIdleMin = 24 * time.Hour
	cartIdleMax = 72 * time.Hour

	feedbackAfter     = 7 * 24 * time.Hour
	feedbackScanLimit = 200
)

// Deps bundles the collaborators the built-in campaigns run against.
type Deps struct {
	Tokens   registry.TokenStore
	Gateway  *gateway.Gateway
	Catalog  *promo.Catalog
	Composer *composer.Composer
	Ledger   ledger.Recorder
	Store    storefront.Store
	Logger   *zap.Logger

	randIntn func(n int) int
	now      func() time.Time

	// notified tracks the last reminder per user (cart sweep) and the set of
	// orders already nudged (feedback sweep), preventing duplicate reminders
	// on consecutive sweeps of the same window.
	mu             sync.Mutex
	cartNotifiedAt map[string]time.Time
	ordersNotified map[string]struct{}
}

// Config carries the tunable trigger parameters.
type Config struct {
	DailyDealHour      int
	BehavioralInterval time.Duration
}

// BuildCampaigns assembles the fixed configuration list of campaigns.
func BuildCampaigns(deps *Deps, cfg Config) ([]Campaign, error) {
	if deps == nil {
		return nil, fmt.Errorf("campaign deps are required")
	}
	if deps.Tokens == nil || deps.Gateway == nil || deps.Catalog == nil ||
		deps.Composer == nil || deps.Ledger == nil || deps.Store == nil {
		return nil, fmt.Errorf("campaign deps are incomplete")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.randIntn == nil {
		deps.randIntn = rand.Intn
	}
	if deps.now == nil {
		deps.now = time.Now
	}
	deps.cartNotifiedAt = make(map[string]time.Time)
	deps.ordersNotified = make(map[string]struct{})

	if cfg.BehavioralInterval <= 0 {
		cfg.BehavioralInterval = time.Hour
	}

	return []Campaign{
		{
			Name: CampaignDailyDeal,
			Kind: KindTime,
			Hour: cfg.DailyDealHour,
			Run:  deps.runDailyDeal,
		},
		{
			Name:     CampaignCartReminder,
			Kind:     KindBehavioral,
			Interval: cfg.BehavioralInterval,
			Run:      deps.runCartReminder,
		},
		{
			Name:     CampaignFeedbackRequest,
			Kind:     KindBehavioral,
			Interval: cfg.BehavioralInterval,
			Run:      deps.runFeedbackRequest,
		},
	}, nil
}

// runDailyDeal broadcasts one promotional message to every user with a live
// token. Content prefers the current top discounted product and falls back
// to a random catalog template.
func (d *Deps) runDailyDeal(ctx context.Context) error {
	msg := d.dailyDealMessage(ctx)

	recipients, err := d.Tokens.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list broadcast recipients: %w", err)
	}
	if len(recipients) == 0 {
		d.Logger.Info("daily deal skipped, no users with a registered token")
		return nil
	}

	result := d.Gateway.SendMulticast(ctx, recipients, msg)
	d.Logger.Info("daily deal broadcast complete",
		zap.Int("success", result.SuccessCount),
		zap.Int("failure", result.FailureCount),
	)

	for _, recipient := range recipients {
		d.record(ctx, recipient.UserID, msg, domain.EventPromotional)
	}
	return nil
}

func (d *Deps) dailyDealMessage(ctx context.Context) domain.Message {
	products, err := d.Store.FindTopDiscountedProducts(ctx, 1)
	if err != nil {
		d.Logger.Warn("failed to load discounted products, using catalog template", zap.Error(err))
	}
	if err == nil && len(products) > 0 {
		top := products[0]
		return d.Composer.Compose(domain.EventPromotional, "discount", map[string]string{
			"product":  top.Name,
			"discount": strconv.Itoa(top.DiscountPct),
			"category": top.Category,
		})
	}

	templates := d.Catalog.Templates()
	tpl := templates[d.randIntn(len(templates))]
	return domain.Message{
		Title:    tpl.Title,
		Body:     tpl.Body,
		Category: tpl.Category,
		Data: map[string]string{
			"event_type": "promotional",
			"subtype":    tpl.Subtype,
		},
	}
}

// runCartReminder nudges owners of carts idle between 24 and 72 hours. A
// user is reminded at most once per cart revision: the reminder is skipped
// until the cart changes again.
func (d *Deps) runCartReminder(ctx context.Context) error {
	now := d.now()
	carts, err := d.Store.FindCartsIdleBetween(ctx, now.Add(-cartIdleMax), now.Add(-cartIdleMin))
	if err != nil {
		return fmt.Errorf("failed to scan idle carts: %w", err)
	}

	notified := 0
	for _, cart := range carts {
		if !d.shouldRemindCart(cart) {
			continue
		}

		msg := d.Composer.Compose(domain.EventEngagement, "cart_reminder", map[string]string{
			"item_count": strconv.Itoa(cart.ItemCount),
		})

		outcome := d.Gateway.SendToUser(ctx, cart.UserID, msg)
		if errors.Is(outcome.Err, domain.ErrNoToken) {
			continue
		}

		d.markCartReminded(cart.UserID, now)
		d.record(ctx, cart.UserID, msg, domain.EventEngagement)
		if outcome.Success {
			notified++
		}
	}

	if len(carts) > 0 {
		d.Logger.Info("cart reminder sweep complete",
			zap.Int("idleCarts", len(carts)),
			zap.Int("notified", notified),
		)
	}
	return nil
}

// runFeedbackRequest asks for feedback on delivered orders older than a
// week, at most once per order.
func (d *Deps) runFeedbackRequest(ctx context.Context) error {
	olderThan := d.now().Add(-feedbackAfter)
	orders, err := d.Store.FindDeliveredOrdersWithoutFeedback(ctx, olderThan, feedbackScanLimit)
	if err != nil {
		return fmt.Errorf("failed to scan orders pending feedback: %w", err)
	}

	notified := 0
	for _, order := range orders {
		if !d.claimFeedbackOrder(order.OrderID) {
			continue
		}

		msg := d.Composer.Compose(domain.EventEngagement, "feedback_request", map[string]string{
			"order_id": order.OrderID,
		})

		outcome := d.Gateway.SendToUser(ctx, order.UserID, msg)
		if errors.Is(outcome.Err, domain.ErrNoToken) {
			continue
		}

		d.record(ctx, order.UserID, msg, domain.EventEngagement)
		if outcome.Success {
			notified++
		}
	}

	if len(orders) > 0 {
		d.Logger.Info("feedback request sweep complete",
			zap.Int("pendingOrders", len(orders)),
			zap.Int("notified", notified),
		)
	}
	return nil
}

func (d *Deps) shouldRemindCart(cart storefront.IdleCart) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	lastNotified, ok := d.cartNotifiedAt[cart.UserID]
	if !ok {
		return true
	}
	// Re-remind only after the cart changed since the last reminder.
	return lastNotified.Before(cart.UpdatedAt)
}

func (d *Deps) markCartReminded(userID string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cartNotifiedAt[userID] = now
}

func (d *Deps) claimFeedbackOrder(orderID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, done := d.ordersNotified[orderID]; done {
		return false
	}
	d.ordersNotified[orderID] = struct{}{}
	return true
}

// record appends a ledger row. Ledger failures never abort the delivery
// path; they are logged and dropped.
func (d *Deps) record(ctx context.Context, userID string, msg domain.Message, eventType domain.EventType) {
	if err := d.Ledger.Record(ctx, userID, msg, eventType); err != nil {
		d.Logger.Error("failed to write notification record",
			zap.String("userId", userID),
			zap.Error(err),
		)
	}
}
