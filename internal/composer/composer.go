package composer

import (
	"regexp"
	"strings"

	"github.com/veloramarket/push-engine/internal/domain"
	"go.uber.org/zap"
)

// template is a {title, body} pair with {{field}} placeholders.
type template struct {
	title string
	body  string
}

// eventTable maps subtypes of one event type to templates. The fallback arm
// is required: unrecognized subtypes always degrade to it, never to an error.
type eventTable struct {
	entries  map[string]template
	fallback func(subtype string) template
}

// Composer builds the concrete notification content for a domain event.
// Composition is total: every (eventType, subtype) pair yields a non-empty
// message.
type Composer struct {
	tables map[domain.EventType]eventTable
	logger *zap.Logger
}

func NewComposer(logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{tables: buildTables(), logger: logger}
}

// Compose renders the message for an event. Missing context fields render as
// empty strings; unknown subtypes and event types fall back to a generic
// message and log a warning.
func (c *Composer) Compose(event domain.EventType, subtype string, fields map[string]string) domain.Message {
	subtype = strings.TrimSpace(strings.ToLower(subtype))

	table, ok := c.tables[event]
	if !ok {
		c.logger.Warn("unknown event type, using generic message",
			zap.String("eventType", event.String()),
			zap.String("subtype", subtype),
		)
		return domain.Message{
			Title:    "Velora Market",
			Body:     "You have a new notification.",
			Data:     dataFields(event, subtype, fields),
			Category: event.String(),
		}
	}

	tpl, ok := table.entries[subtype]
	if !ok {
		c.logger.Warn("unrecognized event subtype, using fallback message",
			zap.String("eventType", event.String()),
			zap.String("subtype", subtype),
		)
		tpl = table.fallback(subtype)
	}

	return domain.Message{
		Title:    render(tpl.title, fields),
		Body:     render(tpl.body, fields),
		Data:     dataFields(event, subtype, fields),
		Category: event.String(),
	}
}

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// render replaces {{field}} placeholders. Missing fields become empty
// strings so interpolation never fails.
func render(tpl string, fields map[string]string) string {
	rendered := placeholderRegex.ReplaceAllStringFunc(tpl, func(match string) string {
		submatch := placeholderRegex.FindStringSubmatch(match)
		if len(submatch) != 2 {
			return ""
		}
		return fields[submatch[1]]
	})

	return strings.Join(strings.Fields(rendered), " ")
}

func dataFields(event domain.EventType, subtype string, fields map[string]string) map[string]string {
	data := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		data[k] = v
	}
	data["event_type"] = strings.ToLower(event.String())
	if subtype != "" {
		data["subtype"] = subtype
	}
	return data
}

func buildTables() map[domain.EventType]eventTable {
	return map[domain.EventType]eventTable{
		domain.EventAccount: {
			entries: map[string]template{
				"welcome":          {"Welcome to Velora Market", "Hi {{name}}, your account is ready. Happy shopping!"},
				"login":            {"New Login", "Hi {{name}}, a new login to your account was detected."},
				"logout":           {"Signed Out", "Hi {{name}}, you have been signed out of your account."},
				"password_changed": {"Password Changed", "Hi {{name}}, your password was changed successfully."},
			},
			fallback: func(subtype string) template {
				return template{"Account Update", "There is an update on your account."}
			},
		},
		domain.EventOrder: {
			entries: map[string]template{
				"placed":           {"Order Placed", "Thanks {{name}}! Order #{{order_id}} has been placed."},
				"confirmed":        {"Order Confirmed", "Order #{{order_id}} is confirmed and being prepared."},
				"shipped":          {"Order Shipped", "Order #{{order_id}} is on its way!"},
				"out_for_delivery": {"Out for Delivery", "Order #{{order_id}} will arrive today."},
				"delivered":        {"Order Delivered", "Order #{{order_id}} was delivered. Enjoy!"},
				"cancelled":        {"Order Cancelled", "Order #{{order_id}} has been cancelled."},
			},
			fallback: func(subtype string) template {
				return template{"Order Status Updated", "Order #{{order_id}} status: " + subtype}
			},
		},
		domain.EventPromotional: {
			entries: map[string]template{
				"generic":  {"Special Offer", "{{name}}, we picked a deal just for you."},
				"discount": {"{{discount}}% Off {{product}}", "Today only: {{product}} at {{discount}}% off."},
			},
			fallback: func(subtype string) template {
				return template{"Special Offer", "A new deal is waiting for you in the app."}
			},
		},
		domain.EventWishlist: {
			entries: map[string]template{
				"restock":    {"Back in Stock", "{{product}} from your wishlist is back in stock!"},
				"price_drop": {"Price Drop", "{{product}} on your wishlist just dropped to a lower price."},
			},
			fallback: func(subtype string) template {
				return template{"Wishlist Update", "An item on your wishlist has news for you."}
			},
		},
		domain.EventEngagement: {
			entries: map[string]template{
				"cart_reminder":    {"Your Cart Misses You", "You left {{item_count}} item(s) in your cart. Complete your order before they sell out!"},
				"comeback":         {"We Miss You", "{{name}}, it's been a while. Come see what's new."},
				"feedback_request": {"How Was Your Order?", "Tell us about order #{{order_id}}. Your feedback helps us improve."},
			},
			fallback: func(subtype string) template {
				return template{"Don't Miss Out", "There is something new waiting for you."}
			},
		},
	}
}
