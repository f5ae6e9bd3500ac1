package domain

import (
	"fmt"
	"strings"
)

// EventType groups notifications by the kind of domain event that produced them.
type EventType string

const (
	EventAccount     EventType = "ACCOUNT"
	EventOrder       EventType = "ORDER"
	EventPromotional EventType = "PROMOTIONAL"
	EventWishlist    EventType = "WISHLIST"
	EventEngagement  EventType = "ENGAGEMENT"
)

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	switch e {
	case EventAccount, EventOrder, EventPromotional, EventWishlist, EventEngagement:
		return true
	}
	return false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	e := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return e, nil
}

// Maximum lengths enforced before handing content to the push provider.
const (
	MaxTitleLength = 120
	MaxBodyLength  = 1024
)

// Message is the immutable content of a single push notification.
type Message struct {
	Title    string
	Body     string
	Data     map[string]string
	Category string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if len([]rune(m.Title)) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	if len([]rune(m.Body)) > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters", ErrValidation, MaxBodyLength)
	}
	return nil
}

// PromotionTemplate is a static catalog entry for promotional content.
type PromotionTemplate struct {
	Title    string
	Body     string
	Category string
	Subtype  string
}

// CategoryAll is the universal promotion category matched by any preference.
const CategoryAll = "All"

// DeliveryOutcome is the result of one attempted send to a single token.
type DeliveryOutcome struct {
	Token   string
	Success bool
	Err     error
}

// MulticastResult aggregates per-token outcomes of a batched send.
// SuccessCount + FailureCount always equals the number of input tokens.
type MulticastResult struct {
	SuccessCount  int
	FailureCount  int
	Outcomes      []DeliveryOutcome
	InvalidTokens []string
}
