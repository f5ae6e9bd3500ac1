package provider

import (
	"context"

	"github.com/veloramarket/push-engine/internal/domain"
)

// PushProvider is the outbound push delivery port.
type PushProvider interface {
	Send(ctx context.Context, token string, msg domain.Message) (*SendResponse, error)
	SendMulticast(ctx context.Context, tokens []string, msg domain.Message) (*MulticastResponse, error)
}

// SendResponse stores provider call metadata for a single-recipient send.
type SendResponse struct {
	MessageID  string
	StatusCode int
}

// RecipientStatus is the provider-reported outcome for one token in a
// multicast call.
type RecipientStatus struct {
	Token        string
	MessageID    string
	Err          error
	InvalidToken bool
}

// MulticastResponse stores per-recipient outcomes of a batched provider call.
type MulticastResponse struct {
	SuccessCount int
	FailureCount int
	Statuses     []RecipientStatus
}
