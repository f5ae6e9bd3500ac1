package provider

import (
	"context"

	"github.com/veloramarket/push-engine/internal/domain"
)

var _ PushProvider = (*NopProvider)(nil)

// NopProvider stands in when no FCM credentials are configured. Every send
// fails softly as provider unavailability so callers log and continue.
type NopProvider struct{}

func NewNopProvider() *NopProvider { return &NopProvider{} }

func (p *NopProvider) Send(ctx context.Context, token string, msg domain.Message) (*SendResponse, error) {
	return nil, &ProviderError{Message: "push provider is not configured"}
}

func (p *NopProvider) SendMulticast(ctx context.Context, tokens []string, msg domain.Message) (*MulticastResponse, error) {
	return nil, &ProviderError{Message: "push provider is not configured"}
}
