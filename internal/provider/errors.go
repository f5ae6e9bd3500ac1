package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/veloramarket/push-engine/internal/domain"
)

// ProviderError classifies provider call failures. InvalidToken means the
// provider explicitly rejected the recipient token; everything else is a
// transport-level condition surfaced as provider unavailability.
type ProviderError struct {
	StatusCode   int
	Message      string
	InvalidToken bool
	Cause        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause != nil {
		return e.Cause
	}
	if e.InvalidToken {
		return domain.ErrInvalidToken
	}
	return domain.ErrProviderUnavailable
}

// IsInvalidToken reports whether an error is a provider-reported dead token.
// Timeouts and transport failures never count: only explicit rejections may
// trigger registry invalidation.
func IsInvalidToken(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrInvalidToken) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.InvalidToken
	}
	return false
}

// IsUnavailable reports whether an error should be treated as provider
// unavailability: a soft, recoverable failure for the caller.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return !providerErr.InvalidToken
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// fcmFatalTokenError reports whether an FCM result error names a dead or
// unregistered token.
func fcmFatalTokenError(code string) bool {
	switch code {
	case "NotRegistered", "InvalidRegistration", "MismatchSenderId":
		return true
	}
	return false
}
