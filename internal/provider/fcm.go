package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/veloramarket/push-engine/internal/domain"
)

const (
	defaultFCMEndpoint = "https://fcm.googleapis.com/fcm/send"
	defaultFCMTimeout  = 10 * time.Second
)

type fcmRequest struct {
	To              string            `json:"to,omitempty"`
	RegistrationIDs []string          `json:"registration_ids,omitempty"`
	Notification    fcmNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// FCMProvider delivers push notifications through the FCM legacy HTTP API.
type FCMProvider struct {
	client    *resty.Client
	endpoint  string
	serverKey string
}

func NewFCMProvider(serverKey, endpoint string, timeout time.Duration) (*FCMProvider, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultFCMTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewFCMProviderWithClient(serverKey, endpoint, client)
}

func NewFCMProviderWithClient(serverKey, endpoint string, client *resty.Client) (*FCMProvider, error) {
	if strings.TrimSpace(serverKey) == "" {
		return nil, fmt.Errorf("fcm server key is required")
	}
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		trimmedEndpoint = defaultFCMEndpoint
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid fcm endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultFCMTimeout)
	}
	client.SetRetryCount(0)

	return &FCMProvider{
		client:    client,
		endpoint:  trimmedEndpoint,
		serverKey: strings.TrimSpace(serverKey),
	}, nil
}

func (p *FCMProvider) Send(ctx context.Context, token string, msg domain.Message) (*SendResponse, error) {
	if p == nil || p.client == nil {
		return nil, &ProviderError{Message: "provider is not initialized"}
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	reqBody := fcmRequest{
		To:           token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}

	fcmResp, statusCode, err := p.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	if len(fcmResp.Results) > 0 && fcmResp.Results[0].Error != "" {
		code := fcmResp.Results[0].Error
		return nil, &ProviderError{
			StatusCode:   statusCode,
			Message:      fmt.Sprintf("fcm rejected token: %s", code),
			InvalidToken: fcmFatalTokenError(code),
		}
	}

	messageID := ""
	if len(fcmResp.Results) > 0 {
		messageID = fcmResp.Results[0].MessageID
	}

	return &SendResponse{MessageID: messageID, StatusCode: statusCode}, nil
}

func (p *FCMProvider) SendMulticast(ctx context.Context, tokens []string, msg domain.Message) (*MulticastResponse, error) {
	if p == nil || p.client == nil {
		return nil, &ProviderError{Message: "provider is not initialized"}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: at least one token is required", domain.ErrValidation)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	reqBody := fcmRequest{
		RegistrationIDs: tokens,
		Notification:    fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:            msg.Data,
	}

	fcmResp, statusCode, err := p.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	result := &MulticastResponse{
		Statuses: make([]RecipientStatus, 0, len(tokens)),
	}
	for idx, token := range tokens {
		status := RecipientStatus{Token: token}
		if idx < len(fcmResp.Results) {
			res := fcmResp.Results[idx]
			status.MessageID = res.MessageID
			if res.Error != "" {
				status.InvalidToken = fcmFatalTokenError(res.Error)
				status.Err = &ProviderError{
					StatusCode:   statusCode,
					Message:      fmt.Sprintf("fcm rejected token: %s", res.Error),
					InvalidToken: status.InvalidToken,
				}
			}
		}

		if status.Err == nil {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
		result.Statuses = append(result.Statuses, status)
	}

	return result, nil
}

func (p *FCMProvider) post(ctx context.Context, reqBody fcmRequest) (*fcmResponse, int, error) {
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+p.serverKey).
		SetBody(reqBody).
		SetResult(&fcmResponse{}).
		Post(p.endpoint)
	if err != nil {
		return nil, 0, &ProviderError{
			Message: "provider request failed",
			Cause:   wrapTransportError(err),
		}
	}
	if response == nil {
		return nil, 0, &ProviderError{Message: "provider returned empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, statusCode, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("provider returned status %d", statusCode),
		}
	}

	fcmResp, ok := response.Result().(*fcmResponse)
	if !ok || fcmResp == nil {
		return nil, statusCode, &ProviderError{
			StatusCode: statusCode,
			Message:    "provider response could not be decoded",
		}
	}

	return fcmResp, statusCode, nil
}

func wrapTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}
