package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veloramarket/push-engine/internal/domain"
	"github.com/veloramarket/push-engine/internal/observability"
	"github.com/veloramarket/push-engine/internal/provider"
	"github.com/veloramarket/push-engine/internal/ratelimit"
	"github.com/veloramarket/push-engine/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// maxMulticastChunk is the FCM limit on registration ids per call.
	maxMulticastChunk = 500
	// rateLimitScope is the rate limiter bucket for provider calls.
	rateLimitScope = "push"

	defaultSendTimeout       = 10 * time.Second
	invalidationWriteTimeout = 5 * time.Second
)

// Gateway fans notifications out to device tokens. It is a pure transport
// concern: it never writes the ledger, and the only state it touches is
// token invalidation driven by provider-reported dead tokens.
type Gateway struct {
	tokens      registry.TokenStore
	provider    provider.PushProvider
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	sendTimeout time.Duration

	// invalidations tracks in-flight async token clears so Close can drain.
	invalidations sync.WaitGroup
}

func NewGateway(
	tokens registry.TokenStore,
	pushProvider provider.PushProvider,
	rateLimiter ratelimit.RateLimiter,
	sendTimeout time.Duration,
	logger *zap.Logger,
) (*Gateway, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if pushProvider == nil {
		return nil, fmt.Errorf("push provider is required")
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		tokens:      tokens,
		provider:    pushProvider,
		rateLimiter: rateLimiter,
		logger:      logger,
		sendTimeout: sendTimeout,
	}, nil
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.metrics = metrics
}

// SendOne delivers a message to a single token. A provider-reported dead
// token schedules asynchronous registry invalidation for its owner.
func (g *Gateway) SendOne(ctx context.Context, userID, token string, msg domain.Message) domain.DeliveryOutcome {
	if err := g.waitForRateLimit(ctx); err != nil {
		return domain.DeliveryOutcome{Token: token, Err: fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)}
	}

	sendCtx, cancel := context.WithTimeout(ctx, g.sendTimeout)
	defer cancel()

	start := time.Now()
	_, err := g.provider.Send(sendCtx, token, msg)
	if g.metrics != nil {
		g.metrics.ObserveSendDuration(time.Since(start))
	}

	if err == nil {
		if g.metrics != nil {
			g.metrics.IncSent()
		}
		return domain.DeliveryOutcome{Token: token, Success: true}
	}

	if provider.IsInvalidToken(err) {
		g.scheduleInvalidation(userID, token)
		if g.metrics != nil {
			g.metrics.IncFailed("invalid_token")
		}
		return domain.DeliveryOutcome{Token: token, Err: fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)}
	}

	// Timeouts and transport failures are soft: log and report, never
	// invalidate the token, never abort the caller.
	observability.WithContextLogger(g.logger, ctx).Warn("push send failed",
		zap.String("userId", userID),
		zap.Error(err),
	)
	if g.metrics != nil {
		g.metrics.IncFailed("provider_unavailable")
	}
	return domain.DeliveryOutcome{Token: token, Err: fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)}
}

// SendToUser resolves the user's token and sends. An absent token yields a
// failed outcome with ErrNoToken instead of an error return.
func (g *Gateway) SendToUser(ctx context.Context, userID string, msg domain.Message) domain.DeliveryOutcome {
	token, err := g.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNoToken) {
			return domain.DeliveryOutcome{Err: domain.ErrNoToken}
		}
		return domain.DeliveryOutcome{Err: err}
	}

	return g.SendOne(ctx, userID, token, msg)
}

// SendMulticast batches recipients behind chunked provider calls. Partial
// success is the expected common case: a failed chunk marks only its own
// tokens failed and the remaining chunks still go out.
func (g *Gateway) SendMulticast(ctx context.Context, recipients []registry.UserToken, msg domain.Message) *domain.MulticastResult {
	result := &domain.MulticastResult{}
	if len(recipients) == 0 {
		return result
	}

	ownerByToken := make(map[string]string, len(recipients))
	tokens := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ownerByToken[r.Token] = r.UserID
		tokens = append(tokens, r.Token)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)

	for start := 0; start < len(tokens); start += maxMulticastChunk {
		end := min(start+maxMulticastChunk, len(tokens))
		chunk := tokens[start:end]

		group.Go(func() error {
			outcomes := g.sendChunk(groupCtx, chunk, msg)

			mu.Lock()
			defer mu.Unlock()
			for _, outcome := range outcomes {
				if outcome.Success {
					result.SuccessCount++
				} else {
					result.FailureCount++
					if errors.Is(outcome.Err, domain.ErrInvalidToken) {
						result.InvalidTokens = append(result.InvalidTokens, outcome.Token)
					}
				}
				result.Outcomes = append(result.Outcomes, outcome)
			}
			return nil
		})
	}

	// Chunk errors are folded into per-token outcomes; the group never fails.
	_ = group.Wait()

	for _, token := range result.InvalidTokens {
		g.scheduleInvalidation(ownerByToken[token], token)
	}

	return result
}

// SendToAllUsers broadcasts to every user with a live token.
func (g *Gateway) SendToAllUsers(ctx context.Context, msg domain.Message) (*domain.MulticastResult, error) {
	recipients, err := g.tokens.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcast recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no users with a registered token", domain.ErrNoToken)
	}

	return g.SendMulticast(ctx, recipients, msg), nil
}

// Close waits for in-flight async invalidation writes to finish.
func (g *Gateway) Close() {
	g.invalidations.Wait()
}

func (g *Gateway) sendChunk(ctx context.Context, chunk []string, msg domain.Message) []domain.DeliveryOutcome {
	outcomes := make([]domain.DeliveryOutcome, 0, len(chunk))

	if err := g.waitForRateLimit(ctx); err != nil {
		return failChunk(chunk, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err))
	}

	sendCtx, cancel := context.WithTimeout(ctx, g.sendTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.SendMulticast(sendCtx, chunk, msg)
	if g.metrics != nil {
		g.metrics.ObserveSendDuration(time.Since(start))
	}

	if err != nil {
		// The provider call itself failed before producing per-recipient
		// results; every token in the chunk counts as a soft failure.
		observability.WithContextLogger(g.logger, ctx).Warn("multicast chunk failed",
			zap.Int("chunkSize", len(chunk)),
			zap.Error(err),
		)
		if g.metrics != nil {
			g.metrics.IncFailed("provider_unavailable")
		}
		return failChunk(chunk, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err))
	}

	for _, status := range resp.Statuses {
		outcome := domain.DeliveryOutcome{Token: status.Token}
		switch {
		case status.Err == nil:
			outcome.Success = true
			if g.metrics != nil {
				g.metrics.IncSent()
			}
		case status.InvalidToken:
			outcome.Err = fmt.Errorf("%w: %v", domain.ErrInvalidToken, status.Err)
			if g.metrics != nil {
				g.metrics.IncFailed("invalid_token")
			}
		default:
			outcome.Err = fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, status.Err)
			if g.metrics != nil {
				g.metrics.IncFailed("provider_unavailable")
			}
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// scheduleInvalidation clears a dead token without blocking the caller's
// response. Registry writes and provider sends are independent effects.
func (g *Gateway) scheduleInvalidation(userID, token string) {
	if userID == "" {
		return
	}

	g.invalidations.Add(1)
	go func() {
		defer g.invalidations.Done()

		ctx, cancel := context.WithTimeout(context.Background(), invalidationWriteTimeout)
		defer cancel()

		if err := g.tokens.Clear(ctx, userID); err != nil {
			g.logger.Error("failed to invalidate dead token",
				zap.String("userId", userID),
				zap.Error(err),
			)
			return
		}

		if g.metrics != nil {
			g.metrics.IncTokenInvalidated()
		}
		g.logger.Info("cleared provider-reported dead token",
			zap.String("userId", userID),
			zap.Int("tokenLength", len(token)),
		)
	}()
}

func (g *Gateway) waitForRateLimit(ctx context.Context) error {
	if g.rateLimiter == nil {
		return nil
	}
	return g.rateLimiter.Wait(ctx, rateLimitScope)
}

func failChunk(chunk []string, err error) []domain.DeliveryOutcome {
	outcomes := make([]domain.DeliveryOutcome, 0, len(chunk))
	for _, token := range chunk {
		outcomes = append(outcomes, domain.DeliveryOutcome{Token: token, Err: err})
	}
	return outcomes
}
