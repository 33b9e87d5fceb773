package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"

	"questpulse/internal/monitor"
)

// ResilientProvider wraps an assistant provider with resilience patterns from
// fortify. A misbehaving backend trips the breaker instead of stalling the
// conversation path.
type ResilientProvider struct {
	provider       Provider
	circuitBreaker circuitbreaker.CircuitBreaker[*Response]
	retrier        retry.Retry[*Response]
	bulkhead       bulkhead.Bulkhead[*Response]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
	name           string
}

// ResilientConfig holds configuration for the resilient wrapper
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	// MaxConcurrent for bulkhead (default: 3)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 2)
	RatePerSecond int

	Logger *slog.Logger
}

// DefaultResilientConfig returns sensible defaults for assistant resilience
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxConcurrent:        3,
		RatePerSecond:        2,
	}
}

// NewResilientProvider wraps a provider with resilience patterns
func NewResilientProvider(provider Provider, cfg ResilientConfig) *ResilientProvider {
	rp := &ResilientProvider{
		provider: provider,
		logger:   cfg.Logger,
		name:     provider.Name(),
	}

	if cfg.EnableCircuitBreaker {
		rp.circuitBreaker = circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rp.logger != nil {
					rp.logger.Warn("circuit breaker state change",
						"provider", rp.name,
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableRetry {
		rp.retrier = retry.New[*Response](retry.Config{
			MaxAttempts:   3,
			InitialDelay:  2 * time.Second,
			MaxDelay:      30 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return isRetryableHTTPError(err)
			},
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 3
		}
		rp.bulkhead = bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 2
		}
		rp.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 3,
			Interval: time.Second,
		})
	}

	return rp
}

func (p *ResilientProvider) Name() string {
	return p.provider.Name()
}

func (p *ResilientProvider) InitialResponse(ctx context.Context, persona Persona, triggerType string, snapshot monitor.Snapshot, extra map[string]any) (*Response, error) {
	return p.execute(ctx, func(ctx context.Context) (*Response, error) {
		return p.provider.InitialResponse(ctx, persona, triggerType, snapshot, extra)
	})
}

func (p *ResilientProvider) RespondToUser(ctx context.Context, persona Persona, userText string, history []Turn, snapshot monitor.Snapshot) (*Response, error) {
	return p.execute(ctx, func(ctx context.Context) (*Response, error) {
		return p.provider.RespondToUser(ctx, persona, userText, history, snapshot)
	})
}

func (p *ResilientProvider) execute(ctx context.Context, operation func(context.Context) (*Response, error)) (*Response, error) {
	if p.rateLimit != nil {
		if !p.rateLimit.Allow(ctx, p.name) {
			return nil, fmt.Errorf("rate limit exceeded for provider %s", p.name)
		}
	}

	inner := operation
	if p.bulkhead != nil {
		inner = func(ctx context.Context) (*Response, error) {
			return p.bulkhead.Execute(ctx, operation)
		}
	}

	if p.circuitBreaker != nil && p.retrier != nil {
		return p.circuitBreaker.Execute(ctx, func(ctx context.Context) (*Response, error) {
			return p.retrier.Do(ctx, inner)
		})
	}
	if p.circuitBreaker != nil {
		return p.circuitBreaker.Execute(ctx, inner)
	}
	if p.retrier != nil {
		return p.retrier.Do(ctx, inner)
	}
	return inner(ctx)
}

// Close releases resources held by the resilient provider
func (p *ResilientProvider) Close() error {
	if p.rateLimit != nil {
		return p.rateLimit.Close()
	}
	return nil
}

// isRetryableHTTPError checks if an error is retryable based on HTTP semantics
func isRetryableHTTPError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryable := []string{
		fmt.Sprintf("status %d", http.StatusTooManyRequests),
		fmt.Sprintf("status %d", http.StatusInternalServerError),
		fmt.Sprintf("status %d", http.StatusBadGateway),
		fmt.Sprintf("status %d", http.StatusServiceUnavailable),
		fmt.Sprintf("status %d", http.StatusGatewayTimeout),
	}
	for _, pattern := range retryable {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
