package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerAnalyzer wraps a domain.Analyzer with circuit breaker protection.
// When the provider fails repeatedly, the circuit opens and subsequent calls
// fail fast without reaching the provider, preventing retry storms while the
// queue redelivers.
type BreakerAnalyzer struct {
	inner   domain.Analyzer
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewBreakerAnalyzer wraps inner with a circuit breaker.
// Zero-valued cfg fields fall back to defaults.
func NewBreakerAnalyzer(inner domain.Analyzer, cfg config.BreakerConfig, logger *slog.Logger) *BreakerAnalyzer {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "llm:analyzer",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A contract violation in the model's output is not a provider
		// outage; only transport and provider failures trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrBadClassification)
		},
	})

	return &BreakerAnalyzer{inner: inner, breaker: cb, logger: logger}
}

// Classify implements domain.Analyzer. Calls route through the breaker.
func (b *BreakerAnalyzer) Classify(ctx context.Context, text string) (*domain.MessageMetadata, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Classify(ctx, text)
	})
	if err != nil {
		return nil, mapBreakerError(err)
	}
	return result.(*domain.MessageMetadata), nil
}

// Extract implements domain.Analyzer. Calls route through the breaker.
func (b *BreakerAnalyzer) Extract(ctx context.Context, text string, intent domain.Intent) (*domain.StructuredDocument, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Extract(ctx, text, intent)
	})
	if err != nil {
		return nil, mapBreakerError(err)
	}
	return result.(*domain.StructuredDocument), nil
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerAnalyzer) State() gobreaker.State {
	return b.breaker.State()
}

func mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: analyzer circuit open: %v", domain.ErrProviderError, err)
	}
	return err
}

// Compile-time interface check.
var _ domain.Analyzer = (*BreakerAnalyzer)(nil)
