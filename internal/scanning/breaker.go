package scanning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
)

// BreakerSettings controls when the breaker stops calling a failing provider
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32        // consecutive service failures before opening
	OpenTimeout      time.Duration // how long to stay open before probing again
}

// Breaker wraps an Extractor with a circuit breaker. While open, calls fail fast with an
// ExtractionService error coded circuit_open.
type Breaker struct {
	next Extractor
	cb   *gobreaker.CircuitBreaker[[]byte]
}

// NewBreaker decorates next with a circuit breaker
func NewBreaker(next Extractor, settings BreakerSettings) *Breaker {
	if settings.Name == "" {
		settings.Name = "extraction"
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	threshold := settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// only provider outages count against the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.Is(err, apperr.KindExtractionService)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("extraction circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Breaker{next: next, cb: cb}
}

// Extract forwards to the wrapped extractor unless the breaker is open
func (b *Breaker) Extract(ctx context.Context, image []byte, contentType string) ([]byte, error) {
	out, err := b.cb.Execute(func() ([]byte, error) {
		return b.next.Extract(ctx, image, contentType)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperr.Service(apperr.CodeCircuitOpen, "extraction service unavailable", err)
	}
	return out, err
}

// State reports the current breaker state
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Close closes the wrapped extractor
func (b *Breaker) Close() error {
	return b.next.Close()
}
