package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
)

// Verdict says whether a failed attempt may be repeated
type Verdict int

const (
	Fatal Verdict = iota
	Retriable
)

func (v Verdict) String() string {
	if v == Retriable {
		return "retriable"
	}
	return "fatal"
}

// Classifier decides the Verdict for an attempt's error
type Classifier func(error) Verdict

// Classify is the default classifier. Transient service failures and attempt timeouts are
// retriable. Auth and request configuration problems, an open breaker, bad payloads and
// unreadable bills are not.
func Classify(err error) Verdict {
	if err == nil || errors.Is(err, context.Canceled) {
		return Fatal
	}

	if e, ok := apperr.As(err); ok {
		switch e.Kind {
		case apperr.KindExtractionService:
			switch e.Code {
			case apperr.CodeAuth, apperr.CodeConfig, apperr.CodeCircuitOpen:
				return Fatal
			}
			return Retriable
		case apperr.KindTimeout:
			return Retriable
		default:
			return Fatal
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Retriable
	}
	return Fatal
}

// RetryPolicy runs an operation up to MaxAttempts times with capped exponential backoff
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Classify    Classifier
}

// DefaultRetryPolicy allows two attempts, waiting 1s between them and never more than 5s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		Classify:    Classify,
	}
}

// Backoff is the wait after the given failed attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a fatal error, runs out of attempts or ctx ends.
// Attempts never overlap. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return attempt, nil
		}
		if attempt == maxAttempts || classify(err) != Retriable || ctx.Err() != nil {
			return attempt, err
		}

		delay := p.Backoff(attempt)
		slog.Warn("Attempt failed, retrying", "attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		}
	}
	return maxAttempts, err
}
