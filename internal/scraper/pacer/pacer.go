package pacer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer throttles successive fetches against the source site
type Pacer interface {
	// Wait blocks until the next fetch may start or ctx is done
	Wait(ctx context.Context) error
}

// None never waits
type None struct{}

func (None) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Fixed sleeps the same delay on every call
type Fixed struct {
	Delay time.Duration
}

func (f Fixed) Wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(f.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter spaces calls at least interval apart using a token bucket with
// burst 1, so time spent fetching counts toward the gap. The bucket starts
// empty: the first Wait returns interval after construction at the earliest.
type Limiter struct {
	limiter *rate.Limiter
}

func NewLimiter(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l := rate.NewLimiter(limit, 1)
	// The crawlers fetch before their first Wait, which already spends this token
	l.Allow()
	return &Limiter{limiter: l}
}

func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// New builds the pacer selected by mode ("fixed" or "rate")
func New(mode string, delay time.Duration) Pacer {
	if mode == "rate" {
		return NewLimiter(delay)
	}
	return Fixed{Delay: delay}
}
