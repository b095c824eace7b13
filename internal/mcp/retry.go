package mcp

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry defaults for connect and restart attempts.
const (
	RetryInitialDelay = 1 * time.Second
	RetryMaxDelay     = 30 * time.Second
	RetryMultiplier   = 2.0
	RetryMaxRetries   = 3
)

// RetryPolicy retries transient transport failures with exponential
// backoff. The first attempt runs immediately; retry n then waits
// min(InitialDelay * Multiplier^n, MaxDelay). A JSON-RPC error response
// is never retried: the server answered, and the answer will not change.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int
}

// DefaultRetryPolicy returns the standard connect retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: RetryInitialDelay,
		MaxDelay:     RetryMaxDelay,
		Multiplier:   RetryMultiplier,
		MaxRetries:   RetryMaxRetries,
	}
}

// withDefaults fills zero fields so a partially-specified policy behaves.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = RetryInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = RetryMaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = RetryMultiplier
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = RetryMaxRetries
	}
	return p
}

// Delay returns the wait before retry n (zero-based):
// min(InitialDelay * Multiplier^n, MaxDelay).
func (p RetryPolicy) Delay(n int) time.Duration {
	p = p.withDefaults()
	if n < 0 {
		n = 0
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n)))
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// newBackOff builds the underlying exponential backoff. Randomization is
// off so observed delays follow Delay exactly.
func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx)
}

// Execute runs op, retrying transient transport failures up to
// MaxRetries times. Non-transient failures abort immediately and are
// returned as-is; after the budget is spent the last transient error is
// returned.
func (p RetryPolicy) Execute(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, p.newBackOff(ctx))
}
