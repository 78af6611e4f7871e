// Package throttle provides per-program request pacing for scan tasks.
package throttle

import (
	"context"
	"sync"
	"time"
)

type TokenBucket struct {
	tokens      float64
	maxTokens   float64
	rate        float64
	lastUpdated time.Time
	mu          sync.Mutex
}

// NewTokenBucket creates a bucket that refills at rate tokens per second.
// Capacity equals one second worth of tokens, floored at a single token so
// sub-1 rps programs can still acquire.
func NewTokenBucket(rate float64) *TokenBucket {
	maxTokens := rate
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &TokenBucket{
		tokens:      maxTokens,
		maxTokens:   maxTokens,
		rate:        rate,
		lastUpdated: time.Now(),
	}
}

// Rate returns the refill rate in requests per second.
func (tb *TokenBucket) Rate() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

func (tb *TokenBucket) refill(now time.Time) {
	delta := now.Sub(tb.lastUpdated).Seconds()
	tb.tokens += delta * tb.rate
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
	tb.lastUpdated = now
}

// HasToken consumes a token if one is available.
func (tb *TokenBucket) HasToken() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	if tb.tokens >= 1 {
		tb.tokens -= 1
		return true
	}
	return false
}

// Wait blocks until a token can be consumed or the context is cancelled.
// Callers suspend on a timer sized to the deficit rather than polling.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		tb.refill(now)
		if tb.tokens >= 1 {
			tb.tokens -= 1
			tb.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
