package throttle

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Limiter is the pacing handle scan tasks receive. The registry keeps
// ownership of the underlying buckets.
type Limiter interface {
	Wait(ctx context.Context) error
	Rate() float64
}

// Registry caches one token bucket per program for the process lifetime.
// The rate a program is first registered with sticks until restart.
type Registry struct {
	defaultRate float64
	limiters    map[string]*TokenBucket
	mu          sync.Mutex
}

func NewRegistry(defaultRate float64) *Registry {
	return &Registry{
		defaultRate: defaultRate,
		limiters:    make(map[string]*TokenBucket),
	}
}

// Get returns the program's limiter, creating it on first use with the
// provided rate. A non-positive rate falls back to the registry default.
func (r *Registry) Get(program string, rate float64) *TokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tb, exists := r.limiters[program]; exists {
		return tb
	}

	if rate <= 0 {
		rate = r.defaultRate
	}
	tb := NewTokenBucket(rate)
	r.limiters[program] = tb
	log.Debug().Str("program", program).Float64("rps", rate).Msg("Created rate limiter")
	return tb
}

// Size returns the number of cached limiters.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
