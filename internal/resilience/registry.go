package resilience

import (
	"sync"
	"time"
)

// Registry hands out one circuit breaker per worker agent so a failing
// agent does not trip calls to healthy ones.
type Registry struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	timeout     time.Duration
}

// NewRegistry creates a Registry whose breakers share the given settings.
func NewRegistry(maxFailures int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		timeout:     timeout,
	}
}

// For returns the breaker for the named agent, creating it on first use.
func (r *Registry) For(agent string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[agent]
	if !ok {
		b = NewBreaker(r.maxFailures, r.timeout)
		r.breakers[agent] = b
	}
	return b
}
