package circuitbreaker

import (
	"sync"
	"time"
)

// entry pairs a breaker with its last access time for idle eviction.
type entry struct {
	breaker    *Breaker
	lastAccess time.Time
}

// Registry manages circuit breakers for multiple resources.
// Breakers are created lazily on first access. Keys are unbounded
// (callback hosts), so idle breakers can be evicted with PruneIdle.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config
}

// NewRegistry creates a new registry with the given default config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		config:  cfg,
	}
}

// Get returns the circuit breaker for a key, creating one if needed.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[key]; exists {
		e.lastAccess = time.Now()
		return e.breaker
	}

	e := &entry{breaker: New(r.config), lastAccess: time.Now()}
	r.entries[key] = e
	return e.breaker
}

// PruneIdle removes breakers not accessed for maxIdle that carry no state
// (closed, zero failures). Returns the number of breakers removed.
func (r *Registry) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, e := range r.entries {
		if e.lastAccess.Before(cutoff) && e.breaker.idle() {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns statistics about the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total: len(r.entries),
	}
	for _, e := range r.entries {
		switch e.breaker.State() {
		case Open:
			stats.Open++
		case HalfOpen:
			stats.HalfOpen++
		case Closed:
			stats.Closed++
		}
	}
	return stats
}

// Stats holds registry statistics.
type Stats struct {
	Total    int // Total breakers
	Open     int // Breakers in open state
	HalfOpen int // Breakers in half-open state
	Closed   int // Breakers in closed state
}

// Reset resets all breakers in the registry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		e.breaker.Reset()
	}
}

// Remove removes a breaker from the registry.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Keys returns all registered keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}
