package chain

import (
	"sync"
	"time"
)

// endpointHealth tracks per-endpoint failure counts and drives rotation.
// Trimmed-down circuit breaker: an endpoint "trips" after a streak of
// transient failures, and a tripped primary is only re-adopted by the next
// scheduled health probe, so a single success mid-storm does not flap the
// fleet back and forth.
type endpointHealth struct {
	mu sync.Mutex

	consecutiveFailures int
	totalFailures       int64
	totalSuccesses      int64
	lastFailure         time.Time
	tripThreshold       int
}

func newEndpointHealth(threshold int) *endpointHealth {
	if threshold <= 0 {
		threshold = 3
	}
	return &endpointHealth{tripThreshold: threshold}
}

// onSuccess records a successful call. It does not untrip the endpoint;
// only reset (the health probe) does.
func (h *endpointHealth) onSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalSuccesses++
	h.consecutiveFailures = 0
}

// onFailure records a transient failure and reports whether the endpoint
// just tripped.
func (h *endpointHealth) onFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalFailures++
	h.consecutiveFailures++
	h.lastFailure = time.Now()
	return h.consecutiveFailures == h.tripThreshold
}

func (h *endpointHealth) tripped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures >= h.tripThreshold
}

// reset clears the failure streak after a successful health probe.
func (h *endpointHealth) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
}
