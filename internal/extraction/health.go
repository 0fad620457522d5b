package extraction

import "sync"

// HealthState tracks the client's view of the extraction backend.
type HealthState int

const (
	// Healthy means the last interaction with the backend succeeded.
	Healthy HealthState = iota
	// Degraded means at least one recent interaction failed.
	Degraded
	// Unhealthy means the configured number of consecutive failures was
	// reached; the real backend is skipped until a probe succeeds.
	Unhealthy
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// healthTracker implements the hysteresis of the backend health state:
// healthy -> degraded on the first failure, degraded -> unhealthy after
// threshold consecutive failures, any success -> healthy. The hysteresis
// keeps a single transient failure from triggering a fallback storm.
type healthTracker struct {
	mu                  sync.Mutex
	state               HealthState
	consecutiveFailures int
	threshold           int
}

func newHealthTracker(threshold int) *healthTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &healthTracker{threshold: threshold}
}

func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = Healthy
	h.consecutiveFailures = 0
}

func (h *healthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	if h.consecutiveFailures >= h.threshold {
		h.state = Unhealthy
		return
	}
	h.state = Degraded
}

func (h *healthTracker) State() HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
