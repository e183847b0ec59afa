package registry

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means the circuit is closed (normal operation, deliveries allowed)
	StateClosed CircuitState = iota

	// StateOpen means the circuit is open (too many failures, deliveries rejected)
	StateOpen

	// StateHalfOpen means the circuit is probing whether the service has recovered
	StateHalfOpen
)

// String returns a human-readable representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 5
	FailureThreshold int

	// OpenTimeout is the cool-down before an Open circuit starts probing.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// SuccessThreshold is the number of consecutive probe successes in
	// HalfOpen required to close the circuit. Default: 2
	SuccessThreshold int

	// HalfOpenMaxProbes bounds how many deliveries are let through while
	// HalfOpen. Raised to SuccessThreshold when configured lower, since the
	// circuit could otherwise never close. Default: 3
	HalfOpenMaxProbes int
}

// DefaultCircuitBreakerConfig returns a configuration with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		OpenTimeout:       30 * time.Second,
		SuccessThreshold:  2,
		HalfOpenMaxProbes: 3,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = def.OpenTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.HalfOpenMaxProbes < c.SuccessThreshold {
		c.HalfOpenMaxProbes = c.SuccessThreshold
	}
	return c
}

// serviceCircuit tracks the circuit breaker state for a single service.
type serviceCircuit struct {
	serviceID string

	state CircuitState

	// failures counts consecutive failures in Closed state
	failures int

	// successes counts consecutive probe successes in HalfOpen state
	successes int

	// probes counts deliveries let through since entering HalfOpen
	probes int

	// openedAt records when the circuit was opened
	openedAt time.Time

	// lastFailure records the most recent failure time
	lastFailure time.Time
}

// CircuitBreaker manages per-service circuits. Each service id has its own
// circuit with three states:
//
//   - Closed: deliveries proceed, consecutive failures counted
//   - Open: deliveries rejected immediately, waiting out the cool-down
//   - HalfOpen: a bounded number of probe deliveries test recovery
//
// State transitions:
//   - Closed -> Open: after FailureThreshold consecutive failures
//   - Open -> HalfOpen: after OpenTimeout elapses
//   - HalfOpen -> Closed: after SuccessThreshold consecutive probe successes
//   - HalfOpen -> Open: on any probe failure
//
// Thread-safe: all methods can be called concurrently.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu       sync.RWMutex
	circuits map[string]*serviceCircuit
}

// NewCircuitBreaker creates a circuit breaker bank with the given
// configuration. Zero-valued config fields fall back to defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config:   config.withDefaults(),
		circuits: make(map[string]*serviceCircuit),
	}
}

// Allow checks whether a delivery to the service may proceed.
//
// Returns nil when the delivery should proceed, or a *CircuitOpenError when
// the circuit is Open or HalfOpen with all probe slots taken. Calling Allow
// on an Open circuit whose cool-down has elapsed transitions it to HalfOpen
// and consumes the first probe slot.
func (cb *CircuitBreaker) Allow(serviceID string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.getOrCreateLocked(serviceID)

	switch circuit.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(circuit.openedAt) >= cb.config.OpenTimeout {
			circuit.state = StateHalfOpen
			circuit.probes = 1
			circuit.successes = 0
			return nil
		}
		return cb.openError(circuit)

	case StateHalfOpen:
		if circuit.probes < cb.config.HalfOpenMaxProbes {
			circuit.probes++
			return nil
		}
		return cb.openError(circuit)

	default:
		return nil
	}
}

// RecordSuccess records a successful delivery to the service.
//
// In Closed state it resets the failure counter. In HalfOpen it counts
// toward SuccessThreshold; reaching the threshold closes the circuit.
func (cb *CircuitBreaker) RecordSuccess(serviceID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.getOrCreateLocked(serviceID)

	switch circuit.state {
	case StateClosed:
		circuit.failures = 0

	case StateHalfOpen:
		circuit.successes++
		if circuit.successes >= cb.config.SuccessThreshold {
			circuit.state = StateClosed
			circuit.failures = 0
			circuit.successes = 0
			circuit.probes = 0
		}

	case StateOpen:
		// A success can land here when the circuit opened while the
		// delivery was in flight. Leave the circuit alone; recovery goes
		// through HalfOpen probes.
	}
}

// RecordFailure records a failed delivery to the service.
//
// In Closed state it counts toward FailureThreshold and may open the
// circuit. In HalfOpen any failure reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure(serviceID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.getOrCreateLocked(serviceID)
	circuit.lastFailure = time.Now()

	switch circuit.state {
	case StateClosed:
		circuit.failures++
		if circuit.failures >= cb.config.FailureThreshold {
			circuit.state = StateOpen
			circuit.openedAt = time.Now()
			circuit.successes = 0
		}

	case StateHalfOpen:
		circuit.state = StateOpen
		circuit.openedAt = time.Now()
		circuit.failures = cb.config.FailureThreshold
		circuit.successes = 0
		circuit.probes = 0

	case StateOpen:
		// Already open; the counter stays at threshold.
	}
}

// State returns the current state of the circuit for the given service.
// An Open circuit whose cool-down has elapsed reports HalfOpen, though the
// transition itself happens in Allow.
func (cb *CircuitBreaker) State(serviceID string) CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	circuit, ok := cb.circuits[serviceID]
	if !ok {
		return StateClosed
	}
	if circuit.state == StateOpen && time.Since(circuit.openedAt) >= cb.config.OpenTimeout {
		return StateHalfOpen
	}
	return circuit.state
}

// Reset forces the circuit for a service back to Closed.
func (cb *CircuitBreaker) Reset(serviceID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if circuit, ok := cb.circuits[serviceID]; ok {
		circuit.state = StateClosed
		circuit.failures = 0
		circuit.successes = 0
		circuit.probes = 0
	}
}

// ResetAll forces every circuit back to Closed.
func (cb *CircuitBreaker) ResetAll() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for _, circuit := range cb.circuits {
		circuit.state = StateClosed
		circuit.failures = 0
		circuit.successes = 0
		circuit.probes = 0
	}
}

// Remove drops breaker state for a service, typically on unregister.
func (cb *CircuitBreaker) Remove(serviceID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, serviceID)
}

// Stats returns statistics about all circuits for monitoring.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	stats := CircuitBreakerStats{
		Total:    len(cb.circuits),
		Services: make(map[string]ServiceCircuitStats, len(cb.circuits)),
	}
	for serviceID, circuit := range cb.circuits {
		state := circuit.state
		if state == StateOpen && time.Since(circuit.openedAt) >= cb.config.OpenTimeout {
			state = StateHalfOpen
		}
		switch state {
		case StateClosed:
			stats.ClosedCount++
		case StateOpen:
			stats.OpenCount++
		case StateHalfOpen:
			stats.HalfOpenCount++
		}
		stats.Services[serviceID] = ServiceCircuitStats{
			State:       state,
			Failures:    circuit.failures,
			Successes:   circuit.successes,
			OpenedAt:    circuit.openedAt,
			LastFailure: circuit.lastFailure,
		}
	}
	return stats
}

// getOrCreateLocked returns the circuit for the service, creating it Closed
// if needed. Must be called with mu locked.
func (cb *CircuitBreaker) getOrCreateLocked(serviceID string) *serviceCircuit {
	circuit, ok := cb.circuits[serviceID]
	if !ok {
		circuit = &serviceCircuit{serviceID: serviceID, state: StateClosed}
		cb.circuits[serviceID] = circuit
	}
	return circuit
}

func (cb *CircuitBreaker) openError(circuit *serviceCircuit) *CircuitOpenError {
	return &CircuitOpenError{
		ServiceID:  circuit.serviceID,
		OpenedAt:   circuit.openedAt,
		RetryAfter: circuit.openedAt.Add(cb.config.OpenTimeout),
	}
}

// CircuitBreakerStats provides aggregate statistics about all circuits.
type CircuitBreakerStats struct {
	// Total number of tracked services
	Total int

	// ClosedCount is the number of circuits in Closed state
	ClosedCount int

	// OpenCount is the number of circuits in Open state
	OpenCount int

	// HalfOpenCount is the number of circuits in HalfOpen state
	HalfOpenCount int

	// Services maps service ids to their individual stats
	Services map[string]ServiceCircuitStats
}

// ServiceCircuitStats provides statistics about a single service circuit.
type ServiceCircuitStats struct {
	State       CircuitState
	Failures    int
	Successes   int
	OpenedAt    time.Time
	LastFailure time.Time
}

// CircuitOpenError is returned when a circuit is open and deliveries are
// rejected without invoking the handler.
type CircuitOpenError struct {
	ServiceID  string
	OpenedAt   time.Time
	RetryAfter time.Time
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for service %s (opened at %s, retry after %s)",
		e.ServiceID, e.OpenedAt.Format(time.RFC3339), e.RetryAfter.Format(time.RFC3339))
}
