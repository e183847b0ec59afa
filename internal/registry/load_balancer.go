package registry

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crucible-ai/crucible/internal/types"
)

// LoadBalanceStrategy defines load balancing algorithms.
type LoadBalanceStrategy string

const (
	// StrategyRoundRobin distributes deliveries evenly across instances in rotation
	StrategyRoundRobin LoadBalanceStrategy = "round_robin"

	// StrategyRandom selects instances randomly with uniform distribution
	StrategyRandom LoadBalanceStrategy = "random"

	// StrategyLeastRecentlyUsed selects the instance that was selected longest ago
	StrategyLeastRecentlyUsed LoadBalanceStrategy = "least_recently_used"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s LoadBalanceStrategy) bool {
	switch s {
	case StrategyRoundRobin, StrategyRandom, StrategyLeastRecentlyUsed:
		return true
	}
	return false
}

// LoadBalancer selects one instance among all registrations sharing a
// service type. It excludes instances that are unroutable: unhealthy per
// the registry or isolated by an Open circuit.
//
// Selection is deterministic given the same candidate set and strategy
// state: round-robin cycles through candidates in service-id order, and
// least-recently-used picks the candidate whose last selection is oldest
// (ties broken by service id).
//
// Thread-safe: all methods can be called concurrently.
type LoadBalancer struct {
	registry *Registry
	breaker  *CircuitBreaker
	strategy LoadBalanceStrategy

	// rrCounters holds one rotation counter per service type.
	rrMu       sync.Mutex
	rrCounters map[string]*uint64

	// lastUsed holds per-service-id selection timestamps for the LRU
	// strategy.
	lruMu    sync.Mutex
	lastUsed map[string]int64
}

// NewLoadBalancer creates a load balancer over a registry and breaker bank.
// Unknown strategies fall back to round-robin.
func NewLoadBalancer(reg *Registry, breaker *CircuitBreaker, strategy LoadBalanceStrategy) *LoadBalancer {
	if !ValidStrategy(strategy) {
		strategy = StrategyRoundRobin
	}
	return &LoadBalancer{
		registry:   reg,
		breaker:    breaker,
		strategy:   strategy,
		rrCounters: make(map[string]*uint64),
		lastUsed:   make(map[string]int64),
	}
}

// Select returns one routable instance of the service type.
//
// Returns SERVICE_NOT_FOUND when no instance of the type is registered and
// NO_HEALTHY_INSTANCE when instances exist but every one is unroutable.
func (lb *LoadBalancer) Select(serviceType string) (ServiceRegistration, error) {
	candidates := lb.registry.ListByType(serviceType)
	if len(candidates) == 0 {
		return ServiceRegistration{}, types.NewErrorf(types.SERVICE_NOT_FOUND,
			"no instances of service type %s registered", serviceType)
	}

	routable := candidates[:0]
	for _, reg := range candidates {
		if !reg.Health.IsRoutable() {
			continue
		}
		if lb.breaker != nil && lb.breaker.State(reg.ServiceID) == StateOpen {
			continue
		}
		routable = append(routable, reg)
	}
	if len(routable) == 0 {
		return ServiceRegistration{}, types.NewErrorf(types.NO_HEALTHY_INSTANCE,
			"all %d instances of service type %s are unroutable", len(candidates), serviceType)
	}

	// Stable candidate order makes selection deterministic.
	sort.Slice(routable, func(i, j int) bool {
		return routable[i].ServiceID < routable[j].ServiceID
	})

	if len(routable) == 1 {
		lb.markUsed(routable[0].ServiceID)
		return routable[0], nil
	}

	var selected ServiceRegistration
	switch lb.strategy {
	case StrategyRandom:
		selected = routable[rand.Intn(len(routable))]
	case StrategyLeastRecentlyUsed:
		selected = lb.selectLRU(routable)
	default:
		selected = lb.selectRoundRobin(serviceType, routable)
	}
	lb.markUsed(selected.ServiceID)
	return selected, nil
}

// Strategy returns the current load balancing strategy.
func (lb *LoadBalancer) Strategy() LoadBalanceStrategy {
	return lb.strategy
}

// selectRoundRobin cycles through candidates with a per-type counter.
func (lb *LoadBalancer) selectRoundRobin(serviceType string, candidates []ServiceRegistration) ServiceRegistration {
	lb.rrMu.Lock()
	counter, ok := lb.rrCounters[serviceType]
	if !ok {
		var zero uint64
		counter = &zero
		lb.rrCounters[serviceType] = counter
	}
	lb.rrMu.Unlock()

	count := atomic.AddUint64(counter, 1)
	return candidates[(count-1)%uint64(len(candidates))]
}

// selectLRU returns the candidate selected longest ago. Candidates never
// selected sort first, in service-id order.
func (lb *LoadBalancer) selectLRU(candidates []ServiceRegistration) ServiceRegistration {
	lb.lruMu.Lock()
	defer lb.lruMu.Unlock()

	selected := candidates[0]
	best := lb.lastUsed[selected.ServiceID]
	for _, reg := range candidates[1:] {
		if used := lb.lastUsed[reg.ServiceID]; used < best {
			selected = reg
			best = used
		}
	}
	return selected
}

func (lb *LoadBalancer) markUsed(serviceID string) {
	lb.lruMu.Lock()
	lb.lastUsed[serviceID] = time.Now().UnixNano()
	lb.lruMu.Unlock()
}

// String implements fmt.Stringer for log output.
func (lb *LoadBalancer) String() string {
	return fmt.Sprintf("LoadBalancer(strategy=%s)", lb.strategy)
}
