// Package registry tracks live service instances and decides which instance
// receives a delivery: the Registry owns ServiceRegistration entries, the
// LoadBalancer picks among instances of a service type, and the
// CircuitBreaker isolates failing services.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/crucible-ai/crucible/internal/types"
)

// ServiceRegistration describes a live, addressable service instance.
// Entries are keyed by ServiceID; re-registering the same id replaces the
// prior entry.
type ServiceRegistration struct {
	// ServiceID uniquely identifies this instance.
	ServiceID string `json:"service_id"`

	// ServiceType groups interchangeable instances for load balancing.
	ServiceType string `json:"service_type"`

	// Instance is an optional instance label within the service type.
	Instance string `json:"instance,omitempty"`

	// Endpoint is transport metadata for the instance. The router does not
	// interpret it; handlers are invoked in-process.
	Endpoint string `json:"endpoint,omitempty"`

	// Capabilities declares what the instance can handle.
	Capabilities []string `json:"capabilities,omitempty"`

	Version string `json:"version,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	Health types.HealthStatus `json:"health"`

	RegisteredAt time.Time `json:"registered_at"`
}

// HasCapability reports whether the registration declares a capability.
func (r *ServiceRegistration) HasCapability(capability string) bool {
	for _, c := range r.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// WatchFunc observes registry mutations. Callbacks run synchronously under
// no registry lock, after the mutation is visible.
type WatchFunc func(change RegistryChange)

// RegistryChangeKind tags a registry mutation.
type RegistryChangeKind string

const (
	ChangeRegistered    RegistryChangeKind = "registered"
	ChangeUnregistered  RegistryChangeKind = "unregistered"
	ChangeHealthUpdated RegistryChangeKind = "health_updated"
)

// RegistryChange describes one registry mutation for watchers.
type RegistryChange struct {
	Kind         RegistryChangeKind
	ServiceID    string
	ServiceType  string
	Health       types.HealthStatus
	// Replaced is true when a registration displaced a prior entry.
	Replaced bool
}

// Registry is an in-memory service registry. All methods are safe for
// concurrent use; lookups take only a read lock.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string]*ServiceRegistration
	byType   map[string]map[string]struct{}

	watchMu  sync.RWMutex
	watchers []WatchFunc
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger.With("component", "registry"),
		services: make(map[string]*ServiceRegistration),
		byType:   make(map[string]map[string]struct{}),
	}
}

// Register adds or replaces a registration. Registration is idempotent:
// re-registering a service id replaces the prior entry, including a move
// to a different service type.
func (r *Registry) Register(reg ServiceRegistration) error {
	if reg.ServiceID == "" {
		return types.NewError(types.SERVICE_REGISTRATION_INVALID, "registration requires a service id")
	}
	if reg.ServiceType == "" {
		return types.NewErrorf(types.SERVICE_REGISTRATION_INVALID, "registration for %s requires a service type", reg.ServiceID)
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now()
	}
	if reg.Health.State == "" {
		reg.Health = types.Healthy("registered")
	}

	r.mu.Lock()
	prior, replaced := r.services[reg.ServiceID]
	if replaced && prior.ServiceType != reg.ServiceType {
		r.removeFromTypeLocked(prior.ServiceType, reg.ServiceID)
	}
	stored := reg
	r.services[reg.ServiceID] = &stored
	if _, ok := r.byType[reg.ServiceType]; !ok {
		r.byType[reg.ServiceType] = make(map[string]struct{})
	}
	r.byType[reg.ServiceType][reg.ServiceID] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("service registered",
		"service_id", reg.ServiceID,
		"service_type", reg.ServiceType,
		"replaced", replaced)
	r.notify(RegistryChange{
		Kind:        ChangeRegistered,
		ServiceID:   reg.ServiceID,
		ServiceType: reg.ServiceType,
		Health:      reg.Health,
		Replaced:    replaced,
	})
	return nil
}

// Unregister removes a registration. Removing an unknown id is an error so
// callers notice stale ids.
func (r *Registry) Unregister(serviceID string) error {
	r.mu.Lock()
	reg, ok := r.services[serviceID]
	if !ok {
		r.mu.Unlock()
		return types.NewErrorf(types.SERVICE_NOT_FOUND, "service %s is not registered", serviceID)
	}
	delete(r.services, serviceID)
	r.removeFromTypeLocked(reg.ServiceType, serviceID)
	r.mu.Unlock()

	r.logger.Info("service unregistered", "service_id", serviceID)
	r.notify(RegistryChange{
		Kind:        ChangeUnregistered,
		ServiceID:   serviceID,
		ServiceType: reg.ServiceType,
		Health:      reg.Health,
	})
	return nil
}

// Get returns a copy of the registration for a service id.
func (r *Registry) Get(serviceID string) (ServiceRegistration, error) {
	r.mu.RLock()
	reg, ok := r.services[serviceID]
	r.mu.RUnlock()
	if !ok {
		return ServiceRegistration{}, types.NewErrorf(types.SERVICE_NOT_FOUND, "service %s is not registered", serviceID)
	}
	return *reg, nil
}

// List returns copies of all registrations.
func (r *Registry) List() []ServiceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceRegistration, 0, len(r.services))
	for _, reg := range r.services {
		out = append(out, *reg)
	}
	return out
}

// ListByType returns copies of all registrations sharing a service type.
func (r *Registry) ListByType(serviceType string) []ServiceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids, ok := r.byType[serviceType]
	if !ok {
		return nil
	}
	out := make([]ServiceRegistration, 0, len(ids))
	for id := range ids {
		out = append(out, *r.services[id])
	}
	return out
}

// Health returns the health status of a service.
func (r *Registry) Health(serviceID string) (types.HealthStatus, error) {
	reg, err := r.Get(serviceID)
	if err != nil {
		return types.HealthStatus{}, err
	}
	return reg.Health, nil
}

// SetHealth updates the health status of a registered service.
func (r *Registry) SetHealth(serviceID string, status types.HealthStatus) error {
	r.mu.Lock()
	reg, ok := r.services[serviceID]
	if !ok {
		r.mu.Unlock()
		return types.NewErrorf(types.SERVICE_NOT_FOUND, "service %s is not registered", serviceID)
	}
	reg.Health = status
	serviceType := reg.ServiceType
	r.mu.Unlock()

	r.logger.Debug("service health updated",
		"service_id", serviceID,
		"state", status.State)
	r.notify(RegistryChange{
		Kind:        ChangeHealthUpdated,
		ServiceID:   serviceID,
		ServiceType: serviceType,
		Health:      status,
	})
	return nil
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// Watch subscribes a callback to registry mutations.
func (r *Registry) Watch(fn WatchFunc) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	r.watchers = append(r.watchers, fn)
}

func (r *Registry) notify(change RegistryChange) {
	r.watchMu.RLock()
	watchers := r.watchers
	r.watchMu.RUnlock()
	for _, fn := range watchers {
		fn(change)
	}
}

// removeFromTypeLocked removes a service id from its type index.
// Must be called with mu locked.
func (r *Registry) removeFromTypeLocked(serviceType, serviceID string) {
	ids, ok := r.byType[serviceType]
	if !ok {
		return
	}
	delete(ids, serviceID)
	if len(ids) == 0 {
		delete(r.byType, serviceType)
	}
}
