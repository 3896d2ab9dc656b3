package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grokking-vietnam/querybench/pkg/logger"
)

// Registry maps engine ids to registrations and lazily constructed plugin
// instances. It is an explicitly constructed object, not a package global,
// so tests can run isolated registries side by side.
type Registry struct {
	mu            sync.Mutex
	registrations map[ID]Registration
	instances     map[ID]Plugin
	config        Config
	log           *logrus.Entry
}

// NewRegistry builds an empty registry. cfg is handed to every plugin's
// Initialize on first use.
func NewRegistry(cfg Config, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewLogger(false)
	}
	return &Registry{
		registrations: make(map[ID]Registration),
		instances:     make(map[ID]Plugin),
		config:        cfg,
		log:           log.Component("registry"),
	}
}

// Register adds an engine registration after validating its capability
// descriptor. Registering an already-registered id is an error.
func (r *Registry) Register(reg Registration) error {
	if err := validateRegistration(reg); err != nil {
		return fmt.Errorf("invalid registration for %q: %w", reg.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registrations[reg.ID]; exists {
		return fmt.Errorf("engine %q is already registered", reg.ID)
	}
	r.registrations[reg.ID] = reg
	r.log.Debugf("registered engine %s", reg.ID)
	return nil
}

// Unregister disposes any live instance before removing the registration.
func (r *Registry) Unregister(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registrations[id]; !exists {
		return fmt.Errorf("engine %q is not registered", id)
	}
	if instance, ok := r.instances[id]; ok {
		if err := instance.Dispose(); err != nil {
			r.log.Warnf("dispose of engine %s failed: %v", id, err)
		}
		delete(r.instances, id)
	}
	delete(r.registrations, id)
	return nil
}

// Get returns the live plugin for id, constructing and initializing it on
// first use. Construction and initialization failures are wrapped with the
// engine id and nothing is cached.
func (r *Registry) Get(id ID) (Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance, ok := r.instances[id]; ok {
		return instance, nil
	}
	reg, ok := r.registrations[id]
	if !ok {
		return nil, fmt.Errorf("engine %q is not registered", id)
	}

	instance, err := reg.Factory()
	if err != nil {
		return nil, fmt.Errorf("failed to construct engine %q: %w", id, err)
	}
	if err := instance.Initialize(r.config); err != nil {
		return nil, fmt.Errorf("failed to initialize engine %q: %w", id, err)
	}
	r.instances[id] = instance
	r.log.Debugf("instantiated engine %s", id)
	return instance, nil
}

// IsRegistered reports whether id has a registration.
func (r *Registry) IsRegistered(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registrations[id]
	return ok
}

// Registered returns all registrations sorted by id.
func (r *Registry) Registered() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByCapability scans registrations for engines whose capability flag
// matches. Linear scan; the engine count is small.
func (r *Registry) FindByCapability(match func(Capabilities) bool) []ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ID
	for id, reg := range r.registrations {
		if match(reg.Capabilities) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithFeatures returns the engines advertising every named feature.
// Recognized names: transactions, streaming, ssl, pooling,
// concurrent-queries. Unknown names match nothing.
func (r *Registry) WithFeatures(features ...string) []ID {
	return r.FindByCapability(func(caps Capabilities) bool {
		for _, feature := range features {
			switch strings.ToLower(strings.TrimSpace(feature)) {
			case "transactions":
				if !caps.SupportsTransactions {
					return false
				}
			case "streaming":
				if !caps.SupportsStreaming {
					return false
				}
			case "ssl":
				if !caps.SupportsSSL {
					return false
				}
			case "pooling":
				if !caps.SupportsPooling {
					return false
				}
			case "concurrent-queries":
				if !caps.SupportsConcurrentQuery {
					return false
				}
			default:
				return false
			}
		}
		return true
	})
}

// DisposeAll disposes every live instance concurrently. Individual disposal
// failures are logged and swallowed so one failing engine cannot block the
// shutdown of the others.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	instances := make(map[ID]Plugin, len(r.instances))
	for id, instance := range r.instances {
		instances[id] = instance
	}
	r.instances = make(map[ID]Plugin)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, instance := range instances {
		wg.Add(1)
		go func(id ID, p Plugin) {
			defer wg.Done()
			if err := p.Dispose(); err != nil {
				r.log.Warnf("dispose of engine %s failed: %v", id, err)
			}
		}(id, instance)
	}
	wg.Wait()
}

func validateRegistration(reg Registration) error {
	if !reg.ID.Valid() {
		return fmt.Errorf("unknown engine id %q", reg.ID)
	}
	if reg.Factory == nil {
		return fmt.Errorf("factory is required")
	}
	if reg.Capabilities.SupportedAuthMethods == nil {
		return fmt.Errorf("supported auth methods list is required")
	}
	if reg.Capabilities.MaxConnections < 0 {
		return fmt.Errorf("max connections must not be negative")
	}
	if reg.Capabilities.SupportsPooling && reg.Capabilities.MaxConnections == 0 {
		return fmt.Errorf("pooling engines must declare max connections")
	}
	return nil
}
