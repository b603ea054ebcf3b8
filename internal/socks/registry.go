package socks

import (
	"slices"
	"sync"
)

// Constructor builds a parser for a single handshake to address:port.
type Constructor func(cfg Config, address string, port uint16) (Parser, error)

// Registry maps protocol version identifiers to parser constructors.
// Registering a version twice replaces the earlier constructor.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register stores ctor for version, replacing any previous registration.
func (r *Registry) Register(version string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[version] = ctor
}

// Create builds a parser for version.
func (r *Registry) Create(version string, cfg Config, address string, port uint16) (Parser, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[version]
	r.mu.RUnlock()
	if !ok || ctor == nil {
		return nil, newError(KindConfiguration, "no parser registered for version %q", version)
	}
	return ctor(cfg, address, port)
}

// Versions returns the registered version identifiers in sorted order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]string, 0, len(r.ctors))
	for v := range r.ctors {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions
}

var defaultRegistry = NewRegistry()

func init() {
	Register(Version4, NewSOCKS4Parser)
	Register(Version5, NewSOCKS5Parser)
}

// Register adds ctor to the default registry.
func Register(version string, ctor Constructor) {
	defaultRegistry.Register(version, ctor)
}

// New creates a parser from the default registry.
func New(version string, cfg Config, address string, port uint16) (Parser, error) {
	return defaultRegistry.Create(version, cfg, address, port)
}

// DefaultRegistry returns the registry used by Register and New.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
