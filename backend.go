package nodegraph

import (
	"errors"
	"sort"
	"sync"

	"github.com/gogpu/nodegraph/proto"
	"github.com/gogpu/nodegraph/registry"
	"github.com/gogpu/nodegraph/runtime"
)

// Names of the built-in backends.
const (
	BackendCPU = "cpu"
	BackendGPU = "gpu"
)

// ErrBackendNotAvailable is returned when the requested backend is not
// registered.
var ErrBackendNotAvailable = errors.New("nodegraph: backend not available")

// Backend turns a flattened network into a runnable program.
type Backend interface {
	Name() string
	Prepare(reg *registry.Registry, net *proto.Network, cfg Config) (Program, error)
}

// Program is a network ready to run on one backend.
type Program interface {
	// Run evaluates the network. The CPU backend takes one value per
	// network input; both backends accept a single slice for networks with
	// one input and return a slice of the same length.
	Run(inputs ...runtime.Any) (runtime.Any, error)
	Close()
}

// BackendFactory creates a new backend instance.
type BackendFactory func() Backend

var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendGPU, BackendCPU}
)

func init() {
	RegisterBackend(BackendCPU, func() Backend { return cpuBackend{} })
	RegisterBackend(BackendGPU, func() Backend { return &gpuBackend{} })
}

// RegisterBackend registers a backend factory with the given name,
// replacing any backend already registered under it.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// UnregisterBackend removes a backend from the registry.
func UnregisterBackend(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// AvailableBackends returns the registered backend names, sorted.
func AvailableBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBackendRegistered checks if a backend with the given name is registered.
func IsBackendRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// GetBackend returns a backend instance by name, or nil.
func GetBackend(name string) Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := backends[name]
	if !ok {
		return nil
	}
	return factory()
}

// DefaultBackend returns the best available backend based on priority,
// then any registered backend. Returns nil if none is registered.
func DefaultBackend() Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, name := range backendPriority {
		if factory, ok := backends[name]; ok {
			if b := factory(); b != nil {
				return b
			}
		}
	}
	for _, name := range sortedKeys(backends) {
		if b := backends[name](); b != nil {
			return b
		}
	}
	return nil
}

func sortedKeys(m map[string]BackendFactory) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
