package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/gpu"
)

// Factory creates a new backend instance. A factory may return nil when
// the backend is compiled out.
type Factory func() Backend

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Selection order; the first backend that opens wins.
	backendPriority = []string{BackendRust, BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in priority order,
// followed by any others alphabetically. Backends whose factory yields
// nil are left out.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for _, name := range ordered() {
		if backends[name]() != nil {
			names = append(names, name)
		}
	}
	return names
}

// ordered returns the registered names, priority first. Callers hold
// registryMu.
func ordered() []string {
	seen := make(map[string]bool, len(backends))
	names := make([]string, 0, len(backends))
	for _, name := range backendPriority {
		if _, ok := backends[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(backends))
	for name := range backends {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := backends[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available backend based on priority.
// Returns nil if no backends are registered.
func Default() Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range ordered() {
		if b := backends[name](); b != nil {
			return b
		}
	}
	return nil
}

// Open initializes a backend and returns it with its device context.
//
// With a name, only that backend is tried. Without one, backends are tried
// in priority order and the first that yields a context wins; the errors
// of the ones skipped are logged and, if none succeeds, joined.
func Open(name string) (Backend, *gpu.Context, error) {
	if name != "" {
		b := Get(name)
		if b == nil {
			return nil, nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
		}
		ctx, err := start(b)
		if err != nil {
			return nil, nil, err
		}
		return b, ctx, nil
	}

	registryMu.RLock()
	names := ordered()
	registryMu.RUnlock()

	var errs []error
	for _, n := range names {
		b := Get(n)
		if b == nil {
			continue
		}
		ctx, err := start(b)
		if err != nil {
			oscuras.Logger().Info("backend: skipped", "backend", n, "err", err)
			errs = append(errs, err)
			continue
		}
		return b, ctx, nil
	}
	if len(errs) == 0 {
		return nil, nil, ErrBackendNotAvailable
	}
	return nil, nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

func start(b Backend) (*gpu.Context, error) {
	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("backend %s: init: %w", b.Name(), err)
	}
	ctx, err := b.Context()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("backend %s: %w", b.Name(), err)
	}
	info := b.Info()
	oscuras.Logger().Info("backend: selected",
		"backend", b.Name(), "adapter", info.Name, "type", info.DeviceType.String())
	return ctx, nil
}
