package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/particles/internal/logging"
)

// Backend names.
const (
	// BackendWGPU renders through gogpu/wgpu (Vulkan, Metal, DX12).
	BackendWGPU = "wgpu"

	// BackendSim is the in-memory simulated device.
	BackendSim = "sim"

	// BackendAuto selects the best backend that opens successfully.
	BackendAuto = "auto"
)

// Priority order for backend selection (first available wins).
var backendPriority = []string{BackendWGPU, BackendSim}

var registry = gpucontext.NewRegistry[Provider](gpucontext.WithPriority(backendPriority...))

// Register registers a provider factory with the given name.
// This is typically called from init() functions in backend packages.
// If a provider with the same name is already registered, it will be replaced.
func Register(name string, factory func() Provider) {
	registry.Register(name, factory)
}

// Unregister removes a provider from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := registry.Available()
	slices.Sort(names)
	return names
}

// IsRegistered checks if a provider with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns a provider by name.
// Returns nil if the provider is not registered.
func Get(name string) Provider {
	return registry.Get(name)
}

// Default returns the best registered provider based on priority.
// Returns nil if no providers are registered.
func Default() Provider {
	return registry.Best()
}

// MustDefault returns the default provider or panics.
func MustDefault() Provider {
	p := Default()
	if p == nil {
		panic("backend: no backend available")
	}
	return p
}

// Open opens a session on the named backend. With BackendAuto or an
// empty name, providers are tried in priority order and the first one
// that opens wins.
func Open(ctx context.Context, name string, t Target) (*Session, error) {
	if name != "" && name != BackendAuto {
		p := Get(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotAvailable, name, Available())
		}
		return open(ctx, p, t)
	}

	var errs []error
	for _, name := range candidates() {
		p := Get(name)
		if p == nil {
			continue
		}
		s, err := open(ctx, p, t)
		if err == nil {
			return s, nil
		}
		logging.Logger().Warn("backend: open failed, trying next", "backend", name, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

// candidates lists registered names, prioritised ones first.
func candidates() []string {
	var out []string
	for _, name := range backendPriority {
		if IsRegistered(name) {
			out = append(out, name)
		}
	}
	for _, name := range Available() {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func open(ctx context.Context, p Provider, t Target) (*Session, error) {
	s, err := p.Open(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", p.Name(), err)
	}
	if s.Backend == "" {
		s.Backend = p.Name()
	}
	logging.Logger().Info("backend: opened", "backend", s.Backend)
	return s, nil
}
