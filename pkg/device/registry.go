package device

import (
	"fmt"
	"sort"
	"sync"
)

// Factory opens a device. The argument is backend specific, for example a
// device index or a profile path; it may be empty.
type Factory func(arg string) (Device, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under name. It panics on duplicates,
// registration is expected to happen in init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("device: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("device: Register called twice for backend " + name)
	}
	registry[name] = f
}

// Backends returns the sorted names of registered backends.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens a device with the named backend. The returned device logs
// every call at trace level.
func Open(name, arg string) (Device, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrNoSuchBackend, name, Backends())
	}

	d, err := f(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s device: %w", name, err)
	}

	return WithTrace(d), nil
}
