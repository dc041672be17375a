package store

import (
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a storage driver.
type Config struct {
	// Type is the driver name: "local", "s3", "rclone", etc.
	Type string `json:"type" yaml:"type"`

	// Bucket is the bucket name, root directory or remote the driver
	// operates on.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Options holds driver-specific configuration.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Factory is a function that creates a [Store] from a [Config].
type Factory func(cfg *Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a storage driver available by the provided name.
// This is typically called from the driver package's init() function.
// It panics if called twice with the same name.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("urlfile/store: driver %q already registered", name))
	}
	factories[name] = factory
}

// Drivers returns a sorted list of all registered driver names.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a new [Store] using the registered driver specified in
// cfg.Type.
func Open(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("urlfile/store: config must not be nil")
	}

	mu.RLock()
	factory, ok := factories[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("urlfile/store: unknown driver %q (forgotten import?)", cfg.Type)
	}

	return factory(cfg)
}

// MustOpen is like [Open] but panics on error.
func MustOpen(cfg *Config) Store {
	st, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return st
}
