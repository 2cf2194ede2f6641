// Package fixture supplies benchmark parameters from providers registered
// per directory, walking from a benchmark's source directory up to a root.
package fixture

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/mlbench/mlbench/bench"
)

// Provider computes the value of one fixture. Inputs name other fixtures of
// the same directory whose values are passed to Fn.
type Provider struct {
	Name   string
	Inputs []string
	Fn     func(ctx context.Context, inputs bench.Params) (any, error)
}

// Module is the set of providers registered for one directory.
type Module struct {
	Dir string

	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// Lookup returns the provider named name.
func (m *Module) Lookup(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	return p, ok
}

// Names returns the provider names in registration order.
func (m *Module) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Registry maps directories to fixture modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]*Module{}}
}

// Default is the registry used by the package-level Provide.
var Default = NewRegistry()

// Provide registers p in the Default registry for the caller's directory.
func Provide(p Provider) error {
	return Default.ProvideIn(callerDir(1), p)
}

// Provide registers p for the directory of the calling source file.
func (r *Registry) Provide(p Provider) error {
	return r.ProvideIn(callerDir(1), p)
}

// ProvideIn registers p for dir. Registering the same name twice in one
// directory is an error.
func (r *Registry) ProvideIn(dir string, p Provider) error {
	if p.Name == "" || p.Fn == nil {
		return fmt.Errorf("fixture provider in %s: name and function are required", dir)
	}
	dir = filepath.Clean(dir)

	r.mu.Lock()
	mod, ok := r.modules[dir]
	if !ok {
		mod = &Module{Dir: dir, providers: map[string]Provider{}}
		r.modules[dir] = mod
	}
	r.mu.Unlock()

	mod.mu.Lock()
	defer mod.mu.Unlock()
	if _, dup := mod.providers[p.Name]; dup {
		return fmt.Errorf("fixture %q already provided in %s", p.Name, dir)
	}
	mod.providers[p.Name] = p
	mod.order = append(mod.order, p.Name)
	return nil
}

// Module returns the module registered for dir, or nil.
func (r *Registry) Module(dir string) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[filepath.Clean(dir)]
}

func callerDir(skip int) string {
	_, file, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return "."
	}
	return filepath.Dir(file)
}
