package bench

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
)

// Binding is one named entry of a Namespace: either a single benchmark or a
// family. Exactly one of Single and Family is set.
type Binding struct {
	Name   string
	Single *Benchmark
	Family Family
}

// Benchmarks flattens the binding.
func (b Binding) Benchmarks() []*Benchmark {
	if b.Single != nil {
		return []*Benchmark{b.Single}
	}
	return slices.Clone(b.Family)
}

// Namespace is an ordered registry of bindings grouped by the source file
// that declared them. Benchmark packages register into a namespace from
// init functions or package-level variables.
type Namespace struct {
	name string

	mu       sync.RWMutex
	files    []string
	bindings map[string][]Binding
}

// NewNamespace creates an empty namespace.
func NewNamespace(name string) *Namespace {
	return &Namespace{name: name, bindings: map[string][]Binding{}}
}

// Default is the namespace used by the package-level Register functions.
var Default = NewNamespace("default")

// Register adds bm to the Default namespace.
func Register(name string, bm *Benchmark) *Benchmark {
	Default.Register(name, bm)
	return bm
}

// RegisterFamily adds f to the Default namespace.
func RegisterFamily(name string, f Family) Family {
	Default.RegisterFamily(name, f)
	return f
}

// Name returns the namespace name.
func (ns *Namespace) Name() string { return ns.name }

// Add appends b under file.
func (ns *Namespace) Add(file string, b Binding) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.bindings[file]; !ok {
		ns.files = append(ns.files, file)
	}
	ns.bindings[file] = append(ns.bindings[file], b)
}

// Register adds bm under its source file.
func (ns *Namespace) Register(name string, bm *Benchmark) {
	ns.Add(bm.Source(), Binding{Name: name, Single: bm})
}

// RegisterFamily adds f under the source file of its first member, or the
// caller's file when f is empty.
func (ns *Namespace) RegisterFamily(name string, f Family) {
	file := callerFile(1)
	if len(f) > 0 {
		file = f[0].Source()
	}
	ns.Add(file, Binding{Name: name, Family: f})
}

// Files returns the registered source files in registration order.
func (ns *Namespace) Files() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return slices.Clone(ns.files)
}

// Bindings returns the bindings declared in file.
func (ns *Namespace) Bindings(file string) []Binding {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return slices.Clone(ns.bindings[file])
}

// All returns every binding, grouped by file in registration order.
func (ns *Namespace) All() []Binding {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	var out []Binding
	for _, f := range ns.files {
		out = append(out, ns.bindings[f]...)
	}
	return out
}

// Load resolves a collection target. The target is the namespace name, a
// registered source file, or a directory containing registered files (not
// recursive; files in sorted order).
func (ns *Namespace) Load(target string) ([]Binding, error) {
	if target == ns.name {
		return ns.All(), nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, &DiscoveryError{Target: target, Err: err}
	}
	candidates := []string{filepath.Clean(target), abs}

	ns.mu.RLock()
	defer ns.mu.RUnlock()

	for _, c := range candidates {
		if bs, ok := ns.bindings[c]; ok {
			return slices.Clone(bs), nil
		}
	}
	var files []string
	for _, f := range ns.files {
		if slices.Contains(candidates, filepath.Dir(f)) {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, &DiscoveryError{Target: target}
	}
	slices.Sort(files)
	var out []Binding
	for _, f := range files {
		out = append(out, ns.bindings[f]...)
	}
	return out, nil
}

func (ns *Namespace) String() string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return fmt.Sprintf("Namespace(%s, %d files)", ns.name, len(ns.files))
}
