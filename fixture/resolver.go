package fixture

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mlbench/mlbench/bench"
)

// Resolver looks up fixture values for benchmark parameters. Values are
// cached per directory and name for the lifetime of the resolver.
type Resolver struct {
	registry *Registry
	root     string
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]any
	group singleflight.Group
}

type cacheKey struct {
	dir  string
	name string
}

// NewResolver creates a resolver over registry that never searches above
// root. An empty root searches up to the filesystem root.
func NewResolver(registry *Registry, root string, logger *slog.Logger) *Resolver {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, root: root, logger: logger, cache: map[cacheKey]any{}}
}

// Resolve returns values for every parameter of bm that has no default and
// is absent from supplied, in interface order.
func (r *Resolver) Resolve(ctx context.Context, bm *bench.Benchmark, supplied bench.Params) (bench.Params, error) {
	iface := bm.Interface()
	var names []string
	for _, name := range iface.Required() {
		if !supplied.Has(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return bench.Params{}, nil
	}
	if bm.Source() == "" {
		return bench.Params{}, &MissingFixtureError{Param: names[0], Benchmark: bm.Name()}
	}

	found := map[string]any{}
	dir := filepath.Dir(bm.Source())
	for {
		if mod := r.registry.Module(dir); mod != nil {
			for _, name := range names {
				if _, done := found[name]; done {
					continue
				}
				if _, ok := mod.Lookup(name); !ok {
					continue
				}
				v, err := r.value(ctx, mod, name)
				if err != nil {
					return bench.Params{}, err
				}
				found[name] = v
			}
		}
		if len(found) == len(names) || dir == r.root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	var out bench.Params
	for _, name := range names {
		v, ok := found[name]
		if !ok {
			return bench.Params{}, &MissingFixtureError{Param: name, Benchmark: bm.Name()}
		}
		out.Set(name, v)
	}
	return out, nil
}

func (r *Resolver) cached(dir, name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache[cacheKey{dir, name}]
	return v, ok
}

// store records v unless another resolution already cached name, keeping
// the first value handed out.
func (r *Resolver) store(dir, name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[cacheKey{dir, name}]; !ok {
		r.cache[cacheKey{dir, name}] = v
	}
}

// value returns the cached value of name in mod, computing it once.
func (r *Resolver) value(ctx context.Context, mod *Module, name string) (any, error) {
	if v, ok := r.cached(mod.Dir, name); ok {
		return v, nil
	}
	v, err, _ := r.group.Do(mod.Dir+"\x00"+name, func() (any, error) {
		if v, ok := r.cached(mod.Dir, name); ok {
			return v, nil
		}
		v, err := r.compute(ctx, mod, name, nil)
		if err != nil {
			return nil, err
		}
		r.store(mod.Dir, name, v)
		r.logger.Debug("resolved fixture", "fixture", name, "dir", mod.Dir)
		return v, nil
	})
	return v, err
}

// compute evaluates name after its inputs, innermost first. Each input is
// stored in the directory cache once computed, so a closure never runs a
// provider twice. Inputs are not single-flighted.
func (r *Resolver) compute(ctx context.Context, mod *Module, name string, path []string) (any, error) {
	if slices.Contains(path, name) {
		return nil, &CyclicFixtureError{Dir: mod.Dir, Cycle: append(slices.Clone(path), name)}
	}
	p, ok := mod.Lookup(name)
	if !ok {
		return nil, &ClosureError{Dir: mod.Dir, Fixture: path[len(path)-1], Input: name}
	}
	path = append(path, name)

	var in bench.Params
	for _, input := range p.Inputs {
		if v, ok := r.cached(mod.Dir, input); ok {
			in.Set(input, v)
			continue
		}
		v, err := r.compute(ctx, mod, input, path)
		if err != nil {
			return nil, err
		}
		r.store(mod.Dir, input, v)
		in.Set(input, v)
	}
	v, err := p.Fn(ctx, in)
	if err != nil {
		return nil, &ProviderError{Dir: mod.Dir, Fixture: name, Err: err}
	}
	return v, nil
}
