// Package runner collects benchmarks, prepares their parameters and
// executes them into a record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlbench/mlbench/bench"
	"github.com/mlbench/mlbench/fixture"
	"github.com/mlbench/mlbench/memo"
	"github.com/mlbench/mlbench/record"
)

// Source resolves a collection target into bindings.
type Source interface {
	Load(target string) ([]bench.Binding, error)
}

// Runner collects and runs benchmarks. Collection is guarded by a mutex;
// a single Runner should not run twice concurrently.
type Runner struct {
	source      Source
	cache       *memo.Cache
	fixtures    *fixture.Registry
	fixtureRoot string
	logger      *slog.Logger
	jobs        int
	typecheck   bool
	reprHooks   map[reflect.Type]ReprHook

	mu         sync.Mutex
	benchmarks []*bench.Benchmark
}

// Option configures a Runner.
type Option func(*Runner)

// WithSource sets where Collect looks up targets. Defaults to bench.Default.
func WithSource(s Source) Option {
	return func(r *Runner) { r.source = s }
}

// WithMemoCache sets the cache holding memoized parameter values.
func WithMemoCache(c *memo.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithFixtures enables fixture resolution from reg, searching no higher
// than root. A nil registry disables fixtures.
func WithFixtures(reg *fixture.Registry, root string) Option {
	return func(r *Runner) {
		r.fixtures = reg
		r.fixtureRoot = root
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithJobs sets how many benchmarks may execute concurrently. Values below
// two execute sequentially.
func WithJobs(n int) Option {
	return func(r *Runner) { r.jobs = n }
}

// WithTypecheck toggles checking caller parameters against declared types.
func WithTypecheck(on bool) Option {
	return func(r *Runner) { r.typecheck = on }
}

// WithReprHook renders parameters of type t with fn in results.
func WithReprHook(t reflect.Type, fn ReprHook) Option {
	return func(r *Runner) { r.reprHooks[t] = fn }
}

// New creates a runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		source:    bench.Default,
		fixtures:  fixture.Default,
		logger:    slog.Default(),
		jobs:      1,
		typecheck: true,
		reprHooks: map[reflect.Type]ReprHook{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.cache == nil {
		r.cache = memo.NewCache(memo.WithLogger(r.logger))
	}
	return r
}

// Cache returns the memo cache. Its lifetime is independent of the
// collected benchmarks.
func (r *Runner) Cache() *memo.Cache { return r.cache }

// Collect adds the benchmarks found at target whose tags include every tag
// in tags. Collecting the same target twice registers its benchmarks twice.
func (r *Runner) Collect(target string, tags ...string) error {
	bindings, err := r.source.Load(target)
	if err != nil {
		var de *bench.DiscoveryError
		if errors.As(err, &de) {
			return err
		}
		return &bench.DiscoveryError{Target: target, Err: err}
	}

	var found []*bench.Benchmark
	for _, b := range bindings {
		for _, bm := range b.Benchmarks() {
			if bm.HasTags(tags...) {
				found = append(found, bm)
			}
		}
	}

	r.mu.Lock()
	r.benchmarks = append(r.benchmarks, found...)
	r.mu.Unlock()
	r.logger.Debug("collected benchmarks", "target", target, "count", len(found), "tags", tags)
	return nil
}

// Add registers benchmarks directly, bypassing the source.
func (r *Runner) Add(bms ...*bench.Benchmark) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.benchmarks = append(r.benchmarks, bms...)
}

// Clear empties the benchmark registry. The memo cache is untouched.
func (r *Runner) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.benchmarks = nil
}

// Benchmarks returns the registered benchmarks in registration order.
func (r *Runner) Benchmarks() []*bench.Benchmark {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.benchmarks)
}

// RunOptions are the per-run inputs.
type RunOptions struct {
	// Params supplies values for benchmark parameters. Values fixed at
	// benchmark construction take precedence.
	Params bench.Params
	// Tags filters an implicit collection.
	Tags []string
	// Context providers are evaluated once, before any benchmark runs.
	Context []record.Provider
}

type plan struct {
	bm     *bench.Benchmark
	state  bench.State
	params bench.Params
}

// Run executes the registered benchmarks, collecting from target first if
// none are registered. Benchmark failures are recorded in the results;
// setup errors, hook errors and context conflicts abort the run.
func (r *Runner) Run(ctx context.Context, target string, opts RunOptions) (*record.Record, error) {
	if len(r.Benchmarks()) == 0 && target != "" {
		if err := r.Collect(target, opts.Tags...); err != nil {
			return nil, err
		}
	}
	bms := r.Benchmarks()
	if len(bms) == 0 {
		r.logger.Warn("no benchmarks found", "target", target)
		return record.New(nil, nil), nil
	}

	runCtx := record.Context{}
	for _, p := range opts.Context {
		if err := runCtx.Add(ctx, p, false); err != nil {
			return nil, err
		}
	}

	plans, err := r.prepare(ctx, target, bms, opts.Params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := r.execute(ctx, plans)
	if err != nil {
		return nil, err
	}

	rec := record.New(runCtx, results)
	failed := 0
	for _, res := range results {
		if res.ErrorOccurred {
			failed++
		}
	}
	r.logger.Info("run finished", "run", rec.Run, "benchmarks", len(results), "failed", failed, "elapsed", time.Since(start))
	return rec, nil
}

// prepare validates and binds every benchmark before any of them runs.
func (r *Runner) prepare(ctx context.Context, target string, bms []*bench.Benchmark, params bench.Params) ([]plan, error) {
	sizes := map[string]int{}
	for _, bm := range bms {
		sizes[bm.Func().Name]++
	}
	indices := map[string]int{}

	var resolver *fixture.Resolver
	if r.fixtures != nil {
		resolver = fixture.NewResolver(r.fixtures, r.resolverRoot(target), r.logger)
	}

	used := map[string]bool{}
	plans := make([]plan, 0, len(bms))
	for _, bm := range bms {
		iface := bm.Interface()
		fixed := bm.Params()

		var bound bench.Params
		for _, name := range iface.Names {
			if v, ok := fixed.Get(name); ok {
				bound.Set(name, v)
				continue
			}
			if v, ok := params.Get(name); ok {
				used[name] = true
				if r.typecheck {
					if err := checkType(bm, name, v); err != nil {
						return nil, err
					}
				}
				bound.Set(name, v)
				continue
			}
			if v, ok := iface.Default(name); ok {
				bound.Set(name, v)
			}
		}

		if resolver != nil {
			resolved, err := resolver.Resolve(ctx, bm, bound)
			if err != nil {
				return nil, err
			}
			bound = bound.Merge(resolved)
		}
		for _, name := range iface.Names {
			if !bound.Has(name) {
				return nil, &MissingArgumentError{Benchmark: bm.Name(), Param: name}
			}
		}

		// Restore declaration order after fixtures were merged in.
		var ordered bench.Params
		for _, name := range iface.Names {
			v, _ := bound.Get(name)
			ordered.Set(name, v)
		}

		family := bm.Func().Name
		plans = append(plans, plan{
			bm: bm,
			state: bench.State{
				Name:        bm.Name(),
				Family:      family,
				FamilySize:  sizes[family],
				FamilyIndex: indices[family],
			},
			params: ordered,
		})
		indices[family]++
	}

	for name := range params.All() {
		if !used[name] {
			r.logger.Warn("ignoring parameter not accepted by any benchmark", "param", name)
		}
	}
	return plans, nil
}

func (r *Runner) resolverRoot(target string) string {
	if r.fixtureRoot != "" {
		return r.fixtureRoot
	}
	if fi, err := os.Stat(target); err == nil {
		if fi.IsDir() {
			return target
		}
		return filepath.Dir(target)
	}
	return ""
}

// checkType reports whether v suits the declared type of name. A Lazy value
// is checked by the type it resolves to.
func checkType(bm *bench.Benchmark, name string, v any) error {
	want := bm.Interface().Type(name)
	if bench.Assignable(v, want) {
		return nil
	}
	if lazy, ok := v.(memo.Lazy); ok && (lazy.ResultType() == want || lazy.ResultType().AssignableTo(want)) {
		return nil
	}
	return &ParamTypeError{Benchmark: bm.Name(), Param: name, Want: want, Got: reflect.TypeOf(v)}
}

func (r *Runner) execute(ctx context.Context, plans []plan) ([]record.Result, error) {
	results := make([]record.Result, len(plans))
	if r.jobs < 2 {
		for i, p := range plans {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := r.runOne(ctx, p)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.jobs)
	for i, p := range plans {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.runOne(gctx, p)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runOne executes a single benchmark. Errors returned from runOne abort the
// run; failures of the benchmark function are reported in the Result.
func (r *Runner) runOne(ctx context.Context, p plan) (record.Result, error) {
	bm := p.bm
	log := r.logger.With("benchmark", bm.Name())
	res := record.Result{
		Name:        bm.Name(),
		Function:    bm.Func().Name,
		Description: bm.Func().Doc,
		Date:        time.Now().UTC().Truncate(time.Second),
		Tags:        bm.Tags(),
	}

	params, err := r.dememo(ctx, bm, p.params)
	if err != nil {
		log.Warn("could not resolve memoized parameter", "error", err)
		res.Parameters = r.compress(p.params)
		res.ErrorOccurred = true
		res.ErrorMessage = err.Error()
		return res, nil
	}
	res.Parameters = r.compress(params)

	log.Debug("running benchmark", "family", p.state.Family, "index", p.state.FamilyIndex)
	if err := bm.SetUp(ctx, p.state, params.Clone()); err != nil {
		return res, &HookError{Benchmark: bm.Name(), Hook: "setUp", Err: err}
	}

	start := time.Now()
	value, callErr := call(ctx, bm, params.Clone())
	res.TimeNs = time.Since(start).Nanoseconds()

	if err := bm.TearDown(ctx, p.state, params.Clone()); err != nil {
		return res, &HookError{Benchmark: bm.Name(), Hook: "tearDown", Err: err, Cause: callErr}
	}

	if callErr != nil {
		log.Warn("benchmark failed", "error", callErr)
		res.ErrorOccurred = true
		res.ErrorMessage = callErr.Error()
		return res, nil
	}
	res.Value = value
	return res, nil
}

// dememo resolves Lazy parameters unless the parameter is declared to take
// the Lazy value itself.
func (r *Runner) dememo(ctx context.Context, bm *bench.Benchmark, params bench.Params) (bench.Params, error) {
	iface := bm.Interface()
	out := params.Clone()
	for name, v := range params.All() {
		lazy, ok := v.(memo.Lazy)
		if !ok {
			continue
		}
		if t := iface.Type(name); t != nil && !isAny(t) && reflect.TypeOf(v).AssignableTo(t) {
			continue
		}
		resolved, err := lazy.Resolve(ctx)
		if err != nil {
			return params, fmt.Errorf("parameter %q: %w", name, err)
		}
		out.Set(name, resolved)
	}
	return out, nil
}

func isAny(t reflect.Type) bool {
	return t.Kind() == reflect.Interface && t.NumMethod() == 0
}

func call(ctx context.Context, bm *bench.Benchmark, params bench.Params) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return bm.Call(ctx, params)
}
