// Package bench defines benchmarks: metric functions bound to fixed
// parameters, tags and lifecycle hooks, and the families produced by
// parametrizing them.
package bench

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
)

// State describes a benchmark's position within its family. It is handed to
// setUp and tearDown hooks.
type State struct {
	Name        string
	Family      string
	FamilySize  int
	FamilyIndex int
}

// Hook runs before or after a benchmark with its effective parameters.
type Hook func(ctx context.Context, state State, params Params) error

// Benchmark is a function bound to fixed parameters. It is immutable once
// constructed.
type Benchmark struct {
	fn       Func
	name     string
	params   Params
	setUp    Hook
	tearDown Hook
	tags     []string
	iface    Interface
	source   string
}

// Option configures a benchmark or family under construction.
type Option func(*options)

type options struct {
	name            string
	params          Params
	setUp           Hook
	tearDown        Hook
	tags            []string
	source          string
	allowDuplicates bool
}

// WithName overrides the generated benchmark name. In a family every member
// receives the same name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithParams binds fixed parameter values.
func WithParams(p Params) Option {
	return func(o *options) { o.params = p.Clone() }
}

// WithSetUp registers a hook run before the benchmark function.
func WithSetUp(h Hook) Option {
	return func(o *options) { o.setUp = h }
}

// WithTearDown registers a hook run after the benchmark function, even when
// the function fails.
func WithTearDown(h Hook) Option {
	return func(o *options) { o.tearDown = h }
}

// WithTags attaches tags used for filtering at collection time.
func WithTags(tags ...string) Option {
	return func(o *options) { o.tags = append(o.tags, tags...) }
}

// WithSource sets the file the benchmark is considered to be defined in.
// By default it is the file of the caller.
func WithSource(file string) Option {
	return func(o *options) { o.source = file }
}

// AllowDuplicates lets a parametrization contain equal parameter sets.
// Each duplicate is kept and logged.
func AllowDuplicates() Option {
	return func(o *options) { o.allowDuplicates = true }
}

func buildOptions(opts []Option, callerSkip int) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.source == "" {
		o.source = callerFile(callerSkip + 1)
	}
	return o
}

func callerFile(skip int) string {
	_, file, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return file
}

// New binds fn to the given options.
func New(fn Func, opts ...Option) (*Benchmark, error) {
	return newBenchmark(fn, buildOptions(opts, 1))
}

// MustNew is like New but panics on error. It simplifies package-level
// benchmark declarations.
func MustNew(fn Func, opts ...Option) *Benchmark {
	bm, err := newBenchmark(fn, buildOptions(opts, 1))
	if err != nil {
		panic(err)
	}
	return bm
}

func newBenchmark(fn Func, o options) (*Benchmark, error) {
	iface, err := InterfaceOf(fn, o.params)
	if err != nil {
		return nil, err
	}
	name := o.name
	if name == "" {
		name = defaultName(fn.Name, o.params)
	}
	for k := range o.params.All() {
		if iface.Index(k) < 0 {
			return nil, &DefinitionError{
				Benchmark: name,
				Reason:    fmt.Sprintf("parameter %q is not accepted by %s", k, fn.Name),
			}
		}
	}
	return &Benchmark{
		fn:       fn,
		name:     name,
		params:   o.params.Clone(),
		setUp:    o.setUp,
		tearDown: o.tearDown,
		tags:     slices.Clone(o.tags),
		iface:    iface,
		source:   o.source,
	}, nil
}

// defaultName is fn, or fn_k1=v1_k2=v2 for bound parameters.
func defaultName(fn string, p Params) string {
	if p.Len() == 0 {
		return fn
	}
	var b strings.Builder
	b.WriteString(fn)
	for k, v := range p.All() {
		fmt.Fprintf(&b, "_%s=%v", k, v)
	}
	return b.String()
}

// Name returns the display name.
func (b *Benchmark) Name() string { return b.name }

// Func returns the underlying function.
func (b *Benchmark) Func() Func { return b.fn }

// Params returns a copy of the fixed parameters.
func (b *Benchmark) Params() Params { return b.params.Clone() }

// Tags returns a copy of the tags.
func (b *Benchmark) Tags() []string { return slices.Clone(b.tags) }

// Interface returns the parameter interface with fixed values as defaults.
func (b *Benchmark) Interface() Interface { return b.iface }

// Source returns the file the benchmark was defined in.
func (b *Benchmark) Source() string { return b.source }

// HasTags reports whether every tag in tags is attached to b.
func (b *Benchmark) HasTags(tags ...string) bool {
	for _, t := range tags {
		if !slices.Contains(b.tags, t) {
			return false
		}
	}
	return true
}

// SetUp runs the setUp hook, if any.
func (b *Benchmark) SetUp(ctx context.Context, state State, params Params) error {
	if b.setUp == nil {
		return nil
	}
	return b.setUp(ctx, state, params)
}

// TearDown runs the tearDown hook, if any.
func (b *Benchmark) TearDown(ctx context.Context, state State, params Params) error {
	if b.tearDown == nil {
		return nil
	}
	return b.tearDown(ctx, state, params)
}

// Call invokes the function with params.
func (b *Benchmark) Call(ctx context.Context, params Params) (any, error) {
	return b.fn.Call(ctx, params)
}

func (b *Benchmark) String() string {
	return fmt.Sprintf("Benchmark(%s)", b.name)
}
