package bench

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"
)

// Family is the ordered set of benchmarks produced from one function by
// Parametrize or Product.
type Family []*Benchmark

// Names returns the member names in order.
func (f Family) Names() []string {
	out := make([]string, len(f))
	for i, bm := range f {
		out[i] = bm.Name()
	}
	return out
}

// Axis is one dimension of a Product.
type Axis struct {
	Name   string
	Values iter.Seq[any]
}

// Over builds an Axis from a list of values.
func Over(name string, values ...any) Axis {
	return Axis{Name: name, Values: slices.Values(values)}
}

// Cases is a convenience to pass a fixed list of parameter sets to
// Parametrize.
func Cases(ps ...Params) iter.Seq[Params] {
	return slices.Values(ps)
}

// Parametrize creates one benchmark per parameter set yielded by seq. The
// sequence is consumed exactly once. Equal parameter sets are rejected
// unless AllowDuplicates is given.
func Parametrize(fn Func, seq iter.Seq[Params], opts ...Option) (Family, error) {
	o := buildOptions(opts, 1)
	if seq == nil {
		return nil, &DefinitionError{Benchmark: fn.Name, Reason: "nil parameter sequence"}
	}
	return expand(fn, slices.Collect(seq), o)
}

// Product creates one benchmark per element of the cartesian product of
// axes, with the last axis varying fastest. Each axis is consumed exactly
// once.
func Product(fn Func, axes []Axis, opts ...Option) (Family, error) {
	o := buildOptions(opts, 1)

	names := make([]string, len(axes))
	values := make([][]any, len(axes))
	for i, ax := range axes {
		if slices.Contains(names[:i], ax.Name) {
			return nil, &DefinitionError{Benchmark: fn.Name, Reason: fmt.Sprintf("axis %q given twice", ax.Name)}
		}
		if ax.Values == nil {
			return nil, &DefinitionError{Benchmark: fn.Name, Reason: fmt.Sprintf("axis %q has no values", ax.Name)}
		}
		names[i] = ax.Name
		values[i] = slices.Collect(ax.Values)
	}

	var cases []Params
	for combo := range cartesian(values) {
		var p Params
		for i, v := range combo {
			p.Set(names[i], v)
		}
		cases = append(cases, p)
	}
	return expand(fn, cases, o)
}

// cartesian yields index-aligned combinations, last dimension fastest.
// With no dimensions it yields a single empty combination.
func cartesian(dims [][]any) iter.Seq[[]any] {
	return func(yield func([]any) bool) {
		for _, d := range dims {
			if len(d) == 0 {
				return
			}
		}
		idx := make([]int, len(dims))
		for {
			combo := make([]any, len(dims))
			for i, d := range dims {
				combo[i] = d[idx[i]]
			}
			if !yield(combo) {
				return
			}
			i := len(dims) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(dims[i]) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

func expand(fn Func, cases []Params, o options) (Family, error) {
	family := make(Family, 0, len(cases))
	for i, p := range cases {
		for j := range i {
			if !cases[j].Equal(p) {
				continue
			}
			if !o.allowDuplicates {
				return nil, &DuplicateParamsError{Func: fn.Name, Params: p, Index: i}
			}
			slog.Warn("duplicate parameter set in family", "func", fn.Name, "index", i, "params", p.String())
			break
		}

		member := o
		member.params = o.params.Merge(p)
		bm, err := newBenchmark(fn, member)
		if err != nil {
			return nil, err
		}
		family = append(family, bm)
	}
	return family, nil
}
