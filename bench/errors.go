package bench

import (
	"fmt"
)

// DefinitionError reports a benchmark that cannot be constructed from the
// arguments given.
type DefinitionError struct {
	Benchmark string
	Reason    string
}

func (e *DefinitionError) Error() string {
	if e.Benchmark == "" {
		return "invalid benchmark definition: " + e.Reason
	}
	return fmt.Sprintf("invalid benchmark definition %q: %s", e.Benchmark, e.Reason)
}

// DuplicateParamsError reports a parametrization that yields the same
// parameter set more than once.
type DuplicateParamsError struct {
	Func   string
	Params Params
	Index  int
}

func (e *DuplicateParamsError) Error() string {
	return fmt.Sprintf("duplicate parameters for %s at position %d: {%s}", e.Func, e.Index, e.Params)
}

// As lets errors.As match a DuplicateParamsError as a DefinitionError.
func (e *DuplicateParamsError) As(target any) bool {
	if t, ok := target.(**DefinitionError); ok {
		*t = &DefinitionError{Benchmark: e.Func, Reason: e.Error()}
		return true
	}
	return false
}

// IntrospectionError reports a function whose interface cannot be extracted.
type IntrospectionError struct {
	Func   string
	Reason string
}

func (e *IntrospectionError) Error() string {
	if e.Func == "" {
		return "cannot introspect function: " + e.Reason
	}
	return fmt.Sprintf("cannot introspect function %q: %s", e.Func, e.Reason)
}

// DiscoveryError reports a collection target that does not name a known
// source file, directory or namespace.
type DiscoveryError struct {
	Target string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot collect benchmarks from %q: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("cannot collect benchmarks from %q: not a registered file, directory or namespace", e.Target)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
