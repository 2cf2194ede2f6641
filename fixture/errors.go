package fixture

import (
	"fmt"
	"strings"
)

// MissingFixtureError reports a parameter that no value, default or fixture
// could supply.
type MissingFixtureError struct {
	Param     string
	Benchmark string
}

func (e *MissingFixtureError) Error() string {
	return fmt.Sprintf("could not locate fixture %q for benchmark %q", e.Param, e.Benchmark)
}

// CyclicFixtureError reports fixtures that depend on each other.
type CyclicFixtureError struct {
	Dir   string
	Cycle []string
}

func (e *CyclicFixtureError) Error() string {
	return fmt.Sprintf("cyclic fixture dependency in %s: %s", e.Dir, strings.Join(e.Cycle, " -> "))
}

// ClosureError reports a fixture input that its own directory does not
// provide.
type ClosureError struct {
	Dir     string
	Fixture string
	Input   string
}

func (e *ClosureError) Error() string {
	return fmt.Sprintf("fixture %q in %s requires %q, which is not provided there", e.Fixture, e.Dir, e.Input)
}

// ProviderError wraps a failure of a fixture provider function.
type ProviderError struct {
	Dir     string
	Fixture string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("fixture %q in %s: %v", e.Fixture, e.Dir, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
