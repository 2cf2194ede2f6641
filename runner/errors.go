package runner

import (
	"fmt"
	"reflect"
)

// MissingArgumentError reports a required parameter that received no value.
type MissingArgumentError struct {
	Benchmark string
	Param     string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("benchmark %q: missing value for required parameter %q", e.Benchmark, e.Param)
}

// ParamTypeError reports a parameter value of the wrong type.
type ParamTypeError struct {
	Benchmark string
	Param     string
	Want      reflect.Type
	Got       reflect.Type
}

func (e *ParamTypeError) Error() string {
	return fmt.Sprintf("benchmark %q: parameter %q has type %v, expected %v", e.Benchmark, e.Param, e.Got, e.Want)
}

// HookError reports a failing setUp or tearDown hook. It aborts the run.
// Cause is the error of the benchmark itself when tearDown follows a failed
// call.
type HookError struct {
	Benchmark string
	Hook      string
	Err       error
	Cause     error
}

func (e *HookError) Error() string {
	msg := fmt.Sprintf("benchmark %q: %s failed: %v", e.Benchmark, e.Hook, e.Err)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (after benchmark error: %v)", e.Cause)
	}
	return msg
}

func (e *HookError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
