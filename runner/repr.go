package runner

import (
	"fmt"
	"reflect"

	"github.com/mlbench/mlbench/bench"
)

// ReprHook renders a parameter value of a specific type for a Result.
type ReprHook func(v any) any

// compress renders params into values that serialize cleanly. Scalars are
// kept, slices and string-keyed maps are compressed element-wise, anything
// else becomes its fmt representation unless a hook handles its type.
func (r *Runner) compress(p bench.Params) map[string]any {
	out := make(map[string]any, p.Len())
	for k, v := range p.All() {
		out[k] = r.repr(v)
	}
	return out
}

func (r *Runner) repr(v any) any {
	if v == nil {
		return nil
	}
	if hook, ok := r.reprHooks[reflect.TypeOf(v)]; ok {
		return hook(v)
	}
	if p, ok := v.(bench.Params); ok {
		return r.compress(p)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String()
		}
		return v
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = r.repr(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = r.repr(iter.Value().Interface())
		}
		return out
	}
	return fmt.Sprintf("%v", v)
}
