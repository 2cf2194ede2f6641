package record

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// DefaultSep joins nested context keys when flattening.
const DefaultSep = "."

// Provider supplies context values describing the environment of a run.
type Provider interface {
	Provide(ctx context.Context) (map[string]any, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (map[string]any, error)

// Provide implements Provider.
func (f ProviderFunc) Provide(ctx context.Context) (map[string]any, error) { return f(ctx) }

// Pairs returns a provider of fixed key/value pairs. Keys may be dotted.
func Pairs(kv ...any) Provider {
	m := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return Static(m)
}

// Static returns a provider of a fixed mapping. Dotted keys are expanded
// into nested mappings.
func Static(m map[string]any) Provider {
	return ProviderFunc(func(context.Context) (map[string]any, error) {
		return Unflatten(m, DefaultSep), nil
	})
}

// Context is nested key/value metadata attached to a record.
type Context map[string]any

// MakeContext builds a context from a possibly flat mapping.
func MakeContext(m map[string]any) Context {
	return Context(Unflatten(m, DefaultSep))
}

// ContextConflictError reports a key supplied twice with different values.
type ContextConflictError struct {
	Key string
}

func (e *ContextConflictError) Error() string {
	return fmt.Sprintf("got multiple values for context key %q", e.Key)
}

// Add merges the values of p. Unless replace is set, a key that already
// holds a different value is a ContextConflictError and c is unchanged.
func (c Context) Add(ctx context.Context, p Provider, replace bool) error {
	vals, err := p.Provide(ctx)
	if err != nil {
		return fmt.Errorf("context provider %T: %w", p, err)
	}
	return c.Update(Context(Unflatten(vals, DefaultSep)), replace)
}

// Update merges other into c, recursing into nested mappings. Unless
// replace is set, a key holding a value on one side and a nested mapping on
// the other is a conflict too.
func (c Context) Update(other Context, replace bool) error {
	if !replace {
		if key, ok := conflict(c, other, ""); ok {
			return &ContextConflictError{Key: key}
		}
	}
	deepMerge(c, other)
	return nil
}

// conflict reports the first key, in sorted order, where src disagrees with
// dst.
func conflict(dst, src map[string]any, prefix string) (string, bool) {
	for _, k := range slices.Sorted(maps.Keys(src)) {
		key := k
		if prefix != "" {
			key = prefix + DefaultSep + k
		}
		cur, ok := dst[k]
		if !ok {
			continue
		}
		curMap, curIsMap := asMap(cur)
		newMap, newIsMap := asMap(src[k])
		switch {
		case curIsMap && newIsMap:
			if key, ok := conflict(curMap, newMap, key); ok {
				return key, true
			}
		case curIsMap != newIsMap:
			return key, true
		case !reflect.DeepEqual(cur, src[k]):
			return key, true
		}
	}
	return "", false
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := asMap(v)
		if !ok {
			dst[k] = v
			continue
		}
		cur, ok := asMap(dst[k])
		if !ok {
			cur = map[string]any{}
		}
		deepMerge(cur, sub)
		dst[k] = cur
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Context:
		return m, true
	}
	return nil, false
}

// Flatten returns a single-level mapping with nested keys joined by sep.
func (c Context) Flatten(sep string) map[string]any {
	out := map[string]any{}
	flattenInto(out, "", c, sep)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any, sep string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if sub, ok := asMap(v); ok && len(sub) > 0 {
			flattenInto(out, key, sub, sep)
			continue
		}
		out[key] = v
	}
}

// Unflatten expands top-level keys containing sep into nested mappings.
// Keys of nested mappings are kept as they are.
func Unflatten(m map[string]any, sep string) map[string]any {
	out := map[string]any{}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts := strings.Split(k, sep)
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := asMap(cur[p])
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
		leaf := parts[len(parts)-1]
		if sub, ok := asMap(m[k]); ok {
			nested, _ := asMap(cur[leaf])
			if nested == nil {
				nested = map[string]any{}
			}
			deepMerge(nested, sub)
			cur[leaf] = nested
			continue
		}
		cur[leaf] = m[k]
	}
	return out
}

// Keys returns the flattened keys in sorted order.
func (c Context) Keys(sep string) []string {
	return slices.Sorted(maps.Keys(c.Flatten(sep)))
}

// Get looks up a dotted key.
func (c Context) Get(key string) (any, bool) {
	var cur map[string]any = c
	parts := strings.Split(key, DefaultSep)
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = asMap(v); !ok {
			return nil, false
		}
	}
	return nil, false
}

// Clone returns a deep copy of the nested mappings.
func (c Context) Clone() Context {
	return Context(cloneMap(c))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := asMap(v); ok {
			out[k] = cloneMap(sub)
			continue
		}
		out[k] = v
	}
	return out
}
