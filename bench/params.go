package bench

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// paramTag is the struct tag consulted by Decode and ParamsFromStruct.
const paramTag = "param"

// Params is an insertion-ordered mapping of parameter names to values.
// The zero value is an empty mapping ready to use.
type Params struct {
	keys   []string
	values map[string]any
}

// P builds Params from alternating key/value arguments. It panics if a key is
// not a string or a value is missing, so it is meant for literals.
func P(kv ...any) Params {
	if len(kv)%2 != 0 {
		panic("bench.P: odd number of arguments")
	}
	var p Params
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("bench.P: key %v is not a string", kv[i]))
		}
		p.Set(k, kv[i+1])
	}
	return p
}

// ParamsFromMap builds Params from m with keys in sorted order.
func ParamsFromMap(m map[string]any) Params {
	var p Params
	for _, k := range slices.Sorted(maps.Keys(m)) {
		p.Set(k, m[k])
	}
	return p
}

// ParamsFromStruct converts a struct (or pointer to one) into Params, honoring
// `param` struct tags. Keys come out sorted.
func ParamsFromStruct(v any) (Params, error) {
	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: paramTag,
		Result:  &out,
	})
	if err != nil {
		return Params{}, err
	}
	if err := dec.Decode(v); err != nil {
		return Params{}, fmt.Errorf("decode params from %T: %w", v, err)
	}
	return ParamsFromMap(out), nil
}

// Len returns the number of entries.
func (p Params) Len() int { return len(p.keys) }

// Keys returns the keys in insertion order.
func (p Params) Keys() []string { return slices.Clone(p.keys) }

// Get returns the value stored under key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (p *Params) Set(key string, value any) {
	if p.values == nil {
		p.values = map[string]any{}
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Delete removes key if present.
func (p *Params) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == key })
}

// All iterates over the entries in insertion order.
func (p Params) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range p.keys {
			if !yield(k, p.values[k]) {
				return
			}
		}
	}
}

// Map returns an unordered copy.
func (p Params) Map() map[string]any {
	out := make(map[string]any, len(p.keys))
	maps.Copy(out, p.values)
	return out
}

// Clone returns an independent copy. Values themselves are not copied.
func (p Params) Clone() Params {
	return Params{keys: slices.Clone(p.keys), values: maps.Clone(p.values)}
}

// Merge returns a copy of p overlaid with other. Keys of other that are
// already in p keep p's position.
func (p Params) Merge(other Params) Params {
	out := p.Clone()
	for k, v := range other.All() {
		out.Set(k, v)
	}
	return out
}

// Equal reports whether both mappings hold the same keys with deeply equal
// values. Order is not significant.
func (p Params) Equal(other Params) bool {
	if len(p.keys) != len(other.keys) {
		return false
	}
	for k, v := range p.values {
		ov, ok := other.values[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// String renders the entries as k1=v1_k2=v2.
func (p Params) String() string {
	parts := make([]string, 0, len(p.keys))
	for k, v := range p.All() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, "_")
}

// Decode copies the entries into the struct pointed to by out, honoring
// `param` struct tags.
func (p Params) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          paramTag,
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(p.Map()); err != nil {
		return fmt.Errorf("decode params into %T: %w", out, err)
	}
	return nil
}

// MarshalJSON encodes the entries as a JSON object in insertion order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal param %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("params: expected JSON object, got %v", tok)
	}
	*p = Params{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("params: decode %q: %w", key, err)
		}
		p.Set(key, normalizeNumber(v))
	}
	_, err = dec.Token()
	return err
}

// normalizeNumber turns json.Number into int when integral, float64
// otherwise, recursing into containers.
func normalizeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeNumber(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumber(t[k])
		}
		return t
	}
	return v
}

// Get returns the value under name converted to T.
func Get[T any](p Params, name string) (T, error) {
	var zero T
	v, ok := p.Get(name)
	if !ok {
		return zero, fmt.Errorf("missing parameter %q", name)
	}
	t, ok := v.(T)
	if !ok {
		if v == nil && nilable(reflect.TypeFor[T]()) {
			return zero, nil
		}
		return zero, fmt.Errorf("parameter %q: got %T, want %s", name, v, reflect.TypeFor[T]())
	}
	return t, nil
}
