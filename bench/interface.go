package bench

import (
	"context"
	"fmt"
	"reflect"
)

type noDefault struct{}

func (noDefault) String() string { return "<no default>" }

// NoDefault marks a parameter that has no default value.
var NoDefault any = noDefault{}

// HasDefault reports whether v is an actual default rather than NoDefault.
// A nil v is a nil default.
func HasDefault(v any) bool {
	_, none := v.(noDefault)
	return !none
}

// Var declares one parameter of a benchmark function. A nil Type means the
// parameter is unannotated and accepts any value. A required parameter has
// Default set to NoDefault, as Arg and Untyped do; a nil Default is a nil
// default value.
type Var struct {
	Name    string
	Type    reflect.Type
	Default any
}

// Arg declares a required parameter of type T.
func Arg[T any](name string) Var {
	return Var{Name: name, Type: reflect.TypeFor[T](), Default: NoDefault}
}

// ArgDefault declares a parameter of type T with a default value, which may
// be nil for nilable T.
func ArgDefault[T any](name string, def T) Var {
	return Var{Name: name, Type: reflect.TypeFor[T](), Default: def}
}

// Untyped declares a required parameter without a type annotation.
func Untyped(name string) Var {
	return Var{Name: name, Default: NoDefault}
}

// Func is a benchmark function together with its declared parameters.
type Func struct {
	Name    string
	Doc     string
	Params  []Var
	Returns reflect.Type
	Call    func(ctx context.Context, params Params) (any, error)
}

// Interface describes the parameters of a Func. Names, Types, Defaults and
// Vars are index-aligned.
type Interface struct {
	Func     string
	Names    []string
	Types    []reflect.Type
	Defaults []any
	Vars     []Var
	Returns  reflect.Type
}

// Len returns the number of parameters.
func (i Interface) Len() int { return len(i.Names) }

// Index returns the position of name or -1.
func (i Interface) Index(name string) int {
	for n, v := range i.Names {
		if v == name {
			return n
		}
	}
	return -1
}

// Default returns the default of name, if it has one.
func (i Interface) Default(name string) (any, bool) {
	n := i.Index(name)
	if n < 0 || !HasDefault(i.Defaults[n]) {
		return nil, false
	}
	return i.Defaults[n], true
}

// Type returns the declared type of name; nil for unannotated parameters.
func (i Interface) Type(name string) reflect.Type {
	n := i.Index(name)
	if n < 0 {
		return nil
	}
	return i.Types[n]
}

// Required returns the names without a default, in declaration order.
func (i Interface) Required() []string {
	var out []string
	for n, name := range i.Names {
		if !HasDefault(i.Defaults[n]) {
			out = append(out, name)
		}
	}
	return out
}

// InterfaceOf extracts the interface of fn. A value in overrides replaces the
// declared default of the parameter with the same name; overrides never add
// or remove parameters.
func InterfaceOf(fn Func, overrides Params) (Interface, error) {
	if fn.Name == "" {
		return Interface{}, &IntrospectionError{Reason: "function has no name"}
	}
	if fn.Call == nil {
		return Interface{}, &IntrospectionError{Func: fn.Name, Reason: "function has no body"}
	}

	iface := Interface{
		Func:     fn.Name,
		Names:    make([]string, 0, len(fn.Params)),
		Types:    make([]reflect.Type, 0, len(fn.Params)),
		Defaults: make([]any, 0, len(fn.Params)),
		Vars:     make([]Var, 0, len(fn.Params)),
		Returns:  fn.Returns,
	}
	seen := make(map[string]bool, len(fn.Params))
	for _, v := range fn.Params {
		if v.Name == "" {
			return Interface{}, &IntrospectionError{Func: fn.Name, Reason: "parameter without a name"}
		}
		if seen[v.Name] {
			return Interface{}, &IntrospectionError{Func: fn.Name, Reason: fmt.Sprintf("duplicate parameter %q", v.Name)}
		}
		seen[v.Name] = true

		def := v.Default
		if !HasDefault(def) {
			def = NoDefault
		} else if !Assignable(def, v.Type) {
			return Interface{}, &IntrospectionError{
				Func:   fn.Name,
				Reason: fmt.Sprintf("default %v of parameter %q is %T, not %s", def, v.Name, def, v.Type),
			}
		}
		if o, ok := overrides.Get(v.Name); ok {
			def = o
		}

		iface.Names = append(iface.Names, v.Name)
		iface.Types = append(iface.Types, v.Type)
		iface.Defaults = append(iface.Defaults, def)
		iface.Vars = append(iface.Vars, Var{Name: v.Name, Type: v.Type, Default: def})
	}
	return iface, nil
}

// Assignable reports whether v can be passed for a parameter of type t.
// A nil type accepts anything.
func Assignable(v any, t reflect.Type) bool {
	if t == nil {
		return true
	}
	if v == nil {
		return nilable(t)
	}
	return reflect.TypeOf(v).AssignableTo(t)
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
