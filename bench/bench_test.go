package bench

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func addFunc() Func {
	return Func{
		Name:    "add",
		Doc:     "Adds two integers.",
		Params:  []Var{Arg[int]("a"), Arg[int]("b")},
		Returns: reflect.TypeFor[int](),
		Call: func(_ context.Context, p Params) (any, error) {
			a, err := Get[int](p, "a")
			if err != nil {
				return nil, err
			}
			b, err := Get[int](p, "b")
			if err != nil {
				return nil, err
			}
			return a + b, nil
		},
	}
}

func TestInterfaceNilDefault(t *testing.T) {
	fn := Func{
		Name: "score",
		Params: []Var{
			ArgDefault[*int]("limit", nil),
			ArgDefault[error]("fallback", nil),
			Arg[string]("model"),
		},
		Call: func(context.Context, Params) (any, error) { return nil, nil },
	}
	iface, err := InterfaceOf(fn, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"model"}, iface.Required()); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
	if d, ok := iface.Default("fallback"); !ok || d != nil {
		t.Errorf("expected nil default, got %v, %v", d, ok)
	}

	fn.Params = []Var{{Name: "n", Type: reflect.TypeFor[int]()}}
	var ie *IntrospectionError
	if _, err := InterfaceOf(fn, Params{}); !errors.As(err, &ie) {
		t.Errorf("expected IntrospectionError for nil int default, got %v", err)
	}
}

func TestInterfaceOf(t *testing.T) {
	fn := Func{
		Name: "accuracy",
		Params: []Var{
			Arg[string]("model"),
			ArgDefault("threshold", 0.5),
			Untyped("data"),
		},
		Call: func(context.Context, Params) (any, error) { return nil, nil },
	}

	iface, err := InterfaceOf(fn, P("model", "resnet"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iface.Len() != 3 || len(iface.Types) != 3 || len(iface.Defaults) != 3 || len(iface.Vars) != 3 {
		t.Fatalf("expected aligned sequences of length 3, got %+v", iface)
	}
	if diff := cmp.Diff([]string{"model", "threshold", "data"}, iface.Names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if iface.Defaults[0] != "resnet" {
		t.Errorf("expected override as default, got %v", iface.Defaults[0])
	}
	if iface.Defaults[1] != 0.5 {
		t.Errorf("expected declared default, got %v", iface.Defaults[1])
	}
	if HasDefault(iface.Defaults[2]) {
		t.Errorf("expected no default for data, got %v", iface.Defaults[2])
	}
	if iface.Types[2] != nil {
		t.Errorf("expected unannotated type, got %v", iface.Types[2])
	}
	if diff := cmp.Diff([]string{"data"}, iface.Required()); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestInterfaceOfErrors(t *testing.T) {
	noop := func(context.Context, Params) (any, error) { return nil, nil }
	tests := []struct {
		name string
		fn   Func
	}{
		{"no name", Func{Call: noop}},
		{"no body", Func{Name: "f"}},
		{"unnamed param", Func{Name: "f", Call: noop, Params: []Var{{Type: reflect.TypeFor[int]()}}}},
		{"duplicate param", Func{Name: "f", Call: noop, Params: []Var{Arg[int]("a"), Arg[int]("a")}}},
		{"bad default", Func{Name: "f", Call: noop, Params: []Var{{Name: "a", Type: reflect.TypeFor[int](), Default: "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InterfaceOf(tt.fn, Params{})
			var ie *IntrospectionError
			if !errors.As(err, &ie) {
				t.Fatalf("expected IntrospectionError, got %v", err)
			}
		})
	}
}

func TestNewNaming(t *testing.T) {
	bm, err := New(addFunc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bm.Name() != "add" {
		t.Errorf("expected name add, got %q", bm.Name())
	}

	bm, err = New(addFunc(), WithParams(P("a", 1, "b", 2)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bm.Name() != "add_a=1_b=2" {
		t.Errorf("expected name add_a=1_b=2, got %q", bm.Name())
	}
	if d, _ := bm.Interface().Default("a"); d != 1 {
		t.Errorf("expected fixed value as interface default, got %v", d)
	}

	bm, err = New(addFunc(), WithName("sum"), WithParams(P("a", 1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bm.Name() != "sum" {
		t.Errorf("expected explicit name, got %q", bm.Name())
	}
}

func TestNewSourceIsCaller(t *testing.T) {
	bm := MustNew(addFunc())
	if filepath.Base(bm.Source()) != "bench_test.go" {
		t.Errorf("expected source in bench_test.go, got %q", bm.Source())
	}
}

func TestNewUnknownParam(t *testing.T) {
	_, err := New(addFunc(), WithParams(P("c", 3)))
	var de *DefinitionError
	if !errors.As(err, &de) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
}

func TestHasTags(t *testing.T) {
	bm := MustNew(addFunc(), WithTags("fast", "math"))
	tests := []struct {
		tags []string
		want bool
	}{
		{nil, true},
		{[]string{"fast"}, true},
		{[]string{"math", "fast"}, true},
		{[]string{"fast", "slow"}, false},
	}
	for _, tt := range tests {
		if got := bm.HasTags(tt.tags...); got != tt.want {
			t.Errorf("HasTags(%v) = %v, want %v", tt.tags, got, tt.want)
		}
	}
}

func TestParametrize(t *testing.T) {
	fam, err := Parametrize(addFunc(), Cases(P("a", 1, "b", 2), P("a", 3, "b", 4), P("a", 5, "b", 6)), WithTags("arith"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"add_a=1_b=2", "add_a=3_b=4", "add_a=5_b=6"}
	if diff := cmp.Diff(want, fam.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	for _, bm := range fam {
		if !bm.HasTags("arith") {
			t.Errorf("%s: tags not shared", bm.Name())
		}
	}
}

func TestParametrizeConsumesOnce(t *testing.T) {
	calls := 0
	seq := func(yield func(Params) bool) {
		calls++
		for i := range 3 {
			if !yield(P("a", i, "b", i)) {
				return
			}
		}
	}
	fam, err := Parametrize(addFunc(), seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fam) != 3 || calls != 1 {
		t.Errorf("expected 3 members from one pass, got %d members from %d passes", len(fam), calls)
	}
}

func TestParametrizeDuplicates(t *testing.T) {
	cases := Cases(P("a", 1, "b", 2), P("b", 2, "a", 1))

	_, err := Parametrize(addFunc(), cases)
	var dup *DuplicateParamsError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateParamsError, got %v", err)
	}
	if dup.Index != 1 {
		t.Errorf("expected duplicate at index 1, got %d", dup.Index)
	}
	var de *DefinitionError
	if !errors.As(err, &de) {
		t.Errorf("expected duplicate to match DefinitionError")
	}

	fam, err := Parametrize(addFunc(), cases, AllowDuplicates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fam) != 2 {
		t.Errorf("expected both members retained, got %d", len(fam))
	}
}

func TestParametrizeEmptyMapping(t *testing.T) {
	fn := addFunc()
	fn.Params = []Var{ArgDefault("a", 1), ArgDefault("b", 1)}
	fam, err := Parametrize(fn, Cases(Params{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fam) != 1 || fam[0].Name() != "add" {
		t.Errorf("expected one member named add, got %v", fam.Names())
	}
}

func TestProduct(t *testing.T) {
	fam, err := Product(addFunc(), []Axis{Over("a", 1, 2), Over("b", 10, 20, 30)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"add_a=1_b=10", "add_a=1_b=20", "add_a=1_b=30",
		"add_a=2_b=10", "add_a=2_b=20", "add_a=2_b=30",
	}
	if diff := cmp.Diff(want, fam.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestProductEdges(t *testing.T) {
	fam, err := Product(addFunc(), []Axis{Over("a", 1, 2), Over("b")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fam) != 0 {
		t.Errorf("expected empty family for empty axis, got %d", len(fam))
	}

	_, err = Product(addFunc(), []Axis{Over("a", 1), Over("a", 2)})
	var de *DefinitionError
	if !errors.As(err, &de) {
		t.Errorf("expected DefinitionError for repeated axis, got %v", err)
	}

	_, err = Product(addFunc(), []Axis{Over("a", 1, 1)})
	var dup *DuplicateParamsError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateParamsError, got %v", err)
	}
}

func TestNamespaceLoad(t *testing.T) {
	ns := NewNamespace("suite")
	b1 := MustNew(addFunc(), WithSource("/bench/b/z.go"))
	b2 := MustNew(addFunc(), WithName("two"), WithSource("/bench/b/a.go"))
	fam, err := Parametrize(addFunc(), Cases(P("a", 1, "b", 1)), WithSource("/bench/c/x.go"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ns.Register("one", b1)
	ns.Register("two", b2)
	ns.RegisterFamily("fam", fam)

	tests := []struct {
		target string
		want   []string
	}{
		{"suite", []string{"add", "two", "add_a=1_b=1"}},
		{"/bench/b/z.go", []string{"add"}},
		{"/bench/b", []string{"two", "add"}},
		{"/bench/c/", []string{"add_a=1_b=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			bindings, err := ns.Load(tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			for _, b := range bindings {
				for _, bm := range b.Benchmarks() {
					got = append(got, bm.Name())
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err = ns.Load("/bench/none")
	var de *DiscoveryError
	if !errors.As(err, &de) {
		t.Errorf("expected DiscoveryError, got %v", err)
	}
}

func TestParamsOrderAndDecode(t *testing.T) {
	p := P("b", 2, "a", 1)
	p.Set("b", 3)
	if diff := cmp.Diff([]string{"b", "a"}, p.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if p.String() != "b=3_a=1" {
		t.Errorf("unexpected string %q", p.String())
	}

	var cfg struct {
		A int `param:"a"`
		B int `param:"b"`
	}
	if err := p.Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.A != 1 || cfg.B != 3 {
		t.Errorf("unexpected decode result %+v", cfg)
	}

	back, err := ParamsFromStruct(cfg)
	if err != nil {
		t.Fatalf("from struct: %v", err)
	}
	if !back.Equal(P("a", 1, "b", 3)) {
		t.Errorf("unexpected params %v", back)
	}

	data, err := p.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"b":3,"a":1}` {
		t.Errorf("unexpected JSON %s", data)
	}
	var decoded Params
	if err := decoded.UnmarshalJSON([]byte(`{"z": 1, "y": [1.5, "x"]}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff([]string{"z", "y"}, decoded.Keys()); diff != "" {
		t.Errorf("decoded keys mismatch (-want +got):\n%s", diff)
	}
	if v, _ := decoded.Get("z"); v != 1 {
		t.Errorf("expected int 1, got %#v", v)
	}
}
