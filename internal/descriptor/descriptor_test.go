package descriptor

import (
	"strings"
	"testing"

	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
	"github.com/DeusData/codebase-xref/internal/oracle/oracletest"
)

type fixedLocator map[string]string

func (l fixedLocator) Compute(file string) (moniker.Location, bool) {
	p, ok := l[file]
	if !ok {
		return moniker.Location{}, false
	}
	return moniker.Location{
		Path:    p,
		Package: moniker.PackageInfo{Name: "example.com/app", Version: "v1.0.0", Manager: "gomod"},
	}, true
}

func newBuilder() *Builder {
	return NewBuilder("", fixedLocator{
		"/repo/a.go": "example.com/app",
		"/repo/b.go": "example.com/app",
	})
}

func TestDescriptorString(t *testing.T) {
	tests := []struct {
		d    Descriptor
		want string
	}{
		{Descriptor{"example.com/app", SuffixNamespace}, "`example.com/app`/"},
		{Descriptor{"Server", SuffixType}, "Server#"},
		{Descriptor{"Close", SuffixMethod}, "Close()."},
		{Descriptor{"count", SuffixTerm}, "count."},
		{Descriptor{"T", SuffixMeta}, "T:"},
		{Descriptor{"a`b", SuffixTerm}, "`a``b`."},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("%+v: got %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestSymbolFormatting(t *testing.T) {
	s := Symbol{
		Scheme:  "gomod",
		Package: moniker.PackageInfo{Name: "example.com/app", Manager: "gomod"},
		Descriptors: []Descriptor{
			{"example.com/app", SuffixNamespace},
			{"Server", SuffixType},
		},
	}
	want := "gomod gomod example.com/app . `example.com/app`/Server#"
	if got := s.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := LocalSymbol(7).String(); got != "local 7" {
		t.Fatalf("local = %q", got)
	}
}

func TestBuilderNestedDeclarations(t *testing.T) {
	o := oracletest.New()
	f := o.AddFile("/repo/a.go")
	group := o.Container(f, oracle.KindGroup)
	typ := o.Declare(group, oracle.KindTypeDecl, "Server")
	body := o.Container(typ, oracle.KindGroup)
	field := o.Declare(body, oracle.KindField, "addr")
	method := o.Declare(f, oracle.KindMethod, "Close")
	method.SetOwner(typ)
	fn := o.Declare(f, oracle.KindFunc, "New")
	tp := o.Declare(fn, oracle.KindTypeParam, "T")

	b := newBuilder()
	tests := []struct {
		n    oracle.Node
		want string
	}{
		{typ, "Server#"},
		{field, "Server#addr."},
		{method, "Server#Close()."},
		{fn, "New()."},
		{tp, "New().T:"},
	}
	for _, tt := range tests {
		got := b.Symbol(tt.n).String()
		if !strings.HasSuffix(got, "`example.com/app`/"+tt.want) {
			t.Errorf("%s: got %q, want suffix %q", tt.n.Name(), got, tt.want)
		}
	}
}

func TestBuilderTransparentGroup(t *testing.T) {
	o := oracletest.New()
	f := o.AddFile("/repo/a.go")
	direct := o.Declare(f, oracle.KindVar, "x")
	g := o.Container(f, oracle.KindGroup)
	inner := o.Container(g, oracle.KindGroup)
	wrapped := o.Declare(inner, oracle.KindVar, "y")

	b := newBuilder()
	ds := b.Symbol(direct)
	ws := b.Symbol(wrapped)
	if len(ds.Descriptors) != len(ws.Descriptors) {
		t.Fatalf("wrapper changed depth: %v vs %v", ds.Descriptors, ws.Descriptors)
	}
	if ds.Descriptors[0] != ws.Descriptors[0] {
		t.Fatalf("wrapper changed owner: %v vs %v", ds.Descriptors[0], ws.Descriptors[0])
	}
}

func TestBuilderLocalsBeneathScopes(t *testing.T) {
	o := oracletest.New()
	f := o.AddFile("/repo/a.go")
	fn := o.Declare(f, oracle.KindFunc, "run")
	sig := o.Container(fn, oracle.KindSignature)
	param := o.Declare(sig, oracle.KindParam, "ctx")
	body := o.Container(fn, oracle.KindBlock)
	v := o.Declare(body, oracle.KindVar, "n")
	inner := o.Declare(body, oracle.KindTypeDecl, "local")
	field := o.Declare(o.Container(inner, oracle.KindGroup), oracle.KindField, "f")

	b := newBuilder()
	seen := make(map[string]bool)
	for _, n := range []oracle.Node{param, v, inner, field} {
		s := b.Symbol(n)
		if !s.IsLocal() {
			t.Fatalf("%s should be local, got %q", n.Name(), s)
		}
		if seen[s.String()] {
			t.Fatalf("local %q reused", s)
		}
		seen[s.String()] = true
	}
	if b.Symbol(fn).IsLocal() {
		t.Fatal("function itself should stay global")
	}
}

func TestBuilderUnlocatableFileIsLocal(t *testing.T) {
	o := oracletest.New()
	f := o.AddFile("/elsewhere/x.go")
	fn := o.Declare(f, oracle.KindFunc, "F")

	if s := newBuilder().Symbol(fn); !s.IsLocal() {
		t.Fatalf("expected local, got %q", s)
	}
}

func TestBuilderRedeclarableCounter(t *testing.T) {
	o := oracletest.New()
	a := o.AddFile("/repo/a.go")
	bf := o.AddFile("/repo/b.go")
	init1 := o.Declare(a, oracle.KindFunc, "init").SetRedeclarable()
	init2 := o.Declare(a, oracle.KindFunc, "init").SetRedeclarable()
	init3 := o.Declare(bf, oracle.KindFunc, "init").SetRedeclarable()

	b := newBuilder()
	got := []string{b.Symbol(init1).String(), b.Symbol(init2).String(), b.Symbol(init3).String()}
	for i, want := range []string{"init0().", "init1().", "init2()."} {
		if !strings.HasSuffix(got[i], want) {
			t.Errorf("init #%d = %q, want suffix %q", i, got[i], want)
		}
	}

	// Memoised: asking again returns the first answer.
	if again := b.Symbol(init2).String(); again != got[1] {
		t.Fatalf("second resolution %q != first %q", again, got[1])
	}
}

func TestBuilderSiblingPropertiesDisambiguated(t *testing.T) {
	o := oracletest.New()
	f := o.AddFile("/repo/a.go")
	v := o.Declare(f, oracle.KindVar, "cfg")
	lit := o.Container(v, oracle.KindGroup)
	x1 := o.Declare(lit, oracle.KindProperty, "x").SetRedeclarable()
	x2 := o.Declare(lit, oracle.KindProperty, "x").SetRedeclarable()

	b := newBuilder()
	s1, s2 := b.Symbol(x1).String(), b.Symbol(x2).String()
	if s1 == s2 {
		t.Fatalf("sibling properties share %q", s1)
	}
	if !strings.HasSuffix(s1, "cfg.x0.") || !strings.HasSuffix(s2, "cfg.x1.") {
		t.Fatalf("unexpected suffixes %q %q", s1, s2)
	}
}

func TestBuilderDeterministic(t *testing.T) {
	build := func() []string {
		o := oracletest.New()
		f := o.AddFile("/repo/a.go")
		nodes := []oracle.Node{
			o.Declare(f, oracle.KindFunc, "init").SetRedeclarable(),
			o.Declare(f, oracle.KindVar, "_").SetRedeclarable(),
			o.Declare(f, oracle.KindFunc, "init").SetRedeclarable(),
			o.Declare(o.Container(f, oracle.KindBlock), oracle.KindVar, "tmp"),
		}
		b := newBuilder()
		var out []string
		for _, n := range nodes {
			out = append(out, b.Symbol(n).String())
		}
		return out
	}
	first, second := build(), build()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("run differs at %d: %q vs %q", i, first[i], second[i])
		}
	}
}
