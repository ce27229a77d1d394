package gotypes

import (
	"context"
	"errors"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/DeusData/codebase-xref/internal/graph"
	"github.com/DeusData/codebase-xref/internal/index"
	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
)

const fixtureA = `package fixture

// Greeter says hello.
type Greeter struct {
	Base
	name string
}

type Base struct{}

// Hello greets from the base.
func (Base) Hello() string { return "hi" }

func (g *Greeter) Hello() string { return g.name }

type Alias = Greeter

func init() {}

func Describe(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		_ = x
	}
	return ""
}
`

const fixtureB = `package fixture

import "strings"

func init() {}

func Shout(g *Greeter) string {
	return strings.ToUpper(g.Hello())
}
`

func requireGo(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
}

func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func loadFixture(t *testing.T) *Program {
	t.Helper()
	requireGo(t)
	root := writeModule(t, map[string]string{
		"go.mod": "module example.com/fixture\n\ngo 1.22\n",
		"a.go":   fixtureA,
		"b.go":   fixtureB,
	})
	p, err := Load(context.Background(), root, LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

// find returns every node of kind named name across the loaded files.
func find(p *Program, kind oracle.NodeKind, name string) []*Node {
	var out []*Node
	for _, f := range p.Files() {
		oracle.Walk(f, func(n oracle.Node) bool {
			if n.Kind() == kind && n.Name() == name {
				out = append(out, n.(*Node))
			}
			return true
		}, nil)
	}
	return out
}

func findOne(t *testing.T, p *Program, kind oracle.NodeKind, name string) *Node {
	t.Helper()
	ns := find(p, kind, name)
	if len(ns) == 0 {
		t.Fatalf("no %s named %s", kind, name)
	}
	return ns[0]
}

func TestLoadOrdersFiles(t *testing.T) {
	p := loadFixture(t)
	var got []string
	for _, path := range p.Paths() {
		got = append(got, filepath.Base(path))
	}
	if diff := cmp.Diff([]string{"a.go", "b.go"}, got); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
}

func TestLoadNoPackages(t *testing.T) {
	requireGo(t)
	root := writeModule(t, map[string]string{"go.mod": "module example.com/empty\n\ngo 1.22\n"})
	_, err := Load(context.Background(), root, LoadOptions{})
	if !errors.Is(err, ErrNoPackages) {
		t.Fatalf("expected ErrNoPackages, got %v", err)
	}
}

func TestSymbolIdentityAcrossFiles(t *testing.T) {
	p := loadFixture(t)
	ids := find(p, oracle.KindIdentifier, "Greeter")
	if len(ids) < 2 {
		t.Fatalf("expected Greeter in both files, got %d identifiers", len(ids))
	}
	first := p.SymbolAt(ids[0])
	for _, id := range ids[1:] {
		if got := p.SymbolAt(id); got != first {
			t.Fatalf("identifier at %s resolves to %v, want %v", id.Range(), got, first)
		}
	}
	if !first.Flags().Has(oracle.FlagTypeOnly) {
		t.Fatalf("Greeter flags = %b", first.Flags())
	}
}

func TestSymbolAtMissReturnsNil(t *testing.T) {
	p := loadFixture(t)
	blk := findOne(t, p, oracle.KindFunc, "Describe").Children()
	if got := p.SymbolAt(blk[len(blk)-1]); got != nil {
		t.Fatalf("SymbolAt(block) = %v, want nil", got)
	}
}

func TestMethodOwnerIsReceiverType(t *testing.T) {
	p := loadFixture(t)
	for _, m := range find(p, oracle.KindMethod, "Hello") {
		owner := m.Owner()
		if owner == nil || owner.Kind() != oracle.KindTypeDecl {
			t.Fatalf("method at %s owned by %v", m.Range(), owner)
		}
		if owner.Name() != "Greeter" && owner.Name() != "Base" {
			t.Fatalf("unexpected owner %q", owner.Name())
		}
	}
}

func TestRedeclarableInit(t *testing.T) {
	p := loadFixture(t)
	inits := find(p, oracle.KindFunc, "init")
	if len(inits) != 2 {
		t.Fatalf("expected 2 init functions, got %d", len(inits))
	}
	for _, n := range inits {
		if !n.Redeclarable() {
			t.Fatalf("init at %s not redeclarable", n.Range())
		}
	}
}

func TestContainerAndBases(t *testing.T) {
	p := loadFixture(t)
	var hello oracle.Symbol
	for _, m := range find(p, oracle.KindMethod, "Hello") {
		if m.Owner().Name() == "Greeter" {
			hello = p.SymbolAt(m.NameNode())
		}
	}
	if hello == nil {
		t.Fatal("Greeter.Hello not found")
	}
	container := p.ContainerOf(hello)
	if container == nil || container.Name() != "Greeter" {
		t.Fatalf("ContainerOf = %v", container)
	}
	bases := p.BaseMembers(container, "Hello")
	if len(bases) != 1 {
		t.Fatalf("expected one base member, got %d", len(bases))
	}
	if c := p.ContainerOf(bases[0]); c == nil || c.Name() != "Base" {
		t.Fatalf("base container = %v", c)
	}
}

func TestExportPath(t *testing.T) {
	p := loadFixture(t)
	nameField := p.SymbolAt(findOne(t, p, oracle.KindField, "name").NameNode())
	describe := p.SymbolAt(findOne(t, p, oracle.KindFunc, "Describe").NameNode())
	var hello oracle.Symbol
	for _, m := range find(p, oracle.KindMethod, "Hello") {
		if m.Owner().Name() == "Greeter" {
			hello = p.SymbolAt(m.NameNode())
		}
	}

	if path, ok := p.ExportPath(hello); !ok || !cmp.Equal(path, []string{"Greeter", "Hello"}) {
		t.Fatalf("Greeter.Hello export path = %v, %v", path, ok)
	}
	if path, ok := p.ExportPath(describe); !ok || !cmp.Equal(path, []string{"Describe"}) {
		t.Fatalf("Describe export path = %v, %v", path, ok)
	}
	if _, ok := p.ExportPath(nameField); ok {
		t.Fatal("unexported field should have no export path")
	}
}

func TestTypeSwitchGuardIsComposite(t *testing.T) {
	p := loadFixture(t)
	guard := findOne(t, p, oracle.KindVar, "x")
	sym := p.SymbolAt(guard.NameNode())
	if sym == nil || !p.IsTransient(sym) {
		t.Fatalf("guard symbol = %v", sym)
	}
	members := p.CompositeMembers(sym, guard.NameNode())
	if len(members) != 2 {
		t.Fatalf("expected 2 clause variables, got %d", len(members))
	}
	if members[0].Key() == members[1].Key() {
		t.Fatalf("clause variables share key %s", members[0].Key())
	}

	// Uses inside a clause resolve to that clause's variable.
	var uses []oracle.Symbol
	for _, id := range find(p, oracle.KindIdentifier, "x") {
		if id != guard.NameNode() {
			uses = append(uses, p.SymbolAt(id))
		}
	}
	if len(uses) != 2 || uses[0] != members[0] || uses[1] != members[1] {
		t.Fatalf("clause uses = %v, members = %v", uses, members)
	}
}

func TestAliases(t *testing.T) {
	p := loadFixture(t)
	decl := findOne(t, p, oracle.KindTypeDecl, "Alias")
	sym := p.SymbolAt(decl.NameNode())
	if !p.IsAlias(sym) {
		t.Fatal("Alias should be an alias")
	}
	target := p.ResolveAlias(sym)
	if target == nil || target.Name() != "Greeter" {
		t.Fatalf("ResolveAlias = %v", target)
	}
	if name, ok := p.ExportAlias(decl); !ok || name != "Alias" {
		t.Fatalf("ExportAlias = %q, %v", name, ok)
	}

	imp := findOne(t, p, oracle.KindImport, "strings")
	pkg := p.ResolveAlias(p.SymbolAt(imp.NameNode()))
	if pkg == nil || !pkg.Flags().Has(oracle.FlagModule) {
		t.Fatalf("import resolves to %v", pkg)
	}
	decls := p.DeclarationsOf(pkg)
	if len(decls) != 1 || !p.IsDefaultLibraryFile(decls[0].File()) {
		t.Fatalf("strings declarations = %v", decls)
	}
}

func TestHover(t *testing.T) {
	p := loadFixture(t)
	decl := findOne(t, p, oracle.KindTypeDecl, "Greeter")
	h, err := p.HoverText(decl.NameNode())
	if err != nil {
		t.Fatalf("HoverText: %v", err)
	}
	if !strings.HasPrefix(h.Signature, "type Greeter struct") {
		t.Fatalf("signature = %q", h.Signature)
	}
	if h.Doc != "Greeter says hello." {
		t.Fatalf("doc = %q", h.Doc)
	}
}

func TestExternalDeclarationsAreStubs(t *testing.T) {
	p := loadFixture(t)
	upper := p.SymbolAt(findOne(t, p, oracle.KindIdentifier, "ToUpper"))
	decls := p.DeclarationsOf(upper)
	if len(decls) != 1 {
		t.Fatalf("expected one stub declaration, got %d", len(decls))
	}
	d := decls[0]
	if d.Kind() != oracle.KindFunc || !p.IsExternalLibraryFile(d.File()) {
		t.Fatalf("stub = %s in %s", d.Kind(), d.File())
	}
	if p.SymbolAt(d.NameNode()) != upper {
		t.Fatal("stub name does not resolve back to its symbol")
	}
	for _, f := range p.Files() {
		if f.Name() == d.File() {
			t.Fatal("external file returned by Files")
		}
	}
}

func TestIndexFixture(t *testing.T) {
	p := loadFixture(t)
	c := &graph.Collector{}
	s := index.NewSession(p, c, index.Options{
		ProjectName: "fixture",
		Root:        p.Root(),
		Hover:       true,
		Locator:     moniker.NewPathMapper(p.Root(), moniker.Options{Version: "v0.0.1", GOROOT: p.GOROOT()}),
	})
	stats, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Documents < 2 || stats.Definitions == 0 || stats.References == 0 {
		t.Fatalf("stats = %+v", stats)
	}

	identifiers := map[string]moniker.Kind{}
	for _, m := range graph.Filter[*graph.Moniker](c) {
		identifiers[m.Identifier] = m.Kind
	}
	want := map[string]moniker.Kind{
		"example.com/fixture:Shout":         moniker.KindExport,
		"example.com/fixture:Greeter.Hello": moniker.KindExport,
		"example.com/fixture:Alias":         moniker.KindExport,
		"strings:ToUpper":                   moniker.KindImport,
	}
	for id, kind := range want {
		if got, ok := identifiers[id]; !ok || got != kind {
			t.Errorf("moniker %s = %q (present %v), want %q", id, got, ok, kind)
		}
	}

	symbols := map[string]bool{}
	for _, rs := range graph.Filter[*graph.ResultSet](c) {
		if rs.Name == "init" {
			if symbols[rs.Symbol] {
				t.Fatalf("duplicate init descriptor %s", rs.Symbol)
			}
			symbols[rs.Symbol] = true
		}
	}
	if len(symbols) != 2 {
		t.Fatalf("expected 2 init result sets, got %v", symbols)
	}
}

func TestPositionExpandsGOROOT(t *testing.T) {
	fset := token.NewFileSet()
	std := fset.AddFile("$GOROOT/src/strings/strings.go", -1, 100)
	std.SetLines([]int{0, 50})
	local := fset.AddFile("/src/app/main.go", -1, 10)
	p := &Program{goroot: "/opt/go", fset: fset}

	got := p.position(std.Pos(60))
	if want := filepath.Join("/opt/go", "src", "strings", "strings.go"); got.Filename != want || got.Line != 2 {
		t.Fatalf("position = %s:%d, want %s:2", got.Filename, got.Line, want)
	}
	if got := p.position(local.Pos(0)); got.Filename != "/src/app/main.go" {
		t.Fatalf("project file rewritten to %s", got.Filename)
	}
}

func TestStdlibDeclarationsResolveUnderGOROOT(t *testing.T) {
	p := loadFixture(t)
	var upper oracle.Symbol
	for _, f := range p.Files() {
		oracle.Walk(f, func(n oracle.Node) bool {
			if upper == nil && n.Kind() == oracle.KindIdentifier && n.Name() == "ToUpper" {
				upper = p.SymbolAt(n)
			}
			return upper == nil
		}, nil)
	}
	if upper == nil {
		t.Fatal("strings.ToUpper not resolved")
	}

	decls := p.DeclarationsOf(upper)
	if len(decls) != 1 {
		t.Fatalf("ToUpper declarations = %v", decls)
	}
	file := decls[0].File()
	if strings.Contains(file, "$GOROOT") || filepath.Dir(file) != filepath.Join(p.GOROOT(), "src", "strings") {
		t.Fatalf("ToUpper declared in %s, GOROOT %s", file, p.GOROOT())
	}
	if !p.IsDefaultLibraryFile(file) {
		t.Fatalf("%s is not a default library file", file)
	}
	if r := decls[0].Range(); r.End.Character-r.Start.Character != len("ToUpper") {
		t.Fatalf("ToUpper range = %v", r)
	}

	loc, ok := moniker.NewPathMapper(p.Root(), moniker.Options{GOROOT: p.GOROOT()}).Compute(file)
	if !ok || loc.Path != "strings" || !loc.DefaultLib {
		t.Fatalf("Compute(%s) = %+v, %v", file, loc, ok)
	}
}
