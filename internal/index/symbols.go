package index

import (
	"fmt"
	"log/slog"

	"github.com/DeusData/codebase-xref/internal/descriptor"
	"github.com/DeusData/codebase-xref/internal/graph"
	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
	"github.com/DeusData/codebase-xref/internal/resolve"
)

// site is a physical declaration location.
type site struct {
	file string
	rng  oracle.Range
}

func siteOf(n oracle.Node) site {
	return site{file: n.File(), rng: n.Range()}
}

// nameOf returns the node whose range marks a declaration.
func nameOf(decl oracle.Node) oracle.Node {
	if nn := decl.NameNode(); nn != nil {
		return nn
	}
	return decl
}

type occurrences struct {
	doc  *Document
	defs []graph.ID
	refs []graph.ID
}

// SymbolNode is the graph node of one distinct semantic symbol.
type SymbolNode struct {
	Key        string
	Symbol     oracle.Symbol
	Variant    resolve.Variant
	ResultSet  graph.ID
	Identifier string
	Local      bool
	Monikers   []moniker.Moniker

	decls    []oracle.Node
	sites    map[site]oracle.Node
	recorded map[site]bool
	bases    []*SymbolNode
	members  []string
	occ      map[*Document]*occurrences
	occOrder []*occurrences
	ended    bool
}

// Declarations returns the declaration nodes chosen for the node's variant.
func (n *SymbolNode) Declarations() []oracle.Node { return n.decls }

// Ended reports whether the node is frozen.
func (n *SymbolNode) Ended() bool { return n.ended }

func (n *SymbolNode) occurrencesIn(d *Document) *occurrences {
	o, ok := n.occ[d]
	if !ok {
		o = &occurrences{doc: d}
		n.occ[d] = o
		n.occOrder = append(n.occOrder, o)
	}
	return o
}

func (n *SymbolNode) mustBeOpen(op string) {
	if n.ended {
		panic(fmt.Sprintf("index: %s on ended symbol %s", op, n.Key))
	}
}

// SymbolCache holds one SymbolNode per symbol key for a run.
type SymbolCache struct {
	s     *Session
	nodes map[string]*SymbolNode
	order []*SymbolNode
}

func newSymbolCache(s *Session) *SymbolCache {
	return &SymbolCache{s: s, nodes: make(map[string]*SymbolNode)}
}

// Lookup returns the node for key if it exists.
func (c *SymbolCache) Lookup(key string) (*SymbolNode, bool) {
	n, ok := c.nodes[key]
	return n, ok
}

// Len returns the number of nodes created so far.
func (c *SymbolCache) Len() int { return len(c.nodes) }

// GetOrCreate returns the node for sym, building it on first request. The
// slot is reserved before any related symbol is resolved, so cycles through
// base members or alias targets end at the reserved node.
func (c *SymbolCache) GetOrCreate(sym oracle.Symbol, useSite oracle.Node) *SymbolNode {
	key := sym.Key()
	if n, ok := c.nodes[key]; ok {
		return n
	}
	s := c.s

	n := &SymbolNode{
		Key:      key,
		Symbol:   sym,
		sites:    make(map[site]oracle.Node),
		recorded: make(map[site]bool),
		occ:      make(map[*Document]*occurrences),
	}
	c.nodes[key] = n
	c.order = append(c.order, n)

	n.Variant = resolve.Classify(s.oracle, sym, useSite)
	n.decls = c.declarations(n, useSite)

	var d descriptor.Symbol
	if len(n.decls) > 0 {
		d = s.descs.Symbol(n.decls[0])
	} else {
		d = s.descs.NewLocal()
	}
	n.Identifier = d.String()
	n.Local = d.IsLocal()

	n.ResultSet = s.ids.Next()
	s.emit(&graph.ResultSet{
		ID:      n.ResultSet,
		Symbol:  n.Identifier,
		Name:    sym.Name(),
		Variant: n.Variant.Tag().String(),
		Local:   n.Local,
	})
	s.stats.Symbols++

	c.primaryMoniker(n)
	c.hover(n)

	for _, decl := range n.decls {
		n.sites[siteOf(nameOf(decl))] = decl
		c.eagerDefinition(n, decl)
	}

	switch v := n.Variant.(type) {
	case resolve.Standard, resolve.Transient:
	case resolve.Alias:
		if v.Target != nil {
			target := c.GetOrCreate(v.Target, useSite)
			s.emit(&graph.Next{ID: s.ids.Next(), OutV: n.ResultSet, InV: target.ResultSet})
		}
	case resolve.Method:
		for _, b := range v.Bases {
			if base := c.GetOrCreate(b, useSite); base != n {
				n.bases = append(n.bases, base)
			}
		}
	case resolve.Composite:
		for _, m := range v.Members {
			n.members = append(n.members, m.Key())
		}
	default:
		panic(fmt.Sprintf("index: unhandled variant %T", v))
	}

	if n.Local {
		s.confine(n)
	}
	return n
}

func (c *SymbolCache) declarations(n *SymbolNode, useSite oracle.Node) []oracle.Node {
	switch n.Variant.(type) {
	case resolve.Composite, resolve.Transient:
		if useSite == nil {
			return nil
		}
		return []oracle.Node{useSite}
	}
	return c.s.oracle.DeclarationsOf(n.Symbol)
}

// eagerDefinition records definitions in files the traversal never visits.
// Definitions in traversal files wait for the driver to reach them.
func (c *SymbolCache) eagerDefinition(n *SymbolNode, decl oracle.Node) {
	s := c.s
	file := decl.File()
	if s.traversal[file] {
		if d, ok := s.docs.Lookup(file); ok && d.ended {
			slog.Debug("index.definition_after_end", "symbol", n.Key, "file", file)
		}
		return
	}
	d := s.docs.GetOrCreate(file)
	if d.ended {
		return
	}
	c.recordDefinition(n, d, decl)
}

func (c *SymbolCache) recordDefinition(n *SymbolNode, d *Document, decl oracle.Node) {
	n.mustBeOpen("definition")
	name := nameOf(decl)
	st := siteOf(name)
	if n.recorded[st] {
		return
	}
	n.recorded[st] = true

	id := c.s.docs.addRange(d, &graph.Range{
		ResultSet: n.ResultSet,
		Range:     name.Range(),
		Role:      graph.RoleDefinition,
		Text:      decl.Name(),
		Kind:      decl.Kind().String(),
		FullRange: decl.FullRange(),
	})
	occ := n.occurrencesIn(d)
	occ.defs = append(occ.defs, id)
	c.s.stats.Definitions++
}

// markDefinition records a definition site reached by the driver.
func (c *SymbolCache) markDefinition(n *SymbolNode, d *Document, ident oracle.Node) {
	decl, ok := n.sites[siteOf(ident)]
	if !ok {
		decl = ident.Parent()
	}
	c.recordDefinition(n, d, decl)
}

// isDefinition reports whether ident is one of n's definition sites.
func (c *SymbolCache) isDefinition(n *SymbolNode, ident oracle.Node) bool {
	if _, ok := n.sites[siteOf(ident)]; ok {
		return true
	}
	return oracle.IsDefinitionSite(ident)
}

// addReference records ident as a use of n and forwards it to the node's
// bases and composite members.
func (c *SymbolCache) addReference(n *SymbolNode, d *Document, ident oracle.Node) {
	n.mustBeOpen("reference")
	id := c.s.docs.addRange(d, &graph.Range{
		ResultSet: n.ResultSet,
		Range:     ident.Range(),
		Role:      graph.RoleReference,
		Text:      ident.Name(),
	})
	occ := n.occurrencesIn(d)
	occ.refs = append(occ.refs, id)
	c.s.stats.References++

	for _, b := range n.bases {
		if !b.ended {
			o := b.occurrencesIn(d)
			o.refs = append(o.refs, id)
		}
	}
	for _, key := range n.members {
		if m, ok := c.nodes[key]; ok && m != n && !m.ended {
			o := m.occurrencesIn(d)
			o.refs = append(o.refs, id)
		}
	}
}

func (c *SymbolCache) primaryMoniker(n *SymbolNode) {
	switch n.Variant.(type) {
	case resolve.Alias, resolve.Composite, resolve.Transient:
		return
	}
	if n.Local || len(n.decls) == 0 {
		return
	}
	s := c.s
	path, ok := s.oracle.ExportPath(n.Symbol)
	if !ok {
		return
	}

	locs := make([]moniker.Location, 0, len(n.decls))
	for _, decl := range n.decls {
		loc, ok := s.locate.Compute(decl.File())
		if !ok {
			slog.Debug("index.moniker_unlocatable", "symbol", n.Key, "file", decl.File())
			return
		}
		locs = append(locs, loc)
	}
	loc, ok := moniker.Agree(locs)
	if !ok {
		slog.Debug("index.moniker_conflict", "symbol", n.Key)
		return
	}

	kind := moniker.KindExport
	if loc.External {
		kind = moniker.KindImport
	}
	c.attachMoniker(n, moniker.Moniker{
		Scheme:     s.opts.Scheme,
		Identifier: moniker.Identifier(loc.Path, path),
		Kind:       kind,
		Package:    loc.Package,
	})
}

// attachMoniker adds m to n unless n already carries the identifier.
func (c *SymbolCache) attachMoniker(n *SymbolNode, m moniker.Moniker) {
	n.mustBeOpen("moniker")
	for _, have := range n.Monikers {
		if have.Identifier == m.Identifier {
			return
		}
	}
	s := c.s
	id := s.ids.Next()
	s.emit(&graph.Moniker{ID: id, Moniker: m})
	s.emit(&graph.MonikerEdge{ID: s.ids.Next(), OutV: n.ResultSet, InV: id})
	n.Monikers = append(n.Monikers, m)
	s.stats.Monikers++
}

func (c *SymbolCache) hover(n *SymbolNode) {
	s := c.s
	if !s.opts.Hover {
		return
	}
	switch n.Variant.(type) {
	case resolve.Composite, resolve.Transient:
		return
	}
	for _, decl := range n.decls {
		nn := decl.NameNode()
		if nn == nil {
			continue
		}
		h, err := s.oracle.HoverText(nn)
		if err != nil {
			slog.Warn("index.hover_failed", "symbol", n.Key, "err", err)
			return
		}
		if h.IsEmpty() {
			return
		}
		id := s.ids.Next()
		s.emit(&graph.Hover{ID: id, Contents: h.Markdown(s.opts.LanguageID)})
		s.emit(&graph.HoverEdge{ID: s.ids.Next(), OutV: n.ResultSet, InV: id})
		return
	}
}

// end freezes n and writes its item edges, definitions before references,
// per document in first-occurrence order.
func (c *SymbolCache) end(n *SymbolNode) {
	if n.ended {
		panic(fmt.Sprintf("index: symbol %s ended twice", n.Key))
	}
	s := c.s
	for _, o := range n.occOrder {
		if len(o.defs) > 0 {
			s.emit(&graph.Item{ID: s.ids.Next(), OutV: n.ResultSet, InVs: o.defs, Document: o.doc.ID, Property: graph.ItemDefinitions})
		}
		if len(o.refs) > 0 {
			s.emit(&graph.Item{ID: s.ids.Next(), OutV: n.ResultSet, InVs: o.refs, Document: o.doc.ID, Property: graph.ItemReferences})
		}
	}
	n.ended = true
}
