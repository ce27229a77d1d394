// Package graph defines the abstract elements an indexing run emits. Writers
// turn them into a concrete format.
package graph

import (
	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
)

// ID identifies an element within one run. IDs are sequential from 1.
type ID int64

// IDs hands out element IDs.
type IDs struct {
	next ID
}

// Next returns a fresh ID.
func (g *IDs) Next() ID {
	g.next++
	return g.next
}

// Element is a vertex or an edge.
type Element interface {
	ElementID() ID
	Label() string
}

// Emitter consumes elements in emission order.
type Emitter interface {
	Emit(Element) error
}

// ItemProperty qualifies an item edge.
type ItemProperty string

const (
	ItemDefinitions ItemProperty = "definitions"
	ItemReferences  ItemProperty = "references"
)

// RangeRole distinguishes definition ranges from references.
type RangeRole string

const (
	RoleDefinition RangeRole = "definition"
	RoleReference  RangeRole = "reference"
)

// Metadata opens every run.
type Metadata struct {
	ID          ID
	Version     string
	ProjectRoot string
	ToolName    string
	ToolVersion string
}

// Project is the index's root vertex.
type Project struct {
	ID    ID
	Name  string
	Root  string
	Kind  string
	RunID string
}

// Document is one source file.
type Document struct {
	ID          ID
	URI         string
	Path        string
	LanguageID  string
	External    bool
	MonikerPath string

	// DefaultLibrary marks files of the language's standard library.
	DefaultLibrary bool
}

// ResultSet is the single vertex per distinct semantic symbol.
type ResultSet struct {
	ID      ID
	Symbol  string
	Name    string
	Variant string
	Local   bool
}

// Range is one occurrence in a document.
type Range struct {
	ID        ID
	Document  ID
	ResultSet ID
	Range     oracle.Range
	Role      RangeRole
	Text      string
	// Kind and FullRange are set for definitions only.
	Kind      string
	FullRange oracle.Range
}

// Moniker is a global identifier vertex.
type Moniker struct {
	ID ID
	moniker.Moniker
}

// Hover carries rendered documentation.
type Hover struct {
	ID       ID
	Contents string
}

// Contains links a project to documents or a document to ranges.
type Contains struct {
	ID   ID
	OutV ID
	InVs []ID
}

// Item links a result set to ranges of one document.
type Item struct {
	ID       ID
	OutV     ID
	InVs     []ID
	Document ID
	Property ItemProperty
}

// Next links an alias result set to its target's.
type Next struct {
	ID   ID
	OutV ID
	InV  ID
}

// MonikerEdge attaches a moniker to a result set.
type MonikerEdge struct {
	ID   ID
	OutV ID
	InV  ID
}

// HoverEdge attaches hover text to a result set.
type HoverEdge struct {
	ID   ID
	OutV ID
	InV  ID
}

func (e *Metadata) ElementID() ID    { return e.ID }
func (e *Project) ElementID() ID     { return e.ID }
func (e *Document) ElementID() ID    { return e.ID }
func (e *ResultSet) ElementID() ID   { return e.ID }
func (e *Range) ElementID() ID       { return e.ID }
func (e *Moniker) ElementID() ID     { return e.ID }
func (e *Hover) ElementID() ID       { return e.ID }
func (e *Contains) ElementID() ID    { return e.ID }
func (e *Item) ElementID() ID        { return e.ID }
func (e *Next) ElementID() ID        { return e.ID }
func (e *MonikerEdge) ElementID() ID { return e.ID }
func (e *HoverEdge) ElementID() ID   { return e.ID }

func (*Metadata) Label() string    { return "metaData" }
func (*Project) Label() string     { return "project" }
func (*Document) Label() string    { return "document" }
func (*ResultSet) Label() string   { return "resultSet" }
func (*Range) Label() string       { return "range" }
func (*Moniker) Label() string     { return "moniker" }
func (*Hover) Label() string       { return "hoverResult" }
func (*Contains) Label() string    { return "contains" }
func (*Item) Label() string        { return "item" }
func (*Next) Label() string        { return "next" }
func (*MonikerEdge) Label() string { return "moniker" }
func (*HoverEdge) Label() string   { return "textDocument/hover" }

// MultiEmitter forwards every element to each emitter in order and stops at
// the first error.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(el Element) error {
	for _, e := range m {
		if err := e.Emit(el); err != nil {
			return err
		}
	}
	return nil
}

// Collector keeps every element in memory.
type Collector struct {
	Elements []Element
}

func (c *Collector) Emit(el Element) error {
	c.Elements = append(c.Elements, el)
	return nil
}

// Filter returns the collected elements of type T.
func Filter[T Element](c *Collector) []T {
	var out []T
	for _, el := range c.Elements {
		if t, ok := el.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
