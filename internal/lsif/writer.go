// Package lsif serialises graph elements as LSIF 0.4.3 JSON lines.
package lsif

import (
	"bufio"
	"fmt"
	"io"

	"github.com/segmentio/encoding/json"

	"github.com/DeusData/codebase-xref/internal/graph"
	"github.com/DeusData/codebase-xref/internal/moniker"
	"github.com/DeusData/codebase-xref/internal/oracle"
)

const (
	typeVertex = "vertex"
	typeEdge   = "edge"
)

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type rangeJSON struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

func toRange(r oracle.Range) rangeJSON {
	return rangeJSON{
		Start: position{Line: r.Start.Line, Character: r.Start.Character},
		End:   position{Line: r.End.Line, Character: r.End.Character},
	}
}

type element struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

type metaData struct {
	element
	Version          string   `json:"version"`
	ProjectRoot      string   `json:"projectRoot"`
	PositionEncoding string   `json:"positionEncoding"`
	ToolInfo         toolInfo `json:"toolInfo"`
}

type toolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type project struct {
	element
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
}

type document struct {
	element
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
}

type rangeTag struct {
	Type      string     `json:"type"`
	Text      string     `json:"text"`
	Kind      string     `json:"kind,omitempty"`
	FullRange *rangeJSON `json:"fullRange,omitempty"`
}

type rangeVertex struct {
	element
	rangeJSON
	Tag *rangeTag `json:"tag,omitempty"`
}

type monikerVertex struct {
	element
	Scheme     string `json:"scheme"`
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
}

type packageInformation struct {
	element
	Name    string `json:"name"`
	Manager string `json:"manager"`
	Version string `json:"version,omitempty"`
}

type hoverVertex struct {
	element
	Result hoverResult `json:"result"`
}

type hoverResult struct {
	Contents markupContent `json:"contents"`
}

type markupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type edge struct {
	element
	OutV int64 `json:"outV"`
	InV  int64 `json:"inV,omitempty"`
}

type edgeMany struct {
	element
	OutV     int64   `json:"outV"`
	InVs     []int64 `json:"inVs"`
	Document int64   `json:"document,omitempty"`
	Property string  `json:"property,omitempty"`
}

type packageKey struct {
	name, manager, version string
}

// Writer implements graph.Emitter. It renumbers element IDs and synthesises
// the definitionResult, referenceResult and packageInformation vertices LSIF
// requires but the graph does not model.
type Writer struct {
	w   *bufio.Writer
	enc *json.Encoder
	err error

	next     int64
	ids      map[graph.ID]int64
	defs     map[graph.ID]int64
	refs     map[graph.ID]int64
	packages map[packageKey]int64
	elements int
}

// NewWriter returns a Writer buffering output to w.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriterSize(w, 64*1024)
	return &Writer{
		w:        bw,
		enc:      json.NewEncoder(bw),
		ids:      make(map[graph.ID]int64),
		defs:     make(map[graph.ID]int64),
		refs:     make(map[graph.ID]int64),
		packages: make(map[packageKey]int64),
	}
}

// Elements reports how many LSIF lines were written.
func (w *Writer) Elements() int { return w.elements }

func (w *Writer) fresh() int64 {
	w.next++
	return w.next
}

func (w *Writer) id(g graph.ID) int64 {
	if id, ok := w.ids[g]; ok {
		return id
	}
	id := w.fresh()
	w.ids[g] = id
	return id
}

func (w *Writer) write(v any) {
	if w.err != nil {
		return
	}
	if err := w.enc.Encode(v); err != nil {
		w.err = fmt.Errorf("lsif: encode: %w", err)
		return
	}
	w.elements++
}

func vertex(id int64, label string) element { return element{ID: id, Type: typeVertex, Label: label} }
func edgeOf(id int64, label string) element { return element{ID: id, Type: typeEdge, Label: label} }

// Emit writes el and any vertices it implies. The first error is sticky.
func (w *Writer) Emit(el graph.Element) error {
	if w.err != nil {
		return w.err
	}
	switch e := el.(type) {
	case *graph.Metadata:
		w.write(metaData{
			element:          vertex(w.id(e.ID), "metaData"),
			Version:          e.Version,
			ProjectRoot:      e.ProjectRoot,
			PositionEncoding: "utf-16",
			ToolInfo:         toolInfo{Name: e.ToolName, Version: e.ToolVersion},
		})
	case *graph.Project:
		w.write(project{element: vertex(w.id(e.ID), "project"), Kind: e.Kind, Name: e.Name})
	case *graph.Document:
		w.write(document{element: vertex(w.id(e.ID), "document"), URI: e.URI, LanguageID: e.LanguageID})
	case *graph.ResultSet:
		w.write(vertex(w.id(e.ID), "resultSet"))
	case *graph.Range:
		w.writeRange(e)
	case *graph.Moniker:
		w.writeMoniker(e)
	case *graph.Hover:
		w.write(hoverVertex{
			element: vertex(w.id(e.ID), "hoverResult"),
			Result:  hoverResult{Contents: markupContent{Kind: "markdown", Value: e.Contents}},
		})
	case *graph.Contains:
		w.write(edgeMany{element: edgeOf(w.id(e.ID), "contains"), OutV: w.id(e.OutV), InVs: w.idList(e.InVs)})
	case *graph.Item:
		w.writeItem(e)
	case *graph.Next:
		w.write(edge{element: edgeOf(w.id(e.ID), "next"), OutV: w.id(e.OutV), InV: w.id(e.InV)})
	case *graph.MonikerEdge:
		w.write(edge{element: edgeOf(w.id(e.ID), "moniker"), OutV: w.id(e.OutV), InV: w.id(e.InV)})
	case *graph.HoverEdge:
		w.write(edge{element: edgeOf(w.id(e.ID), "textDocument/hover"), OutV: w.id(e.OutV), InV: w.id(e.InV)})
	default:
		w.err = fmt.Errorf("lsif: unsupported element %T", el)
	}
	return w.err
}

func (w *Writer) idList(ids []graph.ID) []int64 {
	out := make([]int64, len(ids))
	for i, g := range ids {
		out[i] = w.id(g)
	}
	return out
}

func (w *Writer) writeRange(r *graph.Range) {
	v := rangeVertex{element: vertex(w.id(r.ID), "range"), rangeJSON: toRange(r.Range)}
	switch r.Role {
	case graph.RoleDefinition:
		full := toRange(r.FullRange)
		v.Tag = &rangeTag{Type: "definition", Text: r.Text, Kind: r.Kind, FullRange: &full}
	case graph.RoleReference:
		v.Tag = &rangeTag{Type: "reference", Text: r.Text}
	}
	w.write(v)
	w.write(edge{element: edgeOf(w.fresh(), "next"), OutV: w.id(r.ID), InV: w.id(r.ResultSet)})
}

func (w *Writer) writeMoniker(m *graph.Moniker) {
	id := w.id(m.ID)
	w.write(monikerVertex{
		element:    vertex(id, "moniker"),
		Scheme:     m.Scheme,
		Identifier: m.Identifier,
		Kind:       string(m.Kind),
	})
	if m.Package.Name == "" {
		return
	}
	w.write(edge{element: edgeOf(w.fresh(), "packageInformation"), OutV: id, InV: w.packageInfo(m.Package)})
}

func (w *Writer) packageInfo(p moniker.PackageInfo) int64 {
	k := packageKey{p.Name, p.Manager, p.Version}
	if id, ok := w.packages[k]; ok {
		return id
	}
	id := w.fresh()
	w.write(packageInformation{element: vertex(id, "packageInformation"), Name: p.Name, Manager: p.Manager, Version: p.Version})
	w.packages[k] = id
	return id
}

// result returns the definitionResult or referenceResult of a result set,
// creating it and its request edge on first use.
func (w *Writer) result(cache map[graph.ID]int64, rs graph.ID, label, request string) int64 {
	if id, ok := cache[rs]; ok {
		return id
	}
	id := w.fresh()
	w.write(vertex(id, label))
	w.write(edge{element: edgeOf(w.fresh(), request), OutV: w.id(rs), InV: id})
	cache[rs] = id
	return id
}

func (w *Writer) writeItem(it *graph.Item) {
	doc := w.id(it.Document)
	inVs := w.idList(it.InVs)
	refs := w.result(w.refs, it.OutV, "referenceResult", "textDocument/references")
	if it.Property == graph.ItemDefinitions {
		defs := w.result(w.defs, it.OutV, "definitionResult", "textDocument/definition")
		w.write(edgeMany{element: edgeOf(w.id(it.ID), "item"), OutV: defs, InVs: inVs, Document: doc})
		w.write(edgeMany{element: edgeOf(w.fresh(), "item"), OutV: refs, InVs: inVs, Document: doc, Property: string(graph.ItemDefinitions)})
		return
	}
	w.write(edgeMany{element: edgeOf(w.id(it.ID), "item"), OutV: refs, InVs: inVs, Document: doc, Property: string(it.Property)})
}

// Close flushes buffered output and returns the first error seen.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if err := w.w.Flush(); err != nil {
		w.err = fmt.Errorf("lsif: flush: %w", err)
	}
	return w.err
}
