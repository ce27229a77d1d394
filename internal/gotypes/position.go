package gotypes

import (
	"go/token"
	"os"
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/DeusData/codebase-xref/internal/oracle"
)

// source holds a file's bytes and line starts for UTF-16 position mapping.
type source struct {
	path    string
	content []byte
	lines   []int
}

func newSource(path string, content []byte) *source {
	s := &source{path: path, content: content, lines: []int{0}}
	for i, c := range content {
		if c == '\n' {
			s.lines = append(s.lines, i+1)
		}
	}
	return s
}

// readSource loads path from disk. Unreadable files yield an empty source
// whose positions fall back to byte columns.
func readSource(path string) *source {
	data, err := os.ReadFile(path)
	if err != nil {
		return &source{path: path}
	}
	return newSource(path, data)
}

// offsetPosition maps a byte offset to a zero-based line and UTF-16 column.
func (s *source) offsetPosition(off int) oracle.Position {
	if len(s.content) == 0 {
		return oracle.Position{}
	}
	if off > len(s.content) {
		off = len(s.content)
	}
	line := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > off }) - 1
	if line < 0 {
		line = 0
	}
	return oracle.Position{Line: line, Character: utf16Len(s.content[s.lines[line]:off])}
}

// tokenPosition maps a 1-based line/byte-column pair.
func (s *source) tokenPosition(p token.Position) oracle.Position {
	line := p.Line - 1
	if line < 0 {
		return oracle.Position{}
	}
	if line >= len(s.lines) {
		return oracle.Position{Line: line, Character: max(p.Column-1, 0)}
	}
	return s.offsetPosition(s.lines[line] + max(p.Column-1, 0))
}

// nameRange is the span of name starting at p.
func (s *source) nameRange(p token.Position, name string) oracle.Range {
	start := s.tokenPosition(p)
	return oracle.Range{
		Start: start,
		End:   oracle.Position{Line: start.Line, Character: start.Character + utf16Len([]byte(name))},
	}
}

func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
