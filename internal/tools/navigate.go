package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/codebase-xref/internal/store"
)

type position struct {
	project string
	root    string
	relPath string
	line    int
	char    int
}

// resolvePosition maps tool arguments to a project-relative position. An
// absolute file selects the project whose root contains it most closely.
func (s *Server) resolvePosition(args map[string]any) (position, error) {
	pos := position{
		project: getStringArg(args, "project"),
		line:    getIntArg(args, "line", -1),
		char:    getIntArg(args, "character", -1),
	}
	file := getStringArg(args, "file")
	if file == "" {
		return pos, errors.New("file is required")
	}
	if pos.line < 0 || pos.char < 0 {
		return pos, errors.New("line and character are required (zero-based)")
	}

	if pos.project == "" {
		if !filepath.IsAbs(file) {
			return pos, errors.New("project is required when file is relative")
		}
		projects, err := s.store.ListProjects()
		if err != nil {
			return pos, err
		}
		for _, p := range projects {
			if inside(p.RootPath, file) && len(p.RootPath) > len(pos.root) {
				pos.project, pos.root = p.Name, p.RootPath
			}
		}
		if pos.project == "" {
			return pos, fmt.Errorf("no indexed project contains %s", file)
		}
	} else {
		proj, err := s.store.GetProject(pos.project)
		if err != nil {
			return pos, err
		}
		pos.root = proj.RootPath
	}

	pos.relPath = filepath.ToSlash(filepath.Clean(file))
	if filepath.IsAbs(file) && inside(pos.root, file) {
		rel, _ := filepath.Rel(pos.root, file)
		pos.relPath = filepath.ToSlash(rel)
	}
	return pos, nil
}

func inside(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// positionError renders a lookup miss as a tool error.
func positionError(pos position, err error) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return errResult(fmt.Sprintf("no symbol at %s:%d:%d in project %s", pos.relPath, pos.line, pos.char, pos.project))
	}
	return errResult(err.Error())
}

type sourceLocation struct {
	store.Location
	Source string `json:"source,omitempty"`
}

// withSource attaches the definition's first line to each location.
func (s *Server) withSource(locs []store.Location) []sourceLocation {
	roots := map[string]string{}
	out := make([]sourceLocation, 0, len(locs))
	for _, l := range locs {
		sl := sourceLocation{Location: l}
		path := filepath.FromSlash(l.Path)
		if !filepath.IsAbs(path) {
			root, ok := roots[l.Project]
			if !ok {
				if proj, err := s.store.GetProject(l.Project); err == nil {
					root = proj.RootPath
				}
				roots[l.Project] = root
			}
			path = filepath.Join(root, path)
		}
		if src, err := readLines(path, l.StartLine+1, l.StartLine+1); err == nil {
			sl.Source = src
		}
		out = append(out, sl)
	}
	return out
}

func (s *Server) handleGotoDefinition(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	pos, err := s.resolvePosition(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	sym, err := s.store.SymbolAt(pos.project, pos.relPath, pos.line, pos.char)
	if err != nil {
		return positionError(pos, err), nil
	}
	defs, err := s.store.Definitions(sym)
	if err != nil {
		return errResult(fmt.Sprintf("definitions: %v", err)), nil
	}
	monikers, _ := s.store.MonikersOf(sym)

	return jsonResult(map[string]any{
		"symbol":      sym,
		"monikers":    monikers,
		"definitions": s.withSource(defs),
	}), nil
}

type locationKey struct {
	project, path   string
	line, character int
}

func (s *Server) handleFindReferences(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	pos, err := s.resolvePosition(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	sym, err := s.store.SymbolAt(pos.project, pos.relPath, pos.line, pos.char)
	if err != nil {
		return positionError(pos, err), nil
	}
	refs, err := s.store.References(sym, getBoolArg(args, "include_declaration"))
	if err != nil {
		return errResult(fmt.Sprintf("references: %v", err)), nil
	}

	seen := make(map[locationKey]bool, len(refs))
	for _, r := range refs {
		seen[locationKey{r.Project, r.Path, r.StartLine, r.StartChar}] = true
	}

	// Symbols sharing a moniker are the same entity seen from another
	// project (or through another import).
	monikers, err := s.store.MonikersOf(sym)
	if err != nil {
		return errResult(fmt.Sprintf("monikers: %v", err)), nil
	}
	for _, id := range monikers {
		matches, err := s.store.SymbolsByMoniker(id)
		if err != nil {
			return errResult(fmt.Sprintf("moniker %s: %v", id, err)), nil
		}
		for i := range matches {
			if matches[i].Symbol.ID == sym.ID {
				continue
			}
			more, err := s.store.References(&matches[i].Symbol, false)
			if err != nil {
				return errResult(fmt.Sprintf("references: %v", err)), nil
			}
			for _, r := range more {
				k := locationKey{r.Project, r.Path, r.StartLine, r.StartChar}
				if !seen[k] {
					seen[k] = true
					refs = append(refs, r)
				}
			}
		}
	}

	return jsonResult(map[string]any{
		"symbol":     sym,
		"monikers":   monikers,
		"count":      len(refs),
		"references": refs,
	}), nil
}

func (s *Server) handleHover(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	pos, err := s.resolvePosition(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	hover, err := s.store.HoverAt(pos.project, pos.relPath, pos.line, pos.char)
	if err != nil {
		return positionError(pos, err), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: hover},
		},
	}, nil
}

func (s *Server) handleFindMoniker(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	id := getStringArg(args, "identifier")
	if id == "" {
		return errResult("identifier is required"), nil
	}

	matches, err := s.store.SymbolsByMoniker(id)
	if err != nil {
		return errResult(fmt.Sprintf("find moniker: %v", err)), nil
	}
	if len(matches) == 0 {
		return errResult(fmt.Sprintf("no symbol carries moniker %s", id)), nil
	}
	return jsonResult(map[string]any{
		"identifier": id,
		"matches":    matches,
	}), nil
}
