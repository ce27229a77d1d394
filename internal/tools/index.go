package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/codebase-xref/internal/pipeline"
)

func (s *Server) handleIndexRepository(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	repoPath := getStringArg(args, "repo_path")
	if repoPath == "" {
		return errResult("repo_path is required"), nil
	}
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err)), nil
	}

	p, err := s.index(ctx, absPath, getBoolArg(args, "force"))
	if err != nil {
		return errResult(fmt.Sprintf("indexing failed: %v", err)), nil
	}

	proj, err := s.store.GetProject(p.ProjectName)
	if err != nil {
		return errResult(fmt.Sprintf("indexing failed: %v", err)), nil
	}
	result := map[string]any{
		"project":    p.ProjectName,
		"run_id":     proj.RunID,
		"indexed_at": proj.IndexedAt,
		"unchanged":  p.Unchanged,
	}
	if !p.Unchanged {
		result["documents"] = p.Stats.Documents
		result["symbols"] = p.Stats.Symbols
		result["definitions"] = p.Stats.Definitions
		result["references"] = p.Stats.References
		result["monikers"] = p.Stats.Monikers
	}
	return jsonResult(result), nil
}

// index runs the pipeline under indexMu.
func (s *Server) index(ctx context.Context, root string, force bool) (*pipeline.Pipeline, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	p := pipeline.New(ctx, s.store, root, nil)
	p.Force = force
	p.ToolVersion = s.version
	if err := p.Run(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reindex is the watcher callback: it re-runs indexing for a known project.
func (s *Server) Reindex(ctx context.Context, _, rootPath string) error {
	_, err := s.index(ctx, rootPath, false)
	return err
}
