package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/codebase-xref/internal/store"
)

func (s *Server) handleListProjects(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects()
	if err != nil {
		return errResult(fmt.Sprintf("list projects: %v", err)), nil
	}

	type projectInfo struct {
		*store.Project
		Documents int `json:"documents"`
		Symbols   int `json:"symbols"`
	}

	result := make([]projectInfo, 0, len(projects))
	for _, p := range projects {
		info := projectInfo{Project: p}
		if sum, err := s.store.GetSummary(p.Name); err == nil {
			info.Documents = sum.Documents
			info.Symbols = sum.Symbols
		}
		result = append(result, info)
	}
	return jsonResult(result), nil
}

func (s *Server) handleDeleteProject(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	name := getStringArg(args, "project_name")
	if name == "" {
		return errResult("project_name is required"), nil
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if err := s.store.DeleteProject(name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errResult(fmt.Sprintf("project not found: %s", name)), nil
		}
		return errResult(fmt.Sprintf("delete failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"deleted": name,
		"status":  "ok",
	}), nil
}

func (s *Server) handleGetSummary(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	project := getStringArg(args, "project")
	if project == "" {
		return errResult("project is required"), nil
	}

	sum, err := s.store.GetSummary(project)
	if err != nil {
		return errResult(fmt.Sprintf("summary: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"project": project,
		"summary": sum,
	}), nil
}
