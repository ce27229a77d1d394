// Package tools exposes the cross-reference store as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/codebase-xref/internal/store"
)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp     *mcp.Server
	store   *store.Store
	version string

	// indexMu serialises index_repository with watcher re-indexing.
	indexMu sync.Mutex
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(s *store.Store, version string) *Server {
	srv := &Server{
		store:   s,
		version: version,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "codebase-xref",
				Version: version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

const positionProperties = `
				"project": {
					"type": "string",
					"description": "Project name (see list_projects). Optional when file is absolute."
				},
				"file": {
					"type": "string",
					"description": "File path, relative to the project root or absolute"
				},
				"line": {
					"type": "integer",
					"description": "Zero-based line"
				},
				"character": {
					"type": "integer",
					"description": "Zero-based column in UTF-16 code units"
				}`

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "index_repository",
		Description: "Index a Go module into the cross-reference store. Type-checks every package, records definitions, references, hover text and monikers. Unchanged repositories are skipped via content hashing.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_path": {
					"type": "string",
					"description": "Absolute path to the module root (the directory holding go.mod)"
				},
				"force": {
					"type": "boolean",
					"description": "Re-index even when no file changed"
				}
			},
			"required": ["repo_path"]
		}`),
	}, s.handleIndexRepository)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "goto_definition",
		Description: "Return the definition locations of the symbol at a position. Aliases (import names, type aliases) resolve to their target.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + positionProperties + `
			},
			"required": ["file", "line", "character"]
		}`),
	}, s.handleGotoDefinition)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_references",
		Description: "Return every reference to the symbol at a position, including uses through interface methods it implements and, across projects, uses that share its moniker.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + positionProperties + `,
				"include_declaration": {
					"type": "boolean",
					"description": "Also return the definition sites (default: false)"
				}
			},
			"required": ["file", "line", "character"]
		}`),
	}, s.handleFindReferences)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "hover",
		Description: "Return the signature and doc comment (markdown) of the symbol at a position.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + positionProperties + `
			},
			"required": ["file", "line", "character"]
		}`),
	}, s.handleHover)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_moniker",
		Description: "Find symbols by moniker identifier across all indexed projects, e.g. 'example.com/mod/pkg:Type.Method'. Returns each match with its definitions.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"identifier": {
					"type": "string",
					"description": "Moniker identifier: <package path>:<export path>"
				}
			},
			"required": ["identifier"]
		}`),
	}, s.handleFindMoniker)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_summary",
		Description: "Return statistics of an indexed project: document, symbol, range and moniker counts, plus breakdowns by resolution variant and definition kind.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project": {
					"type": "string",
					"description": "Project name"
				}
			},
			"required": ["project"]
		}`),
	}, s.handleGetSummary)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_projects",
		Description: "List all indexed projects with their indexed_at timestamp, root path, run id and document count.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleListProjects)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "delete_project",
		Description: "Delete an indexed project and all its cross-reference data. This action is irreversible.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_name": {
					"type": "string",
					"description": "Name of the project to delete"
				}
			},
			"required": ["project_name"]
		}`),
	}, s.handleDeleteProject)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

// getBoolArg extracts a boolean argument from parsed args.
func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
