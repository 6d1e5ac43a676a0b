package toolset

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MCPServer exposes a Registry as MCP tools.
type MCPServer struct {
	mcp    *mcp.Server
	reg    *Registry
	logger *zap.Logger
}

type fileInput struct {
	Filename string `json:"filename" jsonschema:"Path relative to the workspace root"`
}

type createFileInput struct {
	Filename string `json:"filename" jsonschema:"Path relative to the workspace root"`
	Content  string `json:"content" jsonschema:"Full file content"`
}

type listFilesInput struct{}

type calculateInput struct {
	Expression string `json:"expression" jsonschema:"Arithmetic expression such as (2 + 3) * 4"`
}

type logActionInput struct {
	Action  string `json:"action" jsonschema:"Short name of the action performed"`
	Details string `json:"details,omitempty" jsonschema:"Optional details"`
}

// NewMCPServer registers every capability in reg on a new MCP server.
func NewMCPServer(reg *Registry, name, version string, logger *zap.Logger) (*MCPServer, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MCPServer{
		mcp:    mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		reg:    reg,
		logger: logger,
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

func (s *MCPServer) registerTools() error {
	for _, name := range s.reg.Names() {
		c, err := s.reg.Lookup(name)
		if err != nil {
			return err
		}
		tool := &mcp.Tool{Name: name, Description: c.Description()}

		switch name {
		case CreateFile:
			addTool(s, tool, func(in createFileInput) Args {
				return Args{"filename": in.Filename, "content": in.Content}
			})
		case ReadFile:
			addTool(s, tool, func(in fileInput) Args {
				return Args{"filename": in.Filename}
			})
		case ListFiles:
			addTool(s, tool, func(listFilesInput) Args { return Args{} })
		case Calculate:
			addTool(s, tool, func(in calculateInput) Args {
				return Args{"expression": in.Expression}
			})
		case LogAction:
			addTool(s, tool, func(in logActionInput) Args {
				return Args{"action": in.Action, "details": in.Details}
			})
		default:
			return fmt.Errorf("%w: no MCP schema for %s", ErrUnknownCapability, name)
		}
	}
	return nil
}

// addTool binds a typed MCP input to a registry invocation. Unsuccessful
// results are flagged with IsError so the caller can see the failure.
func addTool[In any](s *MCPServer, tool *mcp.Tool, toArgs func(In) Args) {
	name := tool.Name
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Result, error) {
		res := s.reg.Invoke(ctx, name, toArgs(in))
		s.logger.Debug("mcp tool invoked", zap.String("tool", name), zap.Bool("success", res.Success))
		if !res.Success {
			return &mcp.CallToolResult{IsError: true}, res, nil
		}
		return nil, res, nil
	})
}

// Server returns the underlying MCP server.
func (s *MCPServer) Server() *mcp.Server {
	return s.mcp
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *MCPServer) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport", zap.Strings("tools", s.reg.Names()))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
