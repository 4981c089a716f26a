package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"voicebar/permission"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const statusToolName = "voicebar_permission_status"

// snapshotSource is the part of permission.Gate the server reads.
type snapshotSource interface {
	Status() (*permission.Snapshot, error)
	Inspect(ctx context.Context) (*permission.Snapshot, error)
}

// PermissionStatusServer exposes the permission snapshot to local agents
// as a read-only MCP tool.
type PermissionStatusServer struct {
	mcpServer  *server.MCPServer
	httpServer *http.Server
	listener   net.Listener
	source     snapshotSource
}

// NewPermissionStatusServer creates a new MCP server over source
func NewPermissionStatusServer(source snapshotSource) *PermissionStatusServer {
	s := &PermissionStatusServer{source: source}

	s.mcpServer = server.NewMCPServer(
		"voicebar-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	statusTool := mcp.NewTool(statusToolName,
		mcp.WithDescription(`Report which macOS privacy permissions VoiceBar holds.

Never shows a consent dialog. Returns the last evaluation, or a fresh
check-only reading when refresh is true and the cached result has expired.

Args:
  - refresh (boolean, optional): re-check if the cached result is stale

Returns: JSON with criticalGranted, missing and one result per permission.`),
		mcp.WithBoolean("refresh",
			mcp.Description("Re-check if the cached result is stale"),
		),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			Title:           "Permission Status",
			ReadOnlyHint:    boolPtr(true),
			DestructiveHint: boolPtr(false),
			IdempotentHint:  boolPtr(true),
			OpenWorldHint:   boolPtr(false),
		}),
	)

	s.mcpServer.AddTool(statusTool, s.handleStatus)

	return s
}

func boolPtr(b bool) *bool {
	return &b
}

func (s *PermissionStatusServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refresh, _ := req.Params.Arguments["refresh"].(bool)

	var (
		snap *permission.Snapshot
		err  error
	)
	if refresh {
		snap, err = s.source.Inspect(ctx)
	} else {
		snap, err = s.source.Status()
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	b, err := json.Marshal(snap)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode snapshot: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// Start binds to localhost random port and returns URL
func (s *PermissionStatusServer) Start() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	s.listener = listener

	addr := listener.Addr().(*net.TCPAddr)
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", addr.Port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer)
	mux.Handle("/message", sseServer)

	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server stopped", "error", err)
		}
	}()

	return baseURL + "/sse", nil
}

// Stop shuts down the HTTP server
func (s *PermissionStatusServer) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(context.Background())
	}
	return nil
}
