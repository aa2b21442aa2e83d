package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/datapilot-ai/datapilot-engine/pkg/services"
)

// RegisterCapabilitiesTool adds the database_capabilities tool describing
// what the engine can do: supported databases and capability labels.
func RegisterCapabilitiesTool(s *server.MCPServer, agent services.AgentService) {
	tool := mcp.NewTool(
		"database_capabilities",
		mcp.WithDescription("Returns the engine version, supported database kinds and capability list"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := json.Marshal(agent.Status())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal capabilities: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}
