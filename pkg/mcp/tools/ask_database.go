// Package tools provides the engine's MCP tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/services"
)

// mcpUserID is the identity recorded for tool calls that carry no user_id.
const mcpUserID = "mcp"

// askDatabaseResult is the minimal response shape returned to the caller.
type askDatabaseResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// RegisterAskDatabaseTool adds the ask_database tool: one natural-language
// question driven through the full agent pipeline.
func RegisterAskDatabaseTool(s *server.MCPServer, agent services.AgentService, logger *zap.Logger) {
	tool := mcp.NewTool(
		"ask_database",
		mcp.WithDescription(
			"Ask a natural-language question against a database. "+
				"The engine plans the question, generates safe read-only queries against the "+
				"database's live schema, executes them and returns the result rows with a "+
				"short explanation. Set dry_run=true to preview the generated queries without "+
				"touching the database. "+
				"Example: ask_database(query='top 5 products by revenue', db_url='postgresql://host/shop')",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The natural-language question (3-500 characters)"),
		),
		mcp.WithString(
			"db_url",
			mcp.Required(),
			mcp.Description("Connection URL of the target database (mongodb://, postgresql:// or mysql://)"),
		),
		mcp.WithString(
			"db_type",
			mcp.Description("Optional - explicit database kind (mongodb, postgresql, mysql); inferred from the URL scheme when omitted"),
		),
		mcp.WithBoolean(
			"dry_run",
			mcp.Description("Optional - validate and preview generated queries without executing them"),
		),
		mcp.WithString(
			"user_id",
			mcp.Description("Optional - identity to attribute the turn to; defaults to 'mcp'"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}
		dbURL, err := req.RequireString("db_url")
		if err != nil {
			return nil, err
		}

		userID := getOptionalString(req, "user_id")
		if userID == "" {
			userID = mcpUserID
		}

		resp, err := agent.HandleQuery(ctx, &models.AgentRequest{
			UserID: userID,
			Query:  query,
			DBURL:  dbURL,
			DBType: getOptionalString(req, "db_type"),
			DryRun: getOptionalBool(req, "dry_run"),
		})
		if err != nil {
			// Framing errors are actionable by the caller; report them in
			// the structured error shape instead of an MCP protocol error.
			logger.Debug("ask_database rejected", zap.Error(err))
			return NewErrorResult(string(apperrors.KindOf(err)), err.Error()), nil
		}

		out, err := json.Marshal(askDatabaseResult{
			Success: resp.Success,
			Data:    resp.Data,
			Message: resp.Message,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ask_database result: %w", err)
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}
