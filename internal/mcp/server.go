// Package mcp exposes the workflow gateway's tools over the Model
// Context Protocol so MCP clients can drive the same orchestration
// core the REST API uses.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"toolflow/internal/auth"
	"toolflow/internal/gateway"
	"toolflow/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	gateway   *gateway.Gateway
	userID    string
}

// NewServer creates the MCP surface. MCP clients do not run the cookie
// flow, so calls are attributed to the given user id.
func NewServer(gw *gateway.Gateway, userID string) *Server {
	if userID == "" {
		userID = auth.DevUserID
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Toolflow Workflow Gateway",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		gateway: gw,
		userID:  userID,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"submit_step",
			mcp.WithDescription("Submit one step of a multi-step workflow tool ("+strings.Join(models.WorkflowTools(), ", ")+")"),
			mcp.WithString("tool_name", mcp.Required(), mcp.Description("The workflow tool to run")),
			mcp.WithString("step", mcp.Required(), mcp.Description("What this step does")),
			mcp.WithNumber("step_number", mcp.Required(), mcp.Description("1-based step number")),
			mcp.WithNumber("total_steps", mcp.Required(), mcp.Description("Expected number of steps")),
			mcp.WithBoolean("next_step_required", mcp.Required(), mcp.Description("Whether another step follows")),
			mcp.WithString("findings", mcp.Required(), mcp.Description("Findings so far")),
			mcp.WithString("conversation_id", mcp.Description("Existing conversation to continue")),
			mcp.WithString("workflow_id", mcp.Description("Existing workflow to continue")),
		),
		s.handleSubmitStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"chat",
			mcp.WithDescription("Single request/response chat with no workflow semantics"),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The prompt to send")),
			mcp.WithString("conversation_id", mcp.Description("Existing conversation to continue")),
		),
		s.handleChat,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflow_steps",
			mcp.WithDescription("List the append-only step log of a workflow"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The workflow to inspect")),
		),
		s.handleListSteps,
	)
}

func (s *Server) handleSubmitStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	req := gateway.SubmitStepRequest{Extra: map[string]any{}}
	for key, val := range args {
		switch key {
		case "tool_name":
			req.ToolName, _ = val.(string)
		case "step":
			req.Step, _ = val.(string)
		case "step_number":
			if n, ok := val.(float64); ok {
				req.StepNumber = int(n)
			}
		case "total_steps":
			if n, ok := val.(float64); ok {
				req.TotalSteps = int(n)
			}
		case "next_step_required":
			req.NextStepRequired, _ = val.(bool)
		case "findings":
			req.Findings, _ = val.(string)
		case "conversation_id":
			if s, ok := val.(string); ok && s != "" {
				req.ConversationID = &s
			}
		case "workflow_id":
			if s, ok := val.(string); ok && s != "" {
				req.WorkflowID = &s
			}
		default:
			req.Extra[key] = val
		}
	}
	if len(req.Extra) == 0 {
		req.Extra = nil
	}

	result, err := s.gateway.SubmitStep(ctx, s.userID, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit step: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	prompt, ok := args["prompt"].(string)
	if !ok || prompt == "" {
		return mcp.NewToolResultError("Missing required parameter: prompt"), nil
	}

	req := gateway.ChatRequest{Prompt: prompt}
	if id, ok := args["conversation_id"].(string); ok && id != "" {
		req.ConversationID = &id
	}

	result, err := s.gateway.Chat(ctx, s.userID, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to chat: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListSteps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	steps, err := s.gateway.ListWorkflowSteps(ctx, s.userID, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list steps: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(steps)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
