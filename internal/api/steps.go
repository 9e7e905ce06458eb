package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"toolflow/internal/apperr"
	"toolflow/internal/auth"
	"toolflow/internal/gateway"
)

// knownStepFields are the core step submission fields; everything else
// in the body is passed through to the execution backend untouched.
var knownStepFields = map[string]struct{}{
	"tool_name":           {},
	"step":                {},
	"step_number":         {},
	"total_steps":         {},
	"next_step_required":  {},
	"findings":            {},
	"hypothesis":          {},
	"confidence":          {},
	"conversation_id":     {},
	"workflow_id":         {},
	"continuation_id":     {},
	"backtrack_from_step": {},
}

// bindStepRequest decodes the body twice: once into the typed request
// and once into a map so unknown tool-specific fields survive as the
// opaque extension bag.
func bindStepRequest(c echo.Context) (gateway.SubmitStepRequest, error) {
	var req gateway.SubmitStepRequest

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, 4<<20))
	if err != nil {
		return req, apperr.Invalid("body", "failed to read request body")
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, apperr.Invalid("body", "request body is not valid JSON: "+err.Error())
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, apperr.Invalid("body", "request body is not a JSON object")
	}
	for key := range raw {
		if _, known := knownStepFields[key]; known {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		req.Extra = raw
	}
	return req, nil
}

// SubmitStep handles one workflow step submission.
// (POST /api/v1/steps)
func (s *Server) SubmitStep(c echo.Context) error {
	req, err := bindStepRequest(c)
	if err != nil {
		return s.writeError(c, err)
	}

	result, err := s.Gateway.SubmitStep(c.Request().Context(), auth.UserID(c.Request().Context()), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Chat handles the simple chat path.
// (POST /api/v1/chat)
func (s *Server) Chat(c echo.Context) error {
	var req gateway.ChatRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("body", "request body is not valid JSON"))
	}

	result, err := s.Gateway.Chat(c.Request().Context(), auth.UserID(c.Request().Context()), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetWorkflow returns one workflow owned by the caller.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	wf, err := s.Gateway.GetWorkflow(c.Request().Context(), auth.UserID(c.Request().Context()), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// ListWorkflowSteps returns the append-only step log of a workflow.
// (GET /api/v1/workflows/:id/steps)
func (s *Server) ListWorkflowSteps(c echo.Context) error {
	steps, err := s.Gateway.ListWorkflowSteps(c.Request().Context(), auth.UserID(c.Request().Context()), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, steps)
}
