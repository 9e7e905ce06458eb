package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"toolflow/internal/apperr"
	"toolflow/internal/auth"
	"toolflow/internal/repository"
)

// CreateConversationRequest creates an empty conversation up front,
// before any step or chat has happened.
type CreateConversationRequest struct {
	Title    *string `json:"title,omitempty"`
	ToolType string  `json:"tool_type,omitempty"`
}

// UpdateConversationRequest is a partial conversation update.
type UpdateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}

// ListConversations returns the caller's conversations, newest first.
// (GET /api/v1/conversations)
func (s *Server) ListConversations(c echo.Context) error {
	limit, offset := 50, 0
	params := c.QueryParams()
	if params.Has("limit") {
		if err := runtime.BindQueryParameter("form", true, false, "limit", params, &limit); err != nil {
			return s.writeError(c, apperr.Invalid("limit", "limit must be an integer"))
		}
	}
	if params.Has("offset") {
		if err := runtime.BindQueryParameter("form", true, false, "offset", params, &offset); err != nil {
			return s.writeError(c, apperr.Invalid("offset", "offset must be an integer"))
		}
	}

	convs, err := s.Gateway.ListConversations(c.Request().Context(), auth.UserID(c.Request().Context()), limit, offset)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, convs)
}

// CreateConversation creates an empty conversation owned by the caller.
// (POST /api/v1/conversations)
func (s *Server) CreateConversation(c echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("body", "request body is not valid JSON"))
	}

	conv, err := s.Gateway.CreateConversation(c.Request().Context(), auth.UserID(c.Request().Context()), req.ToolType, req.Title)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// GetConversation returns one conversation owned by the caller.
// (GET /api/v1/conversations/:id)
func (s *Server) GetConversation(c echo.Context) error {
	conv, err := s.Gateway.GetConversation(c.Request().Context(), auth.UserID(c.Request().Context()), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// UpdateConversation applies a partial update.
// (PATCH /api/v1/conversations/:id)
func (s *Server) UpdateConversation(c echo.Context) error {
	var req UpdateConversationRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Invalid("body", "request body is not valid JSON"))
	}

	conv, err := s.Gateway.UpdateConversation(c.Request().Context(), auth.UserID(c.Request().Context()), c.Param("id"),
		repository.ConversationUpdate{Title: req.Title})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteConversation removes a conversation and everything under it.
// (DELETE /api/v1/conversations/:id)
func (s *Server) DeleteConversation(c echo.Context) error {
	if err := s.Gateway.DeleteConversation(c.Request().Context(), auth.UserID(c.Request().Context()), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMessages returns a conversation's messages in order.
// (GET /api/v1/conversations/:id/messages)
func (s *Server) ListMessages(c echo.Context) error {
	msgs, err := s.Gateway.ListMessages(c.Request().Context(), auth.UserID(c.Request().Context()), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}
