// Package api contains the HTTP handlers for the workflow gateway REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"toolflow/internal/adapters"
	"toolflow/internal/apperr"
	"toolflow/internal/gateway"
	"toolflow/internal/logging"
)

// Server holds the dependencies for the API server.
type Server struct {
	Gateway *gateway.Gateway
	Factory *adapters.Factory
	Logger  *logging.Logger
}

// NewServer creates a new Server.
func NewServer(gw *gateway.Gateway, factory *adapters.Factory, logger *logging.Logger) *Server {
	return &Server{Gateway: gw, Factory: factory, Logger: logger}
}

// RegisterRoutes mounts the API on the given group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/steps", s.SubmitStep)
	g.POST("/chat", s.Chat)

	g.GET("/conversations", s.ListConversations)
	g.POST("/conversations", s.CreateConversation)
	g.GET("/conversations/:id", s.GetConversation)
	g.PATCH("/conversations/:id", s.UpdateConversation)
	g.DELETE("/conversations/:id", s.DeleteConversation)
	g.GET("/conversations/:id/messages", s.ListMessages)

	g.GET("/workflows/:id", s.GetWorkflow)
	g.GET("/workflows/:id/steps", s.ListWorkflowSteps)
}

// HealthStatus is the aggregated health response.
type HealthStatus struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Service   string          `json:"service"`
	Adapters  adapters.Health `json:"adapters"`
}

// HandleHealth reports aggregated adapter health and the active modes.
func (s *Server) HandleHealth(c echo.Context) error {
	h := s.Factory.HealthCheck(c.Request().Context())
	status := "ok"
	code := http.StatusOK
	if !h.OK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, HealthStatus{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   "toolflow",
		Adapters:  h,
	})
}

// ProblemDetails represents an RFC 7807 Problem Details response.
type ProblemDetails struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Timeout:
		return http.StatusGatewayTimeout
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps the error taxonomy onto a Problem Details response.
// Unclassified errors are logged with full context and reported as a
// generic internal error.
func (s *Server) writeError(c echo.Context, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.Logger.Error("unhandled error",
			"path", c.Request().URL.Path, "error", err)
		ae = apperr.New(apperr.Internal, "internal error")
	} else if ae.Kind == apperr.Internal {
		s.Logger.Error("internal error",
			"path", c.Request().URL.Path, "error", err)
	}

	status := statusForKind(ae.Kind)
	problem := ProblemDetails{
		Type:      "about:blank",
		Title:     ae.Kind.String(),
		Status:    status,
		Detail:    ae.Msg,
		Field:     ae.Field,
		Retryable: apperr.Retryable(ae),
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/problem+json")
	res.WriteHeader(status)
	return json.NewEncoder(res).Encode(problem)
}
