package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolflow/internal/adapters"
	"toolflow/internal/apperr"
	"toolflow/internal/auth"
	"toolflow/internal/config"
	"toolflow/internal/execution"
	"toolflow/internal/gateway"
	"toolflow/internal/logging"
	"toolflow/internal/repository"
	"toolflow/pkg/models"
)

const testUserHeader = "X-Test-User"

type scriptedExecutor struct {
	executeTool func(ctx context.Context, tool string, params execution.StepParams) (*models.ToolResponse, error)
}

func (s *scriptedExecutor) ExecuteChat(ctx context.Context, params execution.ChatParams) (*models.ToolResponse, error) {
	return &models.ToolResponse{Status: models.ResponseStatusSuccess, Content: "chat reply"}, nil
}

func (s *scriptedExecutor) ExecuteTool(ctx context.Context, tool string, params execution.StepParams) (*models.ToolResponse, error) {
	if s.executeTool != nil {
		return s.executeTool(ctx, tool, params)
	}
	return &models.ToolResponse{Status: models.ResponseStatusSuccess, Content: "step done"}, nil
}

func (s *scriptedExecutor) StreamTool(ctx context.Context, tool string, params execution.StepParams) (<-chan models.StreamChunk, error) {
	ch := make(chan models.StreamChunk, 1)
	ch <- models.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (s *scriptedExecutor) HealthCheck(ctx context.Context) bool { return true }

// newTestAPI wires the handlers over an in-memory store behind a header
// based identity shim standing in for the OIDC middleware.
func newTestAPI(t *testing.T) (*echo.Echo, *repository.MemStore, *scriptedExecutor) {
	t.Helper()

	store := repository.NewMemStore()
	exec := &scriptedExecutor{}
	gw := gateway.New(store, exec, logging.NewNop())
	server := NewServer(gw, nil, logging.NewNop())

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get(testUserHeader); uid != "" {
				c.SetRequest(c.Request().WithContext(auth.WithUserID(c.Request().Context(), uid)))
			}
			return next(c)
		}
	})
	server.RegisterRoutes(e.Group("/api/v1"))
	return e, store, exec
}

func doJSON(e *echo.Echo, method, path, user, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestSubmitStepEndpoint(t *testing.T) {
	e, _, exec := newTestAPI(t)

	var gotExtra map[string]any
	exec.executeTool = func(ctx context.Context, tool string, params execution.StepParams) (*models.ToolResponse, error) {
		gotExtra = params.Extra
		return &models.ToolResponse{Status: models.ResponseStatusSuccess, Content: "found it"}, nil
	}

	body := `{
		"tool_name": "debug",
		"step": "inspect the logs",
		"step_number": 1,
		"total_steps": 2,
		"next_step_required": true,
		"findings": "suspicious restart loop",
		"relevant_files": ["svc.go"],
		"temperature": 0.2
	}`
	rec := doJSON(e, http.MethodPost, "/api/v1/steps", "alice", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result gateway.SubmitStepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ConversationID)
	assert.NotEmpty(t, result.WorkflowID)
	require.NotNil(t, result.Response)
	assert.Equal(t, "found it", result.Response.Content)

	// Unknown body fields reached the executor as the opaque bag.
	assert.Equal(t, map[string]any{
		"relevant_files": []any{"svc.go"},
		"temperature":    0.2,
	}, gotExtra)
}

func TestSubmitStepUnknownToolProblem(t *testing.T) {
	e, store, _ := newTestAPI(t)

	body := `{"tool_name":"summon","step":"x","step_number":1,"total_steps":1,"next_step_required":false,"findings":"f"}`
	rec := doJSON(e, http.MethodPost, "/api/v1/steps", "alice", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	p := decodeProblem(t, rec)
	assert.Equal(t, "validation", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "tool_name", p.Field)
	assert.False(t, p.Retryable)

	// Rejected before persistence.
	convs, err := store.ListConversations(context.Background(), "alice", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestSubmitStepMalformedBody(t *testing.T) {
	e, _, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/steps", "alice", `{"tool_name": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "body", p.Field)
}

func TestSubmitStepRequiresAuth(t *testing.T) {
	e, _, _ := newTestAPI(t)

	body := `{"tool_name":"debug","step":"x","step_number":1,"total_steps":1,"next_step_required":false,"findings":"f"}`
	rec := doJSON(e, http.MethodPost, "/api/v1/steps", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "unauthenticated", p.Title)
}

func TestSubmitStepConflictProblem(t *testing.T) {
	e, _, _ := newTestAPI(t)

	body := `{"tool_name":"debug","step":"only","step_number":1,"total_steps":1,"next_step_required":false,"findings":"f"}`
	rec := doJSON(e, http.MethodPost, "/api/v1/steps", "alice", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var result gateway.SubmitStepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	next := `{"tool_name":"debug","step":"late","step_number":2,"total_steps":2,"next_step_required":false,"findings":"f",` +
		`"conversation_id":"` + result.ConversationID + `","workflow_id":"` + result.WorkflowID + `"}`
	rec = doJSON(e, http.MethodPost, "/api/v1/steps", "alice", next)
	require.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "conflict", p.Title)
	assert.False(t, p.Retryable)
}

func TestSubmitStepTimeoutProblemIsRetryable(t *testing.T) {
	e, _, exec := newTestAPI(t)

	exec.executeTool = func(ctx context.Context, tool string, params execution.StepParams) (*models.ToolResponse, error) {
		return nil, apperr.New(apperr.Timeout, "tool call timed out")
	}

	body := `{"tool_name":"debug","step":"x","step_number":1,"total_steps":2,"next_step_required":true,"findings":"f"}`
	rec := doJSON(e, http.MethodPost, "/api/v1/steps", "alice", body)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "timeout", p.Title)
	assert.True(t, p.Retryable)
}

func TestChatEndpoint(t *testing.T) {
	e, _, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/chat", "alice", `{"prompt":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result gateway.ChatResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ConversationID)
	assert.Equal(t, "chat reply", result.Response.Content)
}

func TestConversationLifecycleEndpoints(t *testing.T) {
	e, _, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/conversations", "alice", `{"tool_type":"debug","title":"session one"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "debug", conv.ToolType)

	rec = doJSON(e, http.MethodGet, "/api/v1/conversations?limit=10&offset=0", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rec = doJSON(e, http.MethodPatch, "/api/v1/conversations/"+conv.ID, "alice", `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.NotNil(t, updated.Title)
	assert.Equal(t, "renamed", *updated.Title)

	// Another user sees 403, not 404: the resource exists but is not theirs.
	rec = doJSON(e, http.MethodGet, "/api/v1/conversations/"+conv.ID, "mallory", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/conversations/"+conv.ID, "alice", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/conversations/"+conv.ID, "alice", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "not_found", p.Title)
}

func TestListConversationsRejectsBadPagination(t *testing.T) {
	e, _, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/conversations?limit=many", "alice", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "limit", p.Field)

	rec = doJSON(e, http.MethodGet, "/api/v1/conversations?offset=x", "alice", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowEndpoints(t *testing.T) {
	e, _, _ := newTestAPI(t)

	body := `{"tool_name":"debug","step":"x","step_number":1,"total_steps":2,"next_step_required":true,"findings":"f"}`
	rec := doJSON(e, http.MethodPost, "/api/v1/steps", "alice", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var result gateway.SubmitStepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/"+result.WorkflowID, "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var wf models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Equal(t, models.WorkflowRunning, wf.Status)
	assert.Equal(t, 1, wf.CurrentStep)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/"+result.WorkflowID+"/steps", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var steps []models.WorkflowStep
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	assert.Len(t, steps, 2)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/"+result.WorkflowID, "mallory", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/workflows/nope", "alice", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	newHealthServer := func(execURL string) *echo.Echo {
		cfg := &config.Config{}
		cfg.Storage.Mode = config.StorageModeRemote
		cfg.RemoteStore.URL = healthy.URL
		cfg.Execution.Mode = config.ExecutionModeRemote
		cfg.Execution.GatewayURL = execURL

		factory := adapters.New(cfg, logging.NewNop())
		server := NewServer(nil, factory, logging.NewNop())
		e := echo.New()
		e.GET("/healthz", server.HandleHealth)
		return e
	}

	t.Run("ok", func(t *testing.T) {
		rec := doJSON(newHealthServer(healthy.URL), http.MethodGet, "/healthz", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var h HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, "ok", h.Status)
		assert.True(t, h.Adapters.OK)
	})

	t.Run("degraded", func(t *testing.T) {
		rec := doJSON(newHealthServer(down.URL), http.MethodGet, "/healthz", "", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var h HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, "degraded", h.Status)
		assert.False(t, h.Adapters.ExecutorOK)
	})
}
