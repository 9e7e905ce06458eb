package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"toolflow/internal/apperr"
	"toolflow/pkg/models"
)

// errAbsent marks a 404 from the remote store; callers translate it to
// either a nil result (gets) or a not-found error (updates/deletes).
var errAbsent = errors.New("remote store: absent")

// RemoteStore implements Store against the cloud store's HTTP API. The
// remote service applies the same non-terminal guard on workflow
// advances that the Postgres backend enforces with SQL.
type RemoteStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Store = (*RemoteStore)(nil)

// NewRemoteStore creates a RemoteStore for the given base URL.
func NewRemoteStore(baseURL, apiKey string) *RemoteStore {
	return &RemoteStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote store: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("remote store: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "remote store unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errAbsent
	case resp.StatusCode == http.StatusConflict:
		var p struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&p)
		return apperr.New(apperr.Conflict, p.Detail)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Newf(apperr.Internal, "remote store: %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("remote store: decode response: %w", err)
		}
	}
	return nil
}

// --- users ---

func (s *RemoteStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	var w wireUser
	if err := s.do(ctx, http.MethodPost, "/v1/users", userToWire(user), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var w wireUser
	err := s.do(ctx, http.MethodGet, "/v1/users/"+id, nil, &w)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	var w wireUser
	err := s.do(ctx, http.MethodPatch, "/v1/users/"+id, wireUserUpdate{Email: upd.Email, Name: upd.Name}, &w)
	if errors.Is(err, errAbsent) {
		return nil, apperr.Newf(apperr.NotFound, "user %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

// --- conversations ---

func (s *RemoteStore) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	var w wireConversation
	if err := s.do(ctx, http.MethodPost, "/v1/conversations", conversationToWire(conv), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var w wireConversation
	err := s.do(ctx, http.MethodGet, "/v1/conversations/"+id, nil, &w)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) ListConversations(ctx context.Context, ownerID string, limit, offset int) ([]*models.Conversation, error) {
	path := "/v1/conversations?ownerId=" + ownerID +
		"&limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	var ws []wireConversation
	if err := s.do(ctx, http.MethodGet, path, nil, &ws); err != nil {
		return nil, err
	}
	convs := make([]*models.Conversation, 0, len(ws))
	for _, w := range ws {
		convs = append(convs, w.toModel())
	}
	return convs, nil
}

func (s *RemoteStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*models.Conversation, error) {
	var w wireConversation
	err := s.do(ctx, http.MethodPatch, "/v1/conversations/"+id, wireConversationUpdate{Title: upd.Title}, &w)
	if errors.Is(err, errAbsent) {
		return nil, apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) TouchConversation(ctx context.Context, id string) error {
	err := s.do(ctx, http.MethodPost, "/v1/conversations/"+id+"/touch", nil, nil)
	if errors.Is(err, errAbsent) {
		return apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	return err
}

func (s *RemoteStore) DeleteConversation(ctx context.Context, id string) error {
	err := s.do(ctx, http.MethodDelete, "/v1/conversations/"+id, nil, nil)
	if errors.Is(err, errAbsent) {
		return apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	return err
}

// --- messages ---

func (s *RemoteStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	var w wireMessage
	if err := s.do(ctx, http.MethodPost, "/v1/messages", messageToWire(msg), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	var ws []wireMessage
	if err := s.do(ctx, http.MethodGet, "/v1/conversations/"+conversationID+"/messages", nil, &ws); err != nil {
		return nil, err
	}
	msgs := make([]*models.Message, 0, len(ws))
	for _, w := range ws {
		msgs = append(msgs, w.toModel())
	}
	return msgs, nil
}

// --- workflows ---

func (s *RemoteStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	var w wireWorkflow
	if err := s.do(ctx, http.MethodPost, "/v1/workflows", workflowToWire(wf), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	var w wireWorkflow
	err := s.do(ctx, http.MethodGet, "/v1/workflows/"+id, nil, &w)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) ListWorkflows(ctx context.Context, conversationID string) ([]*models.Workflow, error) {
	var ws []wireWorkflow
	if err := s.do(ctx, http.MethodGet, "/v1/conversations/"+conversationID+"/workflows", nil, &ws); err != nil {
		return nil, err
	}
	wfs := make([]*models.Workflow, 0, len(ws))
	for _, w := range ws {
		wfs = append(wfs, w.toModel())
	}
	return wfs, nil
}

func (s *RemoteStore) AdvanceWorkflow(ctx context.Context, id string, upd WorkflowUpdate) (*models.Workflow, error) {
	body := wireWorkflowAdvance{
		CurrentStep:    upd.CurrentStep,
		ContinuationID: upd.ContinuationID,
		Result:         upd.Result,
	}
	if upd.Status != nil {
		st := string(*upd.Status)
		body.Status = &st
	}
	var w wireWorkflow
	err := s.do(ctx, http.MethodPost, "/v1/workflows/"+id+"/advance", body, &w)
	if errors.Is(err, errAbsent) {
		return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) RewindWorkflow(ctx context.Context, id string, step int) (*models.Workflow, error) {
	var w wireWorkflow
	err := s.do(ctx, http.MethodPost, "/v1/workflows/"+id+"/rewind",
		map[string]int{"currentStep": step}, &w)
	if errors.Is(err, errAbsent) {
		return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

// --- workflow steps ---

func (s *RemoteStore) CreateWorkflowStep(ctx context.Context, step *models.WorkflowStep) (*models.WorkflowStep, error) {
	var w wireWorkflowStep
	if err := s.do(ctx, http.MethodPost, "/v1/steps", stepToWire(step), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) ListWorkflowSteps(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	var ws []wireWorkflowStep
	if err := s.do(ctx, http.MethodGet, "/v1/workflows/"+workflowID+"/steps", nil, &ws); err != nil {
		return nil, err
	}
	steps := make([]*models.WorkflowStep, 0, len(ws))
	for _, w := range ws {
		steps = append(steps, w.toModel())
	}
	return steps, nil
}

func (s *RemoteStore) SupersedeSteps(ctx context.Context, workflowID string, fromStep int) (int, error) {
	var out struct {
		Superseded int `json:"superseded"`
	}
	err := s.do(ctx, http.MethodPost, "/v1/workflows/"+workflowID+"/steps/supersede",
		map[string]int{"fromStep": fromStep}, &out)
	if err != nil {
		return 0, err
	}
	return out.Superseded, nil
}

// --- files ---

func (s *RemoteStore) CreateFile(ctx context.Context, file *models.File) (*models.File, error) {
	var w wireFile
	if err := s.do(ctx, http.MethodPost, "/v1/files", fileToWire(file), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) GetFile(ctx context.Context, id string) (*models.File, error) {
	var w wireFile
	err := s.do(ctx, http.MethodGet, "/v1/files/"+id, nil, &w)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) DeleteFile(ctx context.Context, id string) error {
	err := s.do(ctx, http.MethodDelete, "/v1/files/"+id, nil, nil)
	if errors.Is(err, errAbsent) {
		return apperr.Newf(apperr.NotFound, "file %s not found", id)
	}
	return err
}

// --- user settings ---

func (s *RemoteStore) CreateUserSettings(ctx context.Context, settings *models.UserSettings) (*models.UserSettings, error) {
	var w wireUserSettings
	if err := s.do(ctx, http.MethodPost, "/v1/settings", settingsToWire(settings), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	var w wireUserSettings
	err := s.do(ctx, http.MethodGet, "/v1/settings/"+userID, nil, &w)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) UpdateUserSettings(ctx context.Context, userID string, upd SettingsUpdate) (*models.UserSettings, error) {
	var w wireUserSettings
	err := s.do(ctx, http.MethodPatch, "/v1/settings/"+userID,
		wireSettingsUpdate{DefaultModel: upd.DefaultModel, Temperature: upd.Temperature, UseWebSearch: upd.UseWebSearch}, &w)
	if errors.Is(err, errAbsent) {
		return nil, apperr.Newf(apperr.NotFound, "settings for user %s not found", userID)
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

// --- sessions ---

func (s *RemoteStore) CreateSession(ctx context.Context, session *models.Session) (*models.Session, error) {
	var w wireSession
	if err := s.do(ctx, http.MethodPost, "/v1/sessions", sessionToWire(session), &w); err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var w wireSession
	err := s.do(ctx, http.MethodGet, "/v1/sessions/"+id, nil, &w)
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w.toModel(), nil
}

func (s *RemoteStore) DeleteSession(ctx context.Context, id string) error {
	err := s.do(ctx, http.MethodDelete, "/v1/sessions/"+id, nil, nil)
	if errors.Is(err, errAbsent) {
		return apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	return err
}

// Ping checks the remote store's health endpoint.
func (s *RemoteStore) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}
