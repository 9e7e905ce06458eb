package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolflow/internal/apperr"
	"toolflow/pkg/models"
)

// fakeRemote emulates the cloud store's HTTP API on top of a MemStore,
// speaking the same camelCase wire format the real service uses. The
// contract suite running against it proves the RemoteStore translates
// both directions faithfully.
type fakeRemote struct {
	store *MemStore
}

func newFakeRemote() http.Handler {
	f := &fakeRemote{store: NewMemStore()}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /v1/users", f.createUser)
	mux.HandleFunc("GET /v1/users/{id}", f.getUser)
	mux.HandleFunc("PATCH /v1/users/{id}", f.updateUser)

	mux.HandleFunc("POST /v1/conversations", f.createConversation)
	mux.HandleFunc("GET /v1/conversations", f.listConversations)
	mux.HandleFunc("GET /v1/conversations/{id}", f.getConversation)
	mux.HandleFunc("PATCH /v1/conversations/{id}", f.updateConversation)
	mux.HandleFunc("DELETE /v1/conversations/{id}", f.deleteConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/touch", f.touchConversation)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", f.listMessages)
	mux.HandleFunc("GET /v1/conversations/{id}/workflows", f.listWorkflows)

	mux.HandleFunc("POST /v1/messages", f.createMessage)

	mux.HandleFunc("POST /v1/workflows", f.createWorkflow)
	mux.HandleFunc("GET /v1/workflows/{id}", f.getWorkflow)
	mux.HandleFunc("POST /v1/workflows/{id}/advance", f.advanceWorkflow)
	mux.HandleFunc("POST /v1/workflows/{id}/rewind", f.rewindWorkflow)
	mux.HandleFunc("GET /v1/workflows/{id}/steps", f.listSteps)
	mux.HandleFunc("POST /v1/workflows/{id}/steps/supersede", f.supersedeSteps)

	mux.HandleFunc("POST /v1/steps", f.createStep)

	mux.HandleFunc("POST /v1/files", f.createFile)
	mux.HandleFunc("GET /v1/files/{id}", f.getFile)
	mux.HandleFunc("DELETE /v1/files/{id}", f.deleteFile)

	mux.HandleFunc("POST /v1/settings", f.createSettings)
	mux.HandleFunc("GET /v1/settings/{userId}", f.getSettings)
	mux.HandleFunc("PATCH /v1/settings/{userId}", f.updateSettings)

	mux.HandleFunc("POST /v1/sessions", f.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", f.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", f.deleteSession)

	return mux
}

func (f *fakeRemote) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeRemote) fail(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		w.WriteHeader(http.StatusNotFound)
	case apperr.Conflict:
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (f *fakeRemote) createUser(w http.ResponseWriter, r *http.Request) {
	var in wireUser
	_ = json.NewDecoder(r.Body).Decode(&in)
	u, err := f.store.CreateUser(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, wireUser{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt})
}

func (f *fakeRemote) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := f.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	if u == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.reply(w, wireUser{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt})
}

func (f *fakeRemote) updateUser(w http.ResponseWriter, r *http.Request) {
	var in wireUserUpdate
	_ = json.NewDecoder(r.Body).Decode(&in)
	u, err := f.store.UpdateUser(r.Context(), r.PathValue("id"), UserUpdate{Email: in.Email, Name: in.Name})
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, wireUser{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt})
}

func (f *fakeRemote) createConversation(w http.ResponseWriter, r *http.Request) {
	var in wireConversation
	_ = json.NewDecoder(r.Body).Decode(&in)
	c, err := f.store.CreateConversation(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, conversationToWireFull(c))
}

func (f *fakeRemote) listConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	convs, err := f.store.ListConversations(r.Context(), r.URL.Query().Get("ownerId"), limit, offset)
	if err != nil {
		f.fail(w, err)
		return
	}
	out := make([]wireConversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationToWireFull(c))
	}
	f.reply(w, out)
}

func (f *fakeRemote) getConversation(w http.ResponseWriter, r *http.Request) {
	c, err := f.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	if c == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.reply(w, conversationToWireFull(c))
}

func (f *fakeRemote) updateConversation(w http.ResponseWriter, r *http.Request) {
	var in wireConversationUpdate
	_ = json.NewDecoder(r.Body).Decode(&in)
	c, err := f.store.UpdateConversation(r.Context(), r.PathValue("id"), ConversationUpdate{Title: in.Title})
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, conversationToWireFull(c))
}

func (f *fakeRemote) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := f.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		f.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeRemote) touchConversation(w http.ResponseWriter, r *http.Request) {
	if err := f.store.TouchConversation(r.Context(), r.PathValue("id")); err != nil {
		f.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeRemote) createMessage(w http.ResponseWriter, r *http.Request) {
	var in wireMessage
	_ = json.NewDecoder(r.Body).Decode(&in)
	m, err := f.store.CreateMessage(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, messageToWireFull(m))
}

func (f *fakeRemote) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := f.store.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToWireFull(m))
	}
	f.reply(w, out)
}

func (f *fakeRemote) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var in wireWorkflow
	_ = json.NewDecoder(r.Body).Decode(&in)
	wf, err := f.store.CreateWorkflow(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, workflowToWireFull(wf))
}

func (f *fakeRemote) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := f.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	if wf == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.reply(w, workflowToWireFull(wf))
}

func (f *fakeRemote) listWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs, err := f.store.ListWorkflows(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	out := make([]wireWorkflow, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, workflowToWireFull(wf))
	}
	f.reply(w, out)
}

func (f *fakeRemote) advanceWorkflow(w http.ResponseWriter, r *http.Request) {
	var in wireWorkflowAdvance
	_ = json.NewDecoder(r.Body).Decode(&in)
	upd := WorkflowUpdate{
		CurrentStep:    in.CurrentStep,
		ContinuationID: in.ContinuationID,
		Result:         in.Result,
	}
	if in.Status != nil {
		st := models.WorkflowStatus(*in.Status)
		upd.Status = &st
	}
	wf, err := f.store.AdvanceWorkflow(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, workflowToWireFull(wf))
}

func (f *fakeRemote) rewindWorkflow(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CurrentStep int `json:"currentStep"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	wf, err := f.store.RewindWorkflow(r.Context(), r.PathValue("id"), in.CurrentStep)
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, workflowToWireFull(wf))
}

func (f *fakeRemote) createStep(w http.ResponseWriter, r *http.Request) {
	var in wireWorkflowStep
	_ = json.NewDecoder(r.Body).Decode(&in)
	st, err := f.store.CreateWorkflowStep(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, stepToWireFull(st))
}

func (f *fakeRemote) listSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := f.store.ListWorkflowSteps(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	out := make([]wireWorkflowStep, 0, len(steps))
	for _, st := range steps {
		out = append(out, stepToWireFull(st))
	}
	f.reply(w, out)
}

func (f *fakeRemote) supersedeSteps(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FromStep int `json:"fromStep"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	n, err := f.store.SupersedeSteps(r.Context(), r.PathValue("id"), in.FromStep)
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, map[string]int{"superseded": n})
}

func (f *fakeRemote) createFile(w http.ResponseWriter, r *http.Request) {
	var in wireFile
	_ = json.NewDecoder(r.Body).Decode(&in)
	file, err := f.store.CreateFile(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, fileToWireFull(file))
}

func (f *fakeRemote) getFile(w http.ResponseWriter, r *http.Request) {
	file, err := f.store.GetFile(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	if file == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.reply(w, fileToWireFull(file))
}

func (f *fakeRemote) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := f.store.DeleteFile(r.Context(), r.PathValue("id")); err != nil {
		f.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeRemote) createSettings(w http.ResponseWriter, r *http.Request) {
	var in wireUserSettings
	_ = json.NewDecoder(r.Body).Decode(&in)
	us, err := f.store.CreateUserSettings(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, settingsToWireFull(us))
}

func (f *fakeRemote) getSettings(w http.ResponseWriter, r *http.Request) {
	us, err := f.store.GetUserSettings(r.Context(), r.PathValue("userId"))
	if err != nil {
		f.fail(w, err)
		return
	}
	if us == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.reply(w, settingsToWireFull(us))
}

func (f *fakeRemote) updateSettings(w http.ResponseWriter, r *http.Request) {
	var in wireSettingsUpdate
	_ = json.NewDecoder(r.Body).Decode(&in)
	us, err := f.store.UpdateUserSettings(r.Context(), r.PathValue("userId"),
		SettingsUpdate{DefaultModel: in.DefaultModel, Temperature: in.Temperature, UseWebSearch: in.UseWebSearch})
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, settingsToWireFull(us))
}

func (f *fakeRemote) createSession(w http.ResponseWriter, r *http.Request) {
	var in wireSession
	_ = json.NewDecoder(r.Body).Decode(&in)
	sess, err := f.store.CreateSession(r.Context(), in.toModel())
	if err != nil {
		f.fail(w, err)
		return
	}
	f.reply(w, sessionToWireFull(sess))
}

func (f *fakeRemote) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := f.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		f.fail(w, err)
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.reply(w, sessionToWireFull(sess))
}

func (f *fakeRemote) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := f.store.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		f.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Full-record wire encoders including server-set timestamps. The
// production *ToWire helpers deliberately omit them on requests.

func conversationToWireFull(c *models.Conversation) wireConversation {
	w := conversationToWire(c)
	w.CreatedAt, w.UpdatedAt = c.CreatedAt, c.UpdatedAt
	return w
}

func messageToWireFull(m *models.Message) wireMessage {
	w := messageToWire(m)
	w.CreatedAt = m.CreatedAt
	return w
}

func workflowToWireFull(wf *models.Workflow) wireWorkflow {
	w := workflowToWire(wf)
	w.CreatedAt, w.UpdatedAt = wf.CreatedAt, wf.UpdatedAt
	return w
}

func stepToWireFull(st *models.WorkflowStep) wireWorkflowStep {
	w := stepToWire(st)
	w.CreatedAt = st.CreatedAt
	return w
}

func fileToWireFull(file *models.File) wireFile {
	w := fileToWire(file)
	w.CreatedAt = file.CreatedAt
	return w
}

func settingsToWireFull(us *models.UserSettings) wireUserSettings {
	w := settingsToWire(us)
	w.UpdatedAt = us.UpdatedAt
	return w
}

func sessionToWireFull(sess *models.Session) wireSession {
	w := sessionToWire(sess)
	w.CreatedAt = sess.CreatedAt
	return w
}

func TestRemoteStoreContract(t *testing.T) {
	srv := httptest.NewServer(newFakeRemote())
	defer srv.Close()

	runStoreContract(t, NewRemoteStore(srv.URL, "test-key"))
}

func TestRemoteStoreSendsAuthHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewRemoteStore(srv.URL, "secret")
	require.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "Bearer secret", got)
}

func TestRemoteStoreUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	store := NewRemoteStore(srv.URL, "")
	err := store.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Internal))
}

func TestRemoteStoreErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/workflows/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/v1/workflows/done/advance":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "workflow done is completed"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	store := NewRemoteStore(srv.URL, "")
	ctx := context.Background()

	// Absent records surface as (nil, nil) on reads.
	wf, err := store.GetWorkflow(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, wf)

	step := 2
	_, err = store.AdvanceWorkflow(ctx, "done", WorkflowUpdate{CurrentStep: &step})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Conflict))

	_, err = store.CreateWorkflow(ctx, &models.Workflow{ConversationID: "c"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Internal))
}
