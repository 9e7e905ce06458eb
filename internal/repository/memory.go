package repository

import (
	"context"
	"sort"
	"sync"

	"toolflow/internal/apperr"
	"toolflow/pkg/models"
)

// MemStore is a fully in-memory implementation of Store. Safe for
// concurrent access. Intended for unit testing and development; the
// production backends are Postgres and the remote store.
type MemStore struct {
	mu sync.RWMutex

	users         map[string]*models.User
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	workflows     map[string]*models.Workflow
	steps         map[string]*models.WorkflowStep
	files         map[string]*models.File
	settings      map[string]*models.UserSettings
	sessions      map[string]*models.Session

	// seq breaks timestamp ties so list ordering stays stable even when
	// two mutations land in the same microsecond.
	seq   int64
	seqOf map[string]int64
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a new empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users:         make(map[string]*models.User),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		workflows:     make(map[string]*models.Workflow),
		steps:         make(map[string]*models.WorkflowStep),
		files:         make(map[string]*models.File),
		settings:      make(map[string]*models.UserSettings),
		sessions:      make(map[string]*models.Session),
		seqOf:         make(map[string]int64),
	}
}

func (s *MemStore) nextSeq(id string) {
	s.seq++
	s.seqOf[id] = s.seq
}

// --- users ---

func (s *MemStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *user
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt
	s.users[stored.ID] = &stored
	s.nextSeq(stored.ID)
	out := stored
	return &out, nil
}

func (s *MemStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (s *MemStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "user %s not found", id)
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = upd.Name
	}
	u.UpdatedAt = now()
	out := *u
	return &out, nil
}

// --- conversations ---

func (s *MemStore) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *conv
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt
	s.conversations[stored.ID] = &stored
	s.nextSeq(stored.ID)
	out := stored
	return &out, nil
}

func (s *MemStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *MemStore) ListConversations(ctx context.Context, ownerID string, limit, offset int) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []*models.Conversation
	for _, c := range s.conversations {
		if c.OwnerID == ownerID {
			out := *c
			convs = append(convs, &out)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return s.seqOf[convs[i].ID] > s.seqOf[convs[j].ID]
	})
	if offset >= len(convs) {
		return nil, nil
	}
	convs = convs[offset:]
	if limit > 0 && limit < len(convs) {
		convs = convs[:limit]
	}
	return convs, nil
}

func (s *MemStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	if upd.Title != nil {
		c.Title = upd.Title
	}
	c.UpdatedAt = now()
	s.nextSeq(id)
	out := *c
	return &out, nil
}

func (s *MemStore) TouchConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	c.UpdatedAt = now()
	s.nextSeq(id)
	return nil
}

func (s *MemStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return apperr.Newf(apperr.NotFound, "conversation %s not found", id)
	}
	delete(s.conversations, id)
	for mid, m := range s.messages {
		if m.ConversationID == id {
			delete(s.messages, mid)
		}
	}
	for wid, w := range s.workflows {
		if w.ConversationID == id {
			delete(s.workflows, wid)
			for sid, st := range s.steps {
				if st.WorkflowID == wid {
					delete(s.steps, sid)
				}
			}
		}
	}
	return nil
}

// --- messages ---

func (s *MemStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	s.messages[stored.ID] = &stored
	s.nextSeq(stored.ID)
	out := stored
	return &out, nil
}

func (s *MemStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []*models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out := *m
			msgs = append(msgs, &out)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return s.seqOf[msgs[i].ID] < s.seqOf[msgs[j].ID]
	})
	return msgs, nil
}

// --- workflows ---

func (s *MemStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *wf
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt
	s.workflows[stored.ID] = &stored
	s.nextSeq(stored.ID)
	out := stored
	return &out, nil
}

func (s *MemStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	out := *w
	return &out, nil
}

func (s *MemStore) ListWorkflows(ctx context.Context, conversationID string) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wfs []*models.Workflow
	for _, w := range s.workflows {
		if w.ConversationID == conversationID {
			out := *w
			wfs = append(wfs, &out)
		}
	}
	sort.Slice(wfs, func(i, j int) bool {
		if !wfs[i].CreatedAt.Equal(wfs[j].CreatedAt) {
			return wfs[i].CreatedAt.Before(wfs[j].CreatedAt)
		}
		return s.seqOf[wfs[i].ID] < s.seqOf[wfs[j].ID]
	})
	return wfs, nil
}

func (s *MemStore) AdvanceWorkflow(ctx context.Context, id string, upd WorkflowUpdate) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", id)
	}
	if w.Status.Terminal() {
		return nil, apperr.Newf(apperr.Conflict, "workflow %s is %s and accepts no further updates", id, w.Status)
	}
	if upd.Status != nil {
		w.Status = *upd.Status
	}
	if upd.CurrentStep != nil && *upd.CurrentStep > w.CurrentStep {
		w.CurrentStep = *upd.CurrentStep
	}
	if upd.ContinuationID != nil {
		w.ContinuationID = upd.ContinuationID
	}
	if upd.Result != nil {
		w.Result = upd.Result
	}
	w.UpdatedAt = now()
	out := *w
	return &out, nil
}

func (s *MemStore) RewindWorkflow(ctx context.Context, id string, step int) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", id)
	}
	if w.Status.Terminal() {
		return nil, apperr.Newf(apperr.Conflict, "workflow %s is %s and accepts no further updates", id, w.Status)
	}
	w.CurrentStep = step
	w.UpdatedAt = now()
	out := *w
	return &out, nil
}

// --- workflow steps ---

func (s *MemStore) CreateWorkflowStep(ctx context.Context, step *models.WorkflowStep) (*models.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *step
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	s.steps[stored.ID] = &stored
	s.nextSeq(stored.ID)
	out := stored
	return &out, nil
}

func (s *MemStore) ListWorkflowSteps(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var steps []*models.WorkflowStep
	for _, st := range s.steps {
		if st.WorkflowID == workflowID {
			out := *st
			steps = append(steps, &out)
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StepNumber != steps[j].StepNumber {
			return steps[i].StepNumber < steps[j].StepNumber
		}
		return s.seqOf[steps[i].ID] < s.seqOf[steps[j].ID]
	})
	return steps, nil
}

func (s *MemStore) SupersedeSteps(ctx context.Context, workflowID string, fromStep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, st := range s.steps {
		if st.WorkflowID == workflowID && st.StepNumber >= fromStep && st.Status != models.StepSuperseded {
			st.Status = models.StepSuperseded
			n++
		}
	}
	return n, nil
}

// --- files ---

func (s *MemStore) CreateFile(ctx context.Context, file *models.File) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *file
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	s.files[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *MemStore) GetFile(ctx context.Context, id string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (s *MemStore) DeleteFile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return apperr.Newf(apperr.NotFound, "file %s not found", id)
	}
	delete(s.files, id)
	return nil
}

// --- user settings ---

func (s *MemStore) CreateUserSettings(ctx context.Context, settings *models.UserSettings) (*models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *settings
	stored.UpdatedAt = now()
	s.settings[stored.UserID] = &stored
	out := stored
	return &out, nil
}

func (s *MemStore) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	us, ok := s.settings[userID]
	if !ok {
		return nil, nil
	}
	out := *us
	return &out, nil
}

func (s *MemStore) UpdateUserSettings(ctx context.Context, userID string, upd SettingsUpdate) (*models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	us, ok := s.settings[userID]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "settings for user %s not found", userID)
	}
	if upd.DefaultModel != nil {
		us.DefaultModel = upd.DefaultModel
	}
	if upd.Temperature != nil {
		us.Temperature = upd.Temperature
	}
	if upd.UseWebSearch != nil {
		us.UseWebSearch = *upd.UseWebSearch
	}
	us.UpdatedAt = now()
	out := *us
	return &out, nil
}

// --- sessions ---

func (s *MemStore) CreateSession(ctx context.Context, session *models.Session) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.CreatedAt = now()
	s.sessions[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *MemStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := *sess
	return &out, nil
}

func (s *MemStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return apperr.Newf(apperr.NotFound, "session %s not found", id)
	}
	delete(s.sessions, id)
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}
