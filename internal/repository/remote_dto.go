package repository

import (
	"time"

	"toolflow/pkg/models"
)

// The remote store's native field casing is camelCase. These wire
// structs are the only place that knows about it; everything above the
// Store interface sees the models types unchanged.

type wireUser struct {
	ID        string    `json:"id,omitempty"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (w wireUser) toModel() *models.User {
	return &models.User{ID: w.ID, Email: w.Email, Name: w.Name, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}
}

func userToWire(u *models.User) wireUser {
	return wireUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

type wireConversation struct {
	ID        string    `json:"id,omitempty"`
	Title     *string   `json:"title,omitempty"`
	ToolType  string    `json:"toolType"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (w wireConversation) toModel() *models.Conversation {
	return &models.Conversation{
		ID: w.ID, Title: w.Title, ToolType: w.ToolType, OwnerID: w.OwnerID,
		CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt,
	}
}

func conversationToWire(c *models.Conversation) wireConversation {
	return wireConversation{ID: c.ID, Title: c.Title, ToolType: c.ToolType, OwnerID: c.OwnerID}
}

type wireMessage struct {
	ID             string         `json:"id,omitempty"`
	ConversationID string         `json:"conversationId"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt,omitempty"`
}

func (w wireMessage) toModel() *models.Message {
	return &models.Message{
		ID: w.ID, ConversationID: w.ConversationID, Role: models.MessageRole(w.Role),
		Content: w.Content, Metadata: w.Metadata, CreatedAt: w.CreatedAt,
	}
}

func messageToWire(m *models.Message) wireMessage {
	return wireMessage{
		ID: m.ID, ConversationID: m.ConversationID, Role: string(m.Role),
		Content: m.Content, Metadata: m.Metadata,
	}
}

type wireWorkflow struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId"`
	ToolType       string    `json:"toolType"`
	Status         string    `json:"status"`
	CurrentStep    int       `json:"currentStep"`
	TotalSteps     int       `json:"totalSteps"`
	ContinuationID *string   `json:"continuationId,omitempty"`
	Result         []byte    `json:"result,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

func (w wireWorkflow) toModel() *models.Workflow {
	return &models.Workflow{
		ID: w.ID, ConversationID: w.ConversationID, ToolType: w.ToolType,
		Status: models.WorkflowStatus(w.Status), CurrentStep: w.CurrentStep,
		TotalSteps: w.TotalSteps, ContinuationID: w.ContinuationID, Result: w.Result,
		CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt,
	}
}

func workflowToWire(w *models.Workflow) wireWorkflow {
	return wireWorkflow{
		ID: w.ID, ConversationID: w.ConversationID, ToolType: w.ToolType,
		Status: string(w.Status), CurrentStep: w.CurrentStep,
		TotalSteps: w.TotalSteps, ContinuationID: w.ContinuationID, Result: w.Result,
	}
}

type wireWorkflowStep struct {
	ID         string         `json:"id,omitempty"`
	WorkflowID string         `json:"workflowId"`
	StepNumber int            `json:"stepNumber"`
	Findings   string         `json:"findings"`
	Hypothesis *string        `json:"hypothesis,omitempty"`
	Confidence *string        `json:"confidence,omitempty"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt,omitempty"`
}

func (w wireWorkflowStep) toModel() *models.WorkflowStep {
	var conf *models.Confidence
	if w.Confidence != nil {
		c := models.Confidence(*w.Confidence)
		conf = &c
	}
	return &models.WorkflowStep{
		ID: w.ID, WorkflowID: w.WorkflowID, StepNumber: w.StepNumber,
		Findings: w.Findings, Hypothesis: w.Hypothesis, Confidence: conf,
		Status: models.StepStatus(w.Status), Metadata: w.Metadata, CreatedAt: w.CreatedAt,
	}
}

func stepToWire(s *models.WorkflowStep) wireWorkflowStep {
	var conf *string
	if s.Confidence != nil {
		c := string(*s.Confidence)
		conf = &c
	}
	return wireWorkflowStep{
		ID: s.ID, WorkflowID: s.WorkflowID, StepNumber: s.StepNumber,
		Findings: s.Findings, Hypothesis: s.Hypothesis, Confidence: conf,
		Status: string(s.Status), Metadata: s.Metadata,
	}
}

type wireFile struct {
	ID             string    `json:"id,omitempty"`
	OwnerID        string    `json:"ownerId"`
	ConversationID *string   `json:"conversationId,omitempty"`
	StepID         *string   `json:"stepId,omitempty"`
	Name           string    `json:"name"`
	ContentType    string    `json:"contentType"`
	SizeBytes      int64     `json:"sizeBytes"`
	StoragePath    string    `json:"storagePath"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

func (w wireFile) toModel() *models.File {
	return &models.File{
		ID: w.ID, OwnerID: w.OwnerID, ConversationID: w.ConversationID, StepID: w.StepID,
		Name: w.Name, ContentType: w.ContentType, SizeBytes: w.SizeBytes,
		StoragePath: w.StoragePath, CreatedAt: w.CreatedAt,
	}
}

func fileToWire(f *models.File) wireFile {
	return wireFile{
		ID: f.ID, OwnerID: f.OwnerID, ConversationID: f.ConversationID, StepID: f.StepID,
		Name: f.Name, ContentType: f.ContentType, SizeBytes: f.SizeBytes, StoragePath: f.StoragePath,
	}
}

type wireUserSettings struct {
	UserID       string    `json:"userId"`
	DefaultModel *string   `json:"defaultModel,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	UseWebSearch bool      `json:"useWebSearch"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

func (w wireUserSettings) toModel() *models.UserSettings {
	return &models.UserSettings{
		UserID: w.UserID, DefaultModel: w.DefaultModel, Temperature: w.Temperature,
		UseWebSearch: w.UseWebSearch, UpdatedAt: w.UpdatedAt,
	}
}

func settingsToWire(s *models.UserSettings) wireUserSettings {
	return wireUserSettings{
		UserID: s.UserID, DefaultModel: s.DefaultModel,
		Temperature: s.Temperature, UseWebSearch: s.UseWebSearch,
	}
}

type wireSession struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

func (w wireSession) toModel() *models.Session {
	return &models.Session{ID: w.ID, UserID: w.UserID, ExpiresAt: w.ExpiresAt, CreatedAt: w.CreatedAt}
}

func sessionToWire(s *models.Session) wireSession {
	return wireSession{ID: s.ID, UserID: s.UserID, ExpiresAt: s.ExpiresAt}
}

// Partial-update wire bodies. Pointer fields marshal only when set.

type wireUserUpdate struct {
	Email *string `json:"email,omitempty"`
	Name  *string `json:"name,omitempty"`
}

type wireConversationUpdate struct {
	Title *string `json:"title,omitempty"`
}

type wireWorkflowAdvance struct {
	Status         *string `json:"status,omitempty"`
	CurrentStep    *int    `json:"currentStep,omitempty"`
	ContinuationID *string `json:"continuationId,omitempty"`
	Result         []byte  `json:"result,omitempty"`
}

type wireSettingsUpdate struct {
	DefaultModel *string  `json:"defaultModel,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	UseWebSearch *bool    `json:"useWebSearch,omitempty"`
}
