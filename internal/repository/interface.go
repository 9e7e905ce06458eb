// Package repository defines the persistence contract for the gateway
// and its two interchangeable backends: a local Postgres database and a
// remote store reached over its own HTTP API. The store performs no
// authorization; ownership checks belong to the gateway.
package repository

import (
	"context"

	"toolflow/pkg/models"
)

// ConversationUpdate carries the fields a partial conversation update
// may change. Nil fields are left untouched.
type ConversationUpdate struct {
	Title *string
}

// WorkflowUpdate carries the fields a workflow advance may change. The
// store applies it only while the workflow is non-terminal, and never
// lets CurrentStep regress.
type WorkflowUpdate struct {
	Status         *models.WorkflowStatus
	CurrentStep    *int
	ContinuationID *string
	Result         []byte
}

// UserUpdate carries the fields a partial user update may change.
type UserUpdate struct {
	Email *string
	Name  *string
}

// SettingsUpdate carries the fields a partial settings update may change.
type SettingsUpdate struct {
	DefaultModel *string
	Temperature  *float64
	UseWebSearch *bool
}

// Store is the uniform persistence contract. Get methods return
// (nil, nil) when the entity is absent; update methods return a
// not-found error instead of creating the target.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error)

	CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string, limit, offset int) ([]*models.Conversation, error)
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*models.Conversation, error)
	// TouchConversation bumps updated_at without other changes.
	TouchConversation(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)

	CreateWorkflow(ctx context.Context, wf *models.Workflow) (*models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, conversationID string) ([]*models.Workflow, error)
	// AdvanceWorkflow applies upd iff the workflow is non-terminal.
	// CurrentStep only moves forward. A terminal target yields a
	// conflict error and leaves the row untouched.
	AdvanceWorkflow(ctx context.Context, id string, upd WorkflowUpdate) (*models.Workflow, error)
	// RewindWorkflow lowers current_step during a backtrack. Terminal
	// workflows are refused with a conflict error.
	RewindWorkflow(ctx context.Context, id string, step int) (*models.Workflow, error)

	CreateWorkflowStep(ctx context.Context, step *models.WorkflowStep) (*models.WorkflowStep, error)
	ListWorkflowSteps(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error)
	// SupersedeSteps marks every step with stepNumber >= fromStep as
	// superseded. Findings and metadata stay intact. Returns the number
	// of rows marked.
	SupersedeSteps(ctx context.Context, workflowID string, fromStep int) (int, error)

	CreateFile(ctx context.Context, file *models.File) (*models.File, error)
	GetFile(ctx context.Context, id string) (*models.File, error)
	DeleteFile(ctx context.Context, id string) error

	CreateUserSettings(ctx context.Context, settings *models.UserSettings) (*models.UserSettings, error)
	GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	UpdateUserSettings(ctx context.Context, userID string, upd SettingsUpdate) (*models.UserSettings, error)

	CreateSession(ctx context.Context, session *models.Session) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}
