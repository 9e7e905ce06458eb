// Package models defines the domain models for the workflow gateway.
package models

import (
	"time"
)

// User represents an authenticated account. The id is the OIDC subject
// claim supplied by the authentication provider.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      *string   `json:"name,omitempty" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Conversation is the top-level container for one tool-usage session.
// It is exclusively owned by the user that created it.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	Title     *string   `json:"title,omitempty" db:"title"`
	ToolType  string    `json:"tool_type" db:"tool_type"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MessageRole enumerates who authored a chat line.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is a conversation-scoped chat line, immutable once created.
type Message struct {
	ID             string         `json:"id" db:"id"`
	ConversationID string         `json:"conversation_id" db:"conversation_id"`
	Role           MessageRole    `json:"role" db:"role"`
	Content        string         `json:"content" db:"content"`
	Metadata       map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// File is an uploaded artifact, optionally attached to a conversation or
// a specific workflow step. Ownership is always the uploading user.
type File struct {
	ID             string    `json:"id" db:"id"`
	OwnerID        string    `json:"owner_id" db:"owner_id"`
	ConversationID *string   `json:"conversation_id,omitempty" db:"conversation_id"`
	StepID         *string   `json:"step_id,omitempty" db:"step_id"`
	Name           string    `json:"name" db:"name"`
	ContentType    string    `json:"content_type" db:"content_type"`
	SizeBytes      int64     `json:"size_bytes" db:"size_bytes"`
	StoragePath    string    `json:"storage_path" db:"storage_path"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// UserSettings holds per-user preferences.
type UserSettings struct {
	UserID       string    `json:"user_id" db:"user_id"`
	DefaultModel *string   `json:"default_model,omitempty" db:"default_model"`
	Temperature  *float64  `json:"temperature,omitempty" db:"temperature"`
	UseWebSearch bool      `json:"use_web_search" db:"use_web_search"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Session is a login session record tied to one user.
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
