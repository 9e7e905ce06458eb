package gateway

import (
	"context"
	"strings"

	"toolflow/internal/apperr"
	"toolflow/internal/execution"
	"toolflow/pkg/models"
)

// ChatRequest is the simple chat path: one prompt, one response, no
// workflow or step semantics.
type ChatRequest struct {
	Prompt         string   `json:"prompt"`
	Model          *string  `json:"model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	UseWebSearch   bool     `json:"use_websearch,omitempty"`
	Files          []string `json:"files,omitempty"`
	Images         []string `json:"images,omitempty"`
	ContinuationID *string  `json:"continuation_id,omitempty"`
	ConversationID *string  `json:"conversation_id,omitempty"`
}

// ChatResult pairs the response with its owning conversation.
type ChatResult struct {
	ConversationID string               `json:"conversation_id"`
	Response       *models.ToolResponse `json:"response"`
}

// Chat resolves or creates the conversation, records both sides of the
// exchange and returns the backend's response.
func (g *Gateway) Chat(ctx context.Context, userID string, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperr.Invalid("prompt", "prompt must not be empty")
	}
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}

	var conv *models.Conversation
	var err error
	if req.ConversationID == nil {
		conv, err = g.store.CreateConversation(ctx, &models.Conversation{
			ToolType: "chat",
			OwnerID:  userID,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to create conversation", err)
		}
	} else {
		conv, err = g.store.GetConversation(ctx, *req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, apperr.Newf(apperr.NotFound, "conversation %s not found", *req.ConversationID)
		}
		if conv.OwnerID != userID {
			return nil, apperr.New(apperr.Forbidden, "conversation belongs to another user")
		}
	}

	if _, err := g.store.CreateMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        req.Prompt,
	}); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to record message", err)
	}

	resp, err := g.exec.ExecuteChat(ctx, execution.ChatParams{
		Prompt:         req.Prompt,
		Model:          req.Model,
		Temperature:    req.Temperature,
		UseWebSearch:   req.UseWebSearch,
		Files:          req.Files,
		Images:         req.Images,
		ContinuationID: req.ContinuationID,
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]any{}
	if resp.Metadata != nil {
		meta["model"] = resp.Metadata.Model
		meta["duration_ms"] = resp.Metadata.DurationMs
	}
	if _, err := g.store.CreateMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        resp.Content,
		Metadata:       meta,
	}); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to record message", err)
	}

	if err := g.store.TouchConversation(ctx, conv.ID); err != nil {
		g.logger.Warn("failed to touch conversation", "conversation_id", conv.ID, "error", err)
	}

	return &ChatResult{ConversationID: conv.ID, Response: resp}, nil
}
