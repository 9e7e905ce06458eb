package gateway

import (
	"context"

	"toolflow/internal/apperr"
	"toolflow/internal/repository"
	"toolflow/pkg/models"
)

// Ownership enforcement for conversation-scoped reads and writes lives
// here, not in the store: the persistence adapter is a dumb store.

func (g *Gateway) ownedConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := g.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.Newf(apperr.NotFound, "conversation %s not found", conversationID)
	}
	if conv.OwnerID != userID {
		return nil, apperr.New(apperr.Forbidden, "conversation belongs to another user")
	}
	return conv, nil
}

// ListConversations returns the caller's conversations, newest first.
func (g *Gateway) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return g.store.ListConversations(ctx, userID, limit, offset)
}

// CreateConversation creates an empty conversation owned by the caller.
func (g *Gateway) CreateConversation(ctx context.Context, userID, toolType string, title *string) (*models.Conversation, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if toolType == "" {
		toolType = "chat"
	}
	return g.store.CreateConversation(ctx, &models.Conversation{
		Title:    title,
		ToolType: toolType,
		OwnerID:  userID,
	})
}

// GetConversation returns one conversation if the caller owns it.
func (g *Gateway) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	return g.ownedConversation(ctx, userID, conversationID)
}

// UpdateConversation applies a partial update to an owned conversation.
func (g *Gateway) UpdateConversation(ctx context.Context, userID, conversationID string, upd repository.ConversationUpdate) (*models.Conversation, error) {
	if _, err := g.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return g.store.UpdateConversation(ctx, conversationID, upd)
}

// DeleteConversation removes an owned conversation and everything under it.
func (g *Gateway) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := g.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return g.store.DeleteConversation(ctx, conversationID)
}

// ListMessages returns the messages of an owned conversation in order.
func (g *Gateway) ListMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error) {
	if _, err := g.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return g.store.ListMessages(ctx, conversationID)
}

// GetWorkflow returns one workflow if the caller owns its conversation.
func (g *Gateway) GetWorkflow(ctx context.Context, userID, workflowID string) (*models.Workflow, error) {
	wf, err := g.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", workflowID)
	}
	if _, err := g.ownedConversation(ctx, userID, wf.ConversationID); err != nil {
		return nil, err
	}
	return wf, nil
}

// ListWorkflowSteps returns the append-only step log of an owned workflow.
func (g *Gateway) ListWorkflowSteps(ctx context.Context, userID, workflowID string) ([]*models.WorkflowStep, error) {
	if _, err := g.GetWorkflow(ctx, userID, workflowID); err != nil {
		return nil, err
	}
	return g.store.ListWorkflowSteps(ctx, workflowID)
}
