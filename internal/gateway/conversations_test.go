package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolflow/internal/apperr"
	"toolflow/internal/repository"
)

func TestListConversationsScopedToOwner(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.CreateConversation(ctx, "alice", "debug", nil)
	require.NoError(t, err)
	_, err = gw.CreateConversation(ctx, "alice", "chat", nil)
	require.NoError(t, err)
	_, err = gw.CreateConversation(ctx, "bob", "chat", nil)
	require.NoError(t, err)

	mine, err := gw.ListConversations(ctx, "alice", 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := gw.ListConversations(ctx, "bob", 0, 0)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestConversationOwnershipEnforced(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	conv, err := gw.CreateConversation(ctx, "alice", "debug", nil)
	require.NoError(t, err)

	_, err = gw.GetConversation(ctx, "mallory", conv.ID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	title := "stolen"
	_, err = gw.UpdateConversation(ctx, "mallory", conv.ID, repository.ConversationUpdate{Title: &title})
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	err = gw.DeleteConversation(ctx, "mallory", conv.ID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = gw.ListMessages(ctx, "mallory", conv.ID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	// The owner still sees it.
	got, err := gw.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestUpdateAndDeleteConversation(t *testing.T) {
	gw, store, _ := newTestGateway(t)
	ctx := context.Background()

	conv, err := gw.CreateConversation(ctx, "alice", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "chat", conv.ToolType)

	title := "renamed"
	updated, err := gw.UpdateConversation(ctx, "alice", conv.ID, repository.ConversationUpdate{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, updated.Title)
	assert.Equal(t, "renamed", *updated.Title)

	require.NoError(t, gw.DeleteConversation(ctx, "alice", conv.ID))
	gone, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = gw.GetConversation(ctx, "alice", conv.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestDeleteConversationCascadesWorkflow(t *testing.T) {
	gw, store, _ := newTestGateway(t)
	ctx := context.Background()

	result, err := gw.SubmitStep(ctx, "alice", stepRequest(1, 2, true))
	require.NoError(t, err)

	require.NoError(t, gw.DeleteConversation(ctx, "alice", result.ConversationID))

	wf, err := store.GetWorkflow(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Nil(t, wf)
	steps, err := store.ListWorkflowSteps(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestGetWorkflowOwnership(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	result, err := gw.SubmitStep(ctx, "alice", stepRequest(1, 2, true))
	require.NoError(t, err)

	wf, err := gw.GetWorkflow(ctx, "alice", result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, result.WorkflowID, wf.ID)

	_, err = gw.GetWorkflow(ctx, "mallory", result.WorkflowID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = gw.GetWorkflow(ctx, "alice", "missing")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestListWorkflowStepsOwnership(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	result, err := gw.SubmitStep(ctx, "alice", stepRequest(1, 2, true))
	require.NoError(t, err)

	steps, err := gw.ListWorkflowSteps(ctx, "alice", result.WorkflowID)
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	_, err = gw.ListWorkflowSteps(ctx, "mallory", result.WorkflowID)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}
