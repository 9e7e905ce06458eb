// Package gateway implements the workflow orchestration core. It owns
// entity lifecycle, ordering and authorization; the persistence and
// execution adapters stay dumb on both sides of it.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"toolflow/internal/apperr"
	"toolflow/internal/execution"
	"toolflow/internal/logging"
	"toolflow/internal/repository"
	"toolflow/pkg/models"
)

// Gateway orchestrates step submissions across conversations,
// workflows and the execution backend. All methods are safe for
// concurrent use; the only shared mutable state is the persisted
// record set plus the per-workflow lock table.
type Gateway struct {
	store  repository.Store
	exec   execution.ToolExecutor
	logger *logging.Logger

	// wfLocks serializes submissions against the same workflow id so
	// two racing completions cannot both win. Locks are per workflow;
	// cross-workflow submissions run fully in parallel.
	wfLocks sync.Map // workflowID -> *sync.Mutex

	stepCounter metric.Int64Counter
}

// New creates a Gateway over the given adapters.
func New(store repository.Store, exec execution.ToolExecutor, logger *logging.Logger) *Gateway {
	meter := otel.Meter("toolflow/gateway")
	counter, err := meter.Int64Counter("workflow.steps.submitted",
		metric.WithDescription("Workflow steps accepted by the gateway"))
	if err != nil {
		logger.Warn("step counter unavailable", "error", err)
	}
	return &Gateway{
		store:       store,
		exec:        exec,
		logger:      logger,
		stepCounter: counter,
	}
}

func (g *Gateway) lockWorkflow(id string) func() {
	muAny, _ := g.wfLocks.LoadOrStore(id, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// SubmitStepRequest is one workflow step submission. Extra carries
// tool-specific fields passed through to the backend untouched.
type SubmitStepRequest struct {
	ToolName         string             `json:"tool_name"`
	Step             string             `json:"step"`
	StepNumber       int                `json:"step_number"`
	TotalSteps       int                `json:"total_steps"`
	NextStepRequired bool               `json:"next_step_required"`
	Findings         string             `json:"findings"`
	Hypothesis       *string            `json:"hypothesis,omitempty"`
	Confidence       *models.Confidence `json:"confidence,omitempty"`

	ConversationID    *string `json:"conversation_id,omitempty"`
	WorkflowID        *string `json:"workflow_id,omitempty"`
	ContinuationID    *string `json:"continuation_id,omitempty"`
	BacktrackFromStep *int    `json:"backtrack_from_step,omitempty"`

	Extra map[string]any `json:"-"`
}

// Validate checks the request before any persistence happens.
func (r *SubmitStepRequest) Validate() error {
	if !models.IsWorkflowTool(r.ToolName) {
		return apperr.Invalid("tool_name", "unknown workflow tool: "+r.ToolName)
	}
	if strings.TrimSpace(r.Step) == "" {
		return apperr.Invalid("step", "step description must not be empty")
	}
	if r.StepNumber < 1 {
		return apperr.Invalid("step_number", "step_number must be a positive integer")
	}
	if r.TotalSteps < 1 {
		return apperr.Invalid("total_steps", "total_steps must be a positive integer")
	}
	if r.BacktrackFromStep != nil && *r.BacktrackFromStep < 1 {
		return apperr.Invalid("backtrack_from_step", "backtrack_from_step must be a positive integer")
	}
	return nil
}

// SubmitStepResult is the gateway's unified step response.
type SubmitStepResult struct {
	ConversationID string               `json:"conversation_id"`
	WorkflowID     string               `json:"workflow_id"`
	Response       *models.ToolResponse `json:"response"`
}

// SubmitStep runs one workflow step end to end: resolve or create the
// owning conversation and workflow, record the step before the backend
// call, invoke the backend, record the outcome and advance or
// terminate the workflow.
func (g *Gateway) SubmitStep(ctx context.Context, userID string, req SubmitStepRequest) (*SubmitStepResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}

	conv, err := g.resolveConversation(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	wf, err := g.resolveWorkflow(ctx, conv, req)
	if err != nil {
		return nil, err
	}

	unlock := g.lockWorkflow(wf.ID)
	defer unlock()

	// Re-read under the lock: a racing submission may have completed
	// the workflow between resolution and lock acquisition.
	if req.WorkflowID != nil {
		wf, err = g.store.GetWorkflow(ctx, wf.ID)
		if err != nil {
			return nil, err
		}
		if wf == nil {
			return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", *req.WorkflowID)
		}
		if wf.Status.Terminal() {
			return nil, apperr.Newf(apperr.Conflict, "workflow %s is %s and accepts no further steps", wf.ID, wf.Status)
		}
	}

	if req.BacktrackFromStep != nil {
		if err := g.backtrack(ctx, wf, *req.BacktrackFromStep); err != nil {
			return nil, err
		}
	}

	// Record the step before calling the backend so a crash mid-call
	// leaves an inspectable trace.
	preStep := &models.WorkflowStep{
		WorkflowID: wf.ID,
		StepNumber: req.StepNumber,
		Findings:   req.Findings,
		Hypothesis: req.Hypothesis,
		Confidence: req.Confidence,
		Status:     models.StepRunning,
		Metadata:   req.Extra,
	}
	if _, err := g.store.CreateWorkflowStep(ctx, preStep); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to record step", err)
	}

	g.countStep(ctx, req.ToolName)

	resp, err := g.exec.ExecuteTool(ctx, req.ToolName, g.stepParams(req, wf))
	if err != nil {
		// Retryable adapter failures leave the workflow running with
		// the pre-call record in place; nothing is rolled back.
		g.logger.Warn("tool execution failed",
			"workflow_id", wf.ID, "tool", req.ToolName,
			"step", req.StepNumber, "error", err)
		return nil, err
	}

	if resp.Status == models.ResponseStatusError {
		// The backend reported permanent failure; terminate the workflow.
		if err := g.failWorkflow(ctx, wf, req, resp); err != nil {
			return nil, err
		}
		return &SubmitStepResult{ConversationID: conv.ID, WorkflowID: wf.ID, Response: resp}, nil
	}

	if err := g.completeStep(ctx, wf, req, resp); err != nil {
		return nil, err
	}

	if err := g.store.TouchConversation(ctx, conv.ID); err != nil {
		g.logger.Warn("failed to touch conversation", "conversation_id", conv.ID, "error", err)
	}

	return &SubmitStepResult{ConversationID: conv.ID, WorkflowID: wf.ID, Response: resp}, nil
}

func (g *Gateway) resolveConversation(ctx context.Context, userID string, req SubmitStepRequest) (*models.Conversation, error) {
	if req.ConversationID == nil {
		conv, err := g.store.CreateConversation(ctx, &models.Conversation{
			ToolType: req.ToolName,
			OwnerID:  userID,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to create conversation", err)
		}
		return conv, nil
	}

	conv, err := g.store.GetConversation(ctx, *req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.Newf(apperr.NotFound, "conversation %s not found", *req.ConversationID)
	}
	if conv.OwnerID != userID {
		return nil, apperr.New(apperr.Forbidden, "conversation belongs to another user")
	}
	return conv, nil
}

func (g *Gateway) resolveWorkflow(ctx context.Context, conv *models.Conversation, req SubmitStepRequest) (*models.Workflow, error) {
	if req.WorkflowID == nil {
		wf, err := g.store.CreateWorkflow(ctx, &models.Workflow{
			ConversationID: conv.ID,
			ToolType:       req.ToolName,
			Status:         models.WorkflowRunning,
			CurrentStep:    req.StepNumber,
			TotalSteps:     req.TotalSteps,
			ContinuationID: req.ContinuationID,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to create workflow", err)
		}
		return wf, nil
	}

	wf, err := g.store.GetWorkflow(ctx, *req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, apperr.Newf(apperr.NotFound, "workflow %s not found", *req.WorkflowID)
	}
	if wf.ConversationID != conv.ID {
		return nil, apperr.New(apperr.Validation, "workflow does not belong to the given conversation")
	}
	if wf.Status.Terminal() {
		return nil, apperr.Newf(apperr.Conflict, "workflow %s is %s and accepts no further steps", wf.ID, wf.Status)
	}
	return wf, nil
}

// backtrack marks steps at and after fromStep as superseded and rewinds
// the workflow so numbering resumes at the backtrack point. Step rows
// are kept; only their status changes.
func (g *Gateway) backtrack(ctx context.Context, wf *models.Workflow, fromStep int) error {
	n, err := g.store.SupersedeSteps(ctx, wf.ID, fromStep)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to supersede steps", err)
	}
	if _, err := g.store.RewindWorkflow(ctx, wf.ID, fromStep-1); err != nil {
		return err
	}
	g.logger.Info("workflow backtracked",
		"workflow_id", wf.ID, "from_step", fromStep, "superseded", n)
	return nil
}

func (g *Gateway) stepParams(req SubmitStepRequest, wf *models.Workflow) execution.StepParams {
	var conf *string
	if req.Confidence != nil {
		c := string(*req.Confidence)
		conf = &c
	}
	continuation := req.ContinuationID
	if continuation == nil {
		continuation = wf.ContinuationID
	}
	return execution.StepParams{
		Step:             req.Step,
		StepNumber:       req.StepNumber,
		TotalSteps:       req.TotalSteps,
		NextStepRequired: req.NextStepRequired,
		Findings:         req.Findings,
		Hypothesis:       req.Hypothesis,
		Confidence:       conf,
		ContinuationID:   continuation,
		Extra:            req.Extra,
	}
}

// completeStep records the outcome as a second append-only step row and
// advances the workflow state machine.
func (g *Gateway) completeStep(ctx context.Context, wf *models.Workflow, req SubmitStepRequest, resp *models.ToolResponse) error {
	meta := map[string]any{"response_status": resp.Status}
	if resp.Metadata != nil {
		meta["model"] = resp.Metadata.Model
		meta["duration_ms"] = resp.Metadata.DurationMs
	}
	post := &models.WorkflowStep{
		WorkflowID: wf.ID,
		StepNumber: req.StepNumber,
		Findings:   resp.Content,
		Status:     models.StepCompleted,
		Metadata:   meta,
	}
	if _, err := g.store.CreateWorkflowStep(ctx, post); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to record step outcome", err)
	}

	status := models.WorkflowRunning
	upd := repository.WorkflowUpdate{
		Status:         &status,
		CurrentStep:    &req.StepNumber,
		ContinuationID: resp.ContinuationID,
	}
	if !req.NextStepRequired {
		status = models.WorkflowCompleted
		result, err := json.Marshal(resp)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "failed to encode workflow result", err)
		}
		upd.Result = result
	}
	if _, err := g.store.AdvanceWorkflow(ctx, wf.ID, upd); err != nil {
		return err
	}
	return nil
}

// failWorkflow terminates the workflow after the backend reported a
// permanent failure. The outcome row is still recorded for the audit
// trail.
func (g *Gateway) failWorkflow(ctx context.Context, wf *models.Workflow, req SubmitStepRequest, resp *models.ToolResponse) error {
	post := &models.WorkflowStep{
		WorkflowID: wf.ID,
		StepNumber: req.StepNumber,
		Findings:   resp.Content,
		Status:     models.StepCompleted,
		Metadata:   map[string]any{"response_status": resp.Status},
	}
	if _, err := g.store.CreateWorkflowStep(ctx, post); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to record step outcome", err)
	}

	status := models.WorkflowFailed
	result, err := json.Marshal(resp)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to encode workflow result", err)
	}
	if _, err := g.store.AdvanceWorkflow(ctx, wf.ID, repository.WorkflowUpdate{
		Status:      &status,
		CurrentStep: &req.StepNumber,
		Result:      result,
	}); err != nil {
		return err
	}
	g.logger.Warn("workflow failed",
		"workflow_id", wf.ID, "tool", req.ToolName, "step", req.StepNumber)
	return nil
}

func (g *Gateway) countStep(ctx context.Context, tool string) {
	if g.stepCounter == nil {
		return
	}
	g.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}
