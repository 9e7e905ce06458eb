package models

import (
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// Terminal reports whether the status accepts no further steps.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// StepStatus represents the state of one workflow step record.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepRunning    StepStatus = "running"
	StepCompleted  StepStatus = "completed"
	StepSuperseded StepStatus = "superseded"
)

// Confidence is the enumerated confidence scale workflow tools report.
type Confidence string

const (
	ConfidenceExploring     Confidence = "exploring"
	ConfidenceLow           Confidence = "low"
	ConfidenceMedium        Confidence = "medium"
	ConfidenceHigh          Confidence = "high"
	ConfidenceVeryHigh      Confidence = "very_high"
	ConfidenceAlmostCertain Confidence = "almost_certain"
	ConfidenceCertain       Confidence = "certain"
)

// Workflow is one resumable multi-step execution of a tool, bound to
// exactly one conversation for its whole lifetime.
type Workflow struct {
	ID             string         `json:"id" db:"id"`
	ConversationID string         `json:"conversation_id" db:"conversation_id"`
	ToolType       string         `json:"tool_type" db:"tool_type"`
	Status         WorkflowStatus `json:"status" db:"status"`
	CurrentStep    int            `json:"current_step" db:"current_step"`
	TotalSteps     int            `json:"total_steps" db:"total_steps"`
	ContinuationID *string        `json:"continuation_id,omitempty" db:"continuation_id"`
	Result         []byte         `json:"result,omitempty" db:"result"` // JSONB, set only at completion
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// WorkflowStep is one append-only log entry within a workflow. Rows are
// never rewritten after insert; a completed step is a second row, and
// the only sanctioned mutation is flipping status to superseded during
// a backtrack.
type WorkflowStep struct {
	ID         string         `json:"id" db:"id"`
	WorkflowID string         `json:"workflow_id" db:"workflow_id"`
	StepNumber int            `json:"step_number" db:"step_number"`
	Findings   string         `json:"findings" db:"findings"`
	Hypothesis *string        `json:"hypothesis,omitempty" db:"hypothesis"`
	Confidence *Confidence    `json:"confidence,omitempty" db:"confidence"`
	Status     StepStatus     `json:"status" db:"status"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"` // JSONB
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// workflowTools is the fixed allow-list of multi-step tools the gateway
// accepts. Anything else is rejected before persistence.
var workflowTools = map[string]struct{}{
	"debug":      {},
	"codereview": {},
	"analyze":    {},
	"thinkdeep":  {},
	"precommit":  {},
	"secaudit":   {},
	"planner":    {},
	"consensus":  {},
	"tracer":     {},
	"testgen":    {},
	"refactor":   {},
	"docgen":     {},
}

// IsWorkflowTool reports whether name is an allowed workflow tool.
func IsWorkflowTool(name string) bool {
	_, ok := workflowTools[name]
	return ok
}

// WorkflowTools returns the allow-list in no particular order.
func WorkflowTools() []string {
	names := make([]string, 0, len(workflowTools))
	for name := range workflowTools {
		names = append(names, name)
	}
	return names
}
