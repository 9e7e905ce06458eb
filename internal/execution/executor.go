// Package execution defines the tool-execution contract and its two
// interchangeable backends: a direct call to a local tool daemon and a
// multi-hop call through a remote gateway. The two are behaviorally
// indistinguishable to the workflow gateway.
package execution

import (
	"context"
	"encoding/json"

	"toolflow/pkg/models"
)

// ToolExecutor invokes named tools against an execution backend.
type ToolExecutor interface {
	// ExecuteChat performs a single request/response chat call with no
	// workflow semantics.
	ExecuteChat(ctx context.Context, params ChatParams) (*models.ToolResponse, error)

	// ExecuteTool runs one workflow step of the named tool.
	ExecuteTool(ctx context.Context, tool string, params StepParams) (*models.ToolResponse, error)

	// StreamTool runs one step and streams content fragments. The
	// returned channel is closed after the final Done chunk; the
	// sequence is finite and non-restartable.
	StreamTool(ctx context.Context, tool string, params StepParams) (<-chan models.StreamChunk, error)

	// HealthCheck probes backend availability.
	HealthCheck(ctx context.Context) bool
}

// ChatParams are the inputs of the simple chat path.
type ChatParams struct {
	Prompt         string   `json:"prompt"`
	Model          *string  `json:"model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	UseWebSearch   bool     `json:"use_websearch,omitempty"`
	Files          []string `json:"files,omitempty"`
	Images         []string `json:"images,omitempty"`
	ContinuationID *string  `json:"continuation_id,omitempty"`
}

// StepParams are the inputs of one workflow step. Extra carries
// tool-specific fields the gateway passes through without validation.
type StepParams struct {
	Step             string         `json:"step"`
	StepNumber       int            `json:"step_number"`
	TotalSteps       int            `json:"total_steps"`
	NextStepRequired bool           `json:"next_step_required"`
	Findings         string         `json:"findings"`
	Hypothesis       *string        `json:"hypothesis,omitempty"`
	Confidence       *string        `json:"confidence,omitempty"`
	ContinuationID   *string        `json:"continuation_id,omitempty"`
	Extra            map[string]any `json:"-"`
}

// MarshalJSON flattens Extra into the same object as the core fields,
// so the backend sees one tool-parameter document. Core fields win on
// key collision.
func (p StepParams) MarshalJSON() ([]byte, error) {
	type core StepParams
	base, err := json.Marshal(core(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage, len(p.Extra)+8)
	for k, v := range p.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	var coreFields map[string]json.RawMessage
	if err := json.Unmarshal(base, &coreFields); err != nil {
		return nil, err
	}
	for k, v := range coreFields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
