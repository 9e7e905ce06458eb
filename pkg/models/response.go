package models

// ToolResponse is the structured result an execution backend returns
// for a chat call or a single workflow step. Both backend
// implementations produce exactly this shape.
type ToolResponse struct {
	Status          string            `json:"status"`
	Content         string            `json:"content,omitempty"`
	ContinuationID  *string           `json:"continuation_id,omitempty"`
	RequiredActions []string          `json:"required_actions,omitempty"`
	ExpertAnalysis  map[string]any    `json:"expert_analysis,omitempty"`
	Metadata        *ResponseMetadata `json:"metadata,omitempty"`
}

// ResponseMetadata carries execution detail the backend reports.
type ResponseMetadata struct {
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// Backend response statuses the gateway inspects. "error" is a
// permanent failure that terminates the workflow; everything else is
// treated as a successful step outcome.
const (
	ResponseStatusSuccess = "success"
	ResponseStatusError   = "error"
)

// StreamChunk is one fragment of a streamed response. Done is set on
// the final marker chunk; no further chunks follow it.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
}
