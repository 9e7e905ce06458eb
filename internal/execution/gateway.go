package execution

import (
	"context"
	"time"

	"toolflow/pkg/models"
)

// GatewayClient reaches the execution backend through an intermediary
// cloud gateway. The extra hop changes the envelope, not the behavior:
// timeouts, error kinds and the response shape match LocalClient.
type GatewayClient struct {
	baseURL string
	httpExecutor
}

var _ ToolExecutor = (*GatewayClient)(nil)

// executeEnvelope is the gateway's request wrapper.
type executeEnvelope struct {
	Tool   string `json:"tool"`
	Params any    `json:"params"`
}

// NewGatewayClient creates a GatewayClient for the gateway at baseURL.
// A non-positive timeout selects DefaultTimeout.
func NewGatewayClient(baseURL, apiKey string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:      baseURL,
		httpExecutor: newHTTPExecutor(apiKey, timeout),
	}
}

func (c *GatewayClient) ExecuteChat(ctx context.Context, params ChatParams) (*models.ToolResponse, error) {
	return c.post(ctx, c.baseURL+"/api/execute", executeEnvelope{Tool: "chat", Params: params})
}

func (c *GatewayClient) ExecuteTool(ctx context.Context, tool string, params StepParams) (*models.ToolResponse, error) {
	return c.post(ctx, c.baseURL+"/api/execute", executeEnvelope{Tool: tool, Params: params})
}

func (c *GatewayClient) StreamTool(ctx context.Context, tool string, params StepParams) (<-chan models.StreamChunk, error) {
	return c.stream(ctx, c.baseURL+"/api/execute/stream", executeEnvelope{Tool: tool, Params: params})
}

func (c *GatewayClient) HealthCheck(ctx context.Context) bool {
	return c.healthy(ctx, c.baseURL+"/api/health")
}
