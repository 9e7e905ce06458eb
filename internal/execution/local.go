package execution

import (
	"context"
	"time"

	"toolflow/pkg/models"
)

// LocalClient talks directly to a tool daemon on the local host.
type LocalClient struct {
	baseURL string
	httpExecutor
}

var _ ToolExecutor = (*LocalClient)(nil)

// NewLocalClient creates a LocalClient for the daemon at baseURL.
// A non-positive timeout selects DefaultTimeout.
func NewLocalClient(baseURL string, timeout time.Duration) *LocalClient {
	return &LocalClient{
		baseURL:      baseURL,
		httpExecutor: newHTTPExecutor("", timeout),
	}
}

func (c *LocalClient) ExecuteChat(ctx context.Context, params ChatParams) (*models.ToolResponse, error) {
	return c.post(ctx, c.baseURL+"/chat", params)
}

func (c *LocalClient) ExecuteTool(ctx context.Context, tool string, params StepParams) (*models.ToolResponse, error) {
	return c.post(ctx, c.baseURL+"/tools/"+tool, params)
}

func (c *LocalClient) StreamTool(ctx context.Context, tool string, params StepParams) (<-chan models.StreamChunk, error) {
	return c.stream(ctx, c.baseURL+"/tools/"+tool+"/stream", params)
}

func (c *LocalClient) HealthCheck(ctx context.Context) bool {
	return c.healthy(ctx, c.baseURL+"/health")
}
