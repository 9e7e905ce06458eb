package execution

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"toolflow/internal/apperr"
	"toolflow/pkg/models"
)

// DefaultTimeout bounds a single tool invocation. Workflow tools may
// run long analyses, so this is deliberately on the order of minutes.
const DefaultTimeout = 10 * time.Minute

// streamDoneMarker terminates an SSE stream.
const streamDoneMarker = "[DONE]"

// httpExecutor is the transport core both backends share. Timeout and
// error classification live here so the two implementations cannot
// drift apart.
type httpExecutor struct {
	client  *http.Client
	apiKey  string
	timeout time.Duration
}

func newHTTPExecutor(apiKey string, timeout time.Duration) httpExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return httpExecutor{
		// The per-call context carries the deadline; the client itself
		// stays unbounded so streaming responses are not cut off.
		client:  &http.Client{},
		apiKey:  apiKey,
		timeout: timeout,
	}
}

// post sends body as JSON and decodes a ToolResponse.
func (e httpExecutor) post(ctx context.Context, url string, body any) (*models.ToolResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.send(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr models.ToolResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "execution backend returned a malformed response", err)
	}
	return &tr, nil
}

// stream sends body as JSON and reads SSE data lines until the done
// marker. The channel closes after the final chunk; cancelling ctx
// also ends the stream.
func (e httpExecutor) stream(ctx context.Context, url string, body any) (<-chan models.StreamChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)

	resp, err := e.send(ctx, url, body)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan models.StreamChunk)
	go func() {
		defer cancel()
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == streamDoneMarker {
				select {
				case out <- models.StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			var chunk models.StreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Plain-text fragment from an older backend.
				chunk = models.StreamChunk{Content: data}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (e httpExecutor) send(ctx context.Context, url string, body any) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
			return nil, apperr.Newf(apperr.Unavailable, "execution backend unavailable: status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusGatewayTimeout {
			return nil, apperr.Newf(apperr.Timeout, "execution backend timed out upstream")
		}
		return nil, apperr.Newf(apperr.Internal, "execution backend: status %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}

func (e httpExecutor) healthy(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// classifyTransportError maps transport failures onto the retryable
// kinds: a deadline becomes Timeout, anything connection-shaped
// becomes Unavailable.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Timeout, "execution backend call timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.Unavailable, "execution backend call canceled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Wrap(apperr.Timeout, "execution backend call timed out", err)
	}
	return apperr.Wrap(apperr.Unavailable, "execution backend unreachable", err)
}
