package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openclaw/openclaw/pkg/types"
)

const defaultTimeout = 30 * time.Second

// ControlPlane is an HTTP client for the control-plane API. Activities
// use it instead of touching the store so every mutation goes through
// the same business logic and audit trail as a user request.
type ControlPlane struct {
	baseURL string
	http    *http.Client
}

// NewControlPlane creates a client for the given base URL,
// e.g. http://control-plane:8000
func NewControlPlane(baseURL string) *ControlPlane {
	return &ControlPlane{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// BaseURL returns the configured control-plane address
func (c *ControlPlane) BaseURL() string { return c.baseURL }

// GetTask fetches one task
func (c *ControlPlane) GetTask(ctx context.Context, taskID string) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// StartTask marks a created task running
func (c *ControlPlane) StartTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/start", nil, nil)
}

// CompleteTask marks a task completed
func (c *ControlPlane) CompleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/complete", nil, nil)
}

// FailTask marks a task failed with a reason
func (c *ControlPlane) FailTask(ctx context.Context, taskID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/fail", body, nil)
}

// AppendTaskOutput records one iteration's result
func (c *ControlPlane) AppendTaskOutput(ctx context.Context, taskID string, output *types.TaskOutput) (*types.TaskOutput, error) {
	var stored types.TaskOutput
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/outputs", output, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListTaskOutputs fetches all iteration outputs for a task, oldest first
func (c *ControlPlane) ListTaskOutputs(ctx context.Context, taskID string) ([]*types.TaskOutput, error) {
	var outputs []*types.TaskOutput
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+taskID+"/outputs", nil, &outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

// CreateTaskMessage appends a conversation message
func (c *ControlPlane) CreateTaskMessage(ctx context.Context, taskID string, msg *types.TaskMessage) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/messages", msg, nil)
}

// CreateCapabilityRequest files an agent's capability ask
func (c *ControlPlane) CreateCapabilityRequest(ctx context.Context, req *types.CapabilityRequest) (*types.CapabilityRequest, error) {
	var stored types.CapabilityRequest
	if err := c.do(ctx, http.MethodPost, "/api/capabilities/requests", req, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetCapabilityRequest fetches one capability request
func (c *ControlPlane) GetCapabilityRequest(ctx context.Context, id int) (*types.CapabilityRequest, error) {
	var req types.CapabilityRequest
	if err := c.do(ctx, http.MethodGet, "/api/capabilities/requests/"+strconv.Itoa(id), nil, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateDeployment inserts a deployment row awaiting approval
func (c *ControlPlane) CreateDeployment(ctx context.Context, dep map[string]interface{}) (*types.Deployment, error) {
	var stored types.Deployment
	if err := c.do(ctx, http.MethodPost, "/api/deployments", dep, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetDeployment fetches one deployment
func (c *ControlPlane) GetDeployment(ctx context.Context, id string) (*types.Deployment, error) {
	var dep types.Deployment
	if err := c.do(ctx, http.MethodGet, "/api/deployments/"+id, nil, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

// PatchDeployment updates a subset of deployment fields
func (c *ControlPlane) PatchDeployment(ctx context.Context, id string, fields map[string]interface{}) (*types.Deployment, error) {
	var dep types.Deployment
	if err := c.do(ctx, http.MethodPatch, "/api/deployments/"+id, fields, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

// ListInteractions drains the LLM trace for a task, newer than since
func (c *ControlPlane) ListInteractions(ctx context.Context, taskID string, since int) ([]types.Interaction, error) {
	path := "/api/llm/interactions/" + url.PathEscape(taskID)
	if since > 0 {
		path += "?since=" + strconv.Itoa(since)
	}
	var body struct {
		Interactions []types.Interaction `json:"interactions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Interactions, nil
}

// ClearInteractions wipes the LLM trace for a task
func (c *ControlPlane) ClearInteractions(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/llm/interactions/"+url.PathEscape(taskID), nil, nil)
}

func (c *ControlPlane) do(ctx context.Context, method, path string, body, out interface{}) error {
	return doJSON(ctx, c.http, method, c.baseURL+path, body, out)
}

// doJSON runs one JSON round trip, mapping 404 to ErrNotFound and other
// non-2xx statuses to wrapped errors carrying the response body
func doJSON(ctx context.Context, client *http.Client, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, url, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, url, types.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(data)
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return fmt.Errorf("%s %s: HTTP %d: %s", method, url, resp.StatusCode, detail)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, url, err)
		}
	}
	return nil
}
