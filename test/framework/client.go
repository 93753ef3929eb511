package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw/pkg/manager"
	"github.com/openclaw/openclaw/pkg/types"
)

// Client is a thin REST client for scenario tests. Helpers that cannot
// reasonably fail mid-scenario call require directly; Do is available
// when a scenario wants to assert on a status code.
type Client struct {
	t    *testing.T
	base string
	http *http.Client
}

// NewClient binds a client to a server base URL
func NewClient(t *testing.T, base string) *Client {
	return &Client{
		t:    t,
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Do runs one JSON request and decodes the response into out when
// non-nil, returning the status code
func (c *Client) Do(method, path string, body, out interface{}) int {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if out != nil && len(data) > 0 {
		require.NoError(c.t, json.Unmarshal(data, out), "decode %s %s: %s", method, path, data)
	}
	return resp.StatusCode
}

// CreateTask creates a task and requires success
func (c *Client) CreateTask(description string) types.Task {
	c.t.Helper()
	var task types.Task
	status := c.Do(http.MethodPost, "/api/tasks", map[string]string{"description": description}, &task)
	require.Equal(c.t, http.StatusCreated, status)
	return task
}

// GetTask fetches one task
func (c *Client) GetTask(id string) types.Task {
	c.t.Helper()
	var task types.Task
	status := c.Do(http.MethodGet, "/api/tasks/"+id, nil, &task)
	require.Equal(c.t, http.StatusOK, status)
	return task
}

// Transition drives one task lifecycle action
func (c *Client) Transition(taskID, action string) int {
	c.t.Helper()
	return c.Do(http.MethodPost, fmt.Sprintf("/api/tasks/%s/%s", taskID, action), nil, nil)
}

// AppendOutput records an iteration result
func (c *Client) AppendOutput(taskID string, output types.TaskOutput) int {
	c.t.Helper()
	return c.Do(http.MethodPost, "/api/tasks/"+taskID+"/outputs", output, nil)
}

// CreateCapabilityRequest files a capability ask
func (c *Client) CreateCapabilityRequest(req types.CapabilityRequest) types.CapabilityRequest {
	c.t.Helper()
	var stored types.CapabilityRequest
	status := c.Do(http.MethodPost, "/api/capabilities/requests", req, &stored)
	require.Equal(c.t, http.StatusCreated, status)
	return stored
}

// ReviewCapability posts a review decision
func (c *Client) ReviewCapability(id int, body map[string]interface{}, out interface{}) int {
	c.t.Helper()
	return c.Do(http.MethodPost, fmt.Sprintf("/api/capabilities/requests/%d/review", id), body, out)
}

// CreateDeployment files a deployment awaiting approval
func (c *Client) CreateDeployment(taskID, name string, port int) types.Deployment {
	c.t.Helper()
	var dep types.Deployment
	status := c.Do(http.MethodPost, "/api/deployments", map[string]interface{}{
		"task_id": taskID, "name": name, "port": port,
	}, &dep)
	require.Equal(c.t, http.StatusCreated, status)
	return dep
}

// GetDeployment fetches one deployment
func (c *Client) GetDeployment(id string) types.Deployment {
	c.t.Helper()
	var dep types.Deployment
	status := c.Do(http.MethodGet, "/api/deployments/"+id, nil, &dep)
	require.Equal(c.t, http.StatusOK, status)
	return dep
}

// PatchDeployment applies workflow-owned field updates
func (c *Client) PatchDeployment(id string, fields map[string]interface{}) int {
	c.t.Helper()
	return c.Do(http.MethodPatch, "/api/deployments/"+id, fields, nil)
}

// Timeline fetches the execution timeline
func (c *Client) Timeline(taskID string) []manager.TimelineEntry {
	c.t.Helper()
	var body struct {
		Timeline []manager.TimelineEntry `json:"timeline"`
	}
	status := c.Do(http.MethodGet, "/api/tasks/"+taskID+"/execution-timeline", nil, &body)
	require.Equal(c.t, http.StatusOK, status)
	return body.Timeline
}

// State fetches the aggregated task state
func (c *Client) State(taskID string) manager.CurrentState {
	c.t.Helper()
	var state manager.CurrentState
	status := c.Do(http.MethodGet, "/api/tasks/"+taskID+"/current-state", nil, &state)
	require.Equal(c.t, http.StatusOK, status)
	return state
}
