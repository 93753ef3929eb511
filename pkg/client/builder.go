package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/openclaw/pkg/types"
)

// Builder is an HTTP client for the image-builder service
type Builder struct {
	baseURL string
	http    *http.Client
}

// NewBuilder creates a client for the given builder address,
// e.g. http://image-builder:8001
func NewBuilder(baseURL string) *Builder {
	return &Builder{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// BuildAck is the builder's acknowledgement of a queued build
type BuildAck struct {
	BuildID  string `json:"build_id"`
	TaskID   string `json:"task_id"`
	ImageTag string `json:"image_tag"`
	Status   string `json:"status"`
}

// StartAgentBuild queues a capability-layer build on top of baseImage
func (b *Builder) StartAgentBuild(ctx context.Context, taskID, baseImage string, caps []types.Capability) (*BuildAck, error) {
	body := map[string]interface{}{
		"task_id":      taskID,
		"base_image":   baseImage,
		"capabilities": caps,
	}
	var ack BuildAck
	if err := doJSON(ctx, b.http, http.MethodPost, b.baseURL+"/build", body, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// StartDeploymentBuild queues a deployment image build
func (b *Builder) StartDeploymentBuild(ctx context.Context, deploymentID, taskID, entrypoint string, port int) (*BuildAck, error) {
	body := map[string]interface{}{
		"deployment_id": deploymentID,
		"task_id":       taskID,
		"entrypoint":    entrypoint,
		"port":          port,
	}
	var ack BuildAck
	if err := doJSON(ctx, b.http, http.MethodPost, b.baseURL+"/build-deployment", body, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// BuildState is a point-in-time view of one build
type BuildState struct {
	BuildID  string            `json:"build_id"`
	Status   types.BuildStatus `json:"status"`
	ImageTag string            `json:"image_tag"`
	Digest   string            `json:"digest"`
	Error    string            `json:"error"`
	Logs     string            `json:"logs"`
}

// GetBuild fetches the current state of a build
func (b *Builder) GetBuild(ctx context.Context, buildID string) (*BuildState, error) {
	var state BuildState
	if err := doJSON(ctx, b.http, http.MethodGet, b.baseURL+"/builds/"+buildID, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Terminal reports whether a build has finished either way
func (s *BuildState) Terminal() bool {
	return s.Status == types.BuildSuccess || s.Status == types.BuildFailed
}

// WaitForBuild polls a build until it reaches a terminal status or the
// deadline passes. The poll cadence matches the workflow's 5 s rhythm.
func (b *Builder) WaitForBuild(ctx context.Context, buildID string, interval, deadline time.Duration) (*BuildState, error) {
	timeout := time.After(deadline)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := b.GetBuild(ctx, buildID)
		if err == nil && state.Terminal() {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, types.ErrTimeout
		case <-ticker.C:
		}
	}
}
