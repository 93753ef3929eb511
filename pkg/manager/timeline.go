package manager

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/openclaw/pkg/types"
)

// DockerfileVersion is one stored capability layer for a task
type DockerfileVersion struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Dockerfiles returns every Dockerfile the builder persisted for a task,
// in version order, current layer last. A task that never needed a build
// has none.
func (m *Manager) Dockerfiles(taskID string) ([]DockerfileVersion, error) {
	if _, err := m.store.GetTask(taskID); err != nil {
		return nil, err
	}

	dir := filepath.Join(m.agentImagesDir, taskID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var versions []DockerfileVersion
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "Dockerfile.v") {
			continue
		}
		version := 0
		for _, r := range name[len("Dockerfile.v"):] {
			if r < '0' || r > '9' {
				version = -1
				break
			}
			version = version*10 + int(r-'0')
		}
		if version <= 0 {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		versions = append(versions, DockerfileVersion{Version: version, Name: name, Content: string(content)})
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

// TimelineEntry is one row in a task's execution timeline
type TimelineEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Timeline merges the task's published events with its capability
// decisions into one chronological view
func (m *Manager) Timeline(taskID string) ([]TimelineEntry, error) {
	if _, err := m.store.GetTask(taskID); err != nil {
		return nil, err
	}

	var entries []TimelineEntry
	if m.broker != nil {
		for _, event := range m.broker.History(taskID) {
			entries = append(entries, TimelineEntry{
				Timestamp: event.Timestamp,
				Kind:      string(event.Type),
				Message:   event.Message,
				Metadata:  event.Metadata,
			})
		}
	}

	requests, err := m.store.ListCapabilityRequests(taskID, "")
	if err == nil {
		for _, req := range requests {
			entries = append(entries, TimelineEntry{
				Timestamp: req.RequestedAt,
				Kind:      "capability." + string(req.Status),
				Message:   req.ResourceName + ": " + req.Justification,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// CurrentState is the frontend's one-call task snapshot
type CurrentState struct {
	Task            *types.Task                `json:"task"`
	LastIteration   int                        `json:"last_iteration"`
	LastOutput      *types.TaskOutput          `json:"last_output,omitempty"`
	PendingRequests []*types.CapabilityRequest `json:"pending_requests,omitempty"`
	Deployments     []*types.Deployment        `json:"deployments,omitempty"`
	Dockerfiles     []DockerfileVersion        `json:"dockerfiles,omitempty"`
}

// State assembles the task's current state from its durable rows
func (m *Manager) State(taskID string) (*CurrentState, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	state := &CurrentState{Task: task}

	outputs, err := m.store.ListOutputsByTask(taskID)
	if err == nil && len(outputs) > 0 {
		last := outputs[len(outputs)-1]
		state.LastIteration = last.Iteration
		state.LastOutput = last
	}

	if pending, err := m.store.ListCapabilityRequests(taskID, types.RequestStatusPending); err == nil {
		state.PendingRequests = pending
	}
	if deployments, err := m.store.ListDeployments(taskID, ""); err == nil {
		state.Deployments = deployments
	}
	if dockerfiles, err := m.Dockerfiles(taskID); err == nil {
		state.Dockerfiles = dockerfiles
	}
	return state, nil
}
