package framework

import (
	"context"
	"fmt"
	"sync"
)

// RecordingStarter satisfies the manager's workflow starter without an
// engine behind it. Scenarios assert on what the control plane asked
// the engine to do.
type RecordingStarter struct {
	mu sync.Mutex

	Started   []string
	Continued []ContinuationCall
	Signals   []SignalCall
	Builds    []string
	Runs      []RunCall
}

// ContinuationCall captures one ContinueTask request
type ContinuationCall struct {
	TaskID   string
	Model    string
	Image    string
	FollowUp string
	Ordinal  int
}

// SignalCall captures one approval signal
type SignalCall struct {
	WorkflowID string
	Approved   bool
}

// RunCall captures one deployment run request
type RunCall struct {
	DeploymentID string
	Action       string
}

func (r *RecordingStarter) StartTask(_ context.Context, taskID, _ string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Started = append(r.Started, taskID)
	return "task-workflow-" + taskID, "run-" + taskID, nil
}

func (r *RecordingStarter) ContinueTask(_ context.Context, taskID, model, image, followUp string, n int) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Continued = append(r.Continued, ContinuationCall{
		TaskID: taskID, Model: model, Image: image, FollowUp: followUp, Ordinal: n,
	})
	return fmt.Sprintf("task-workflow-%s-cont-%d", taskID, n), "run-cont", nil
}

func (r *RecordingStarter) SignalApproval(_ context.Context, workflowID string, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Signals = append(r.Signals, SignalCall{WorkflowID: workflowID, Approved: approved})
	return nil
}

func (r *RecordingStarter) StartDeploymentBuild(_ context.Context, deploymentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Builds = append(r.Builds, deploymentID)
	return "deployment-build-" + deploymentID, nil
}

func (r *RecordingStarter) StartDeploymentRun(_ context.Context, deploymentID, action string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Runs = append(r.Runs, RunCall{DeploymentID: deploymentID, Action: action})
	return fmt.Sprintf("deployment-%s-%s", action, deploymentID), nil
}

// SignalCount returns how many approval signals were sent
func (r *RecordingStarter) SignalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Signals)
}
