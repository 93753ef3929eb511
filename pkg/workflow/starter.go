package workflow

import (
	"context"
	"fmt"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/openclaw/openclaw/pkg/log"
)

// Starter launches and signals task workflows. The control plane holds
// one; activities never start workflows themselves.
type Starter struct {
	client    temporalclient.Client
	taskQueue string
}

// NewStarter wraps an engine connection for workflow starts
func NewStarter(c temporalclient.Client, taskQueue string) *Starter {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Starter{client: c, taskQueue: taskQueue}
}

// TaskWorkflowID returns the deterministic workflow id for a task's
// first run
func TaskWorkflowID(taskID string) string {
	return "task-workflow-" + taskID
}

// ContinuationWorkflowID returns the workflow id for the n-th follow-up
// run of a task
func ContinuationWorkflowID(taskID string, n int) string {
	return fmt.Sprintf("task-workflow-%s-cont-%d", taskID, n)
}

// StartTask launches the first run of a task
func (s *Starter) StartTask(ctx context.Context, taskID, llmModel string) (workflowID, runID string, err error) {
	return s.start(ctx, TaskWorkflowID(taskID), TaskWorkflowInput{
		TaskID:   taskID,
		LLMModel: llmModel,
	})
}

// ContinueTask launches a follow-up run carrying the task's current
// image and the new instructions
func (s *Starter) ContinueTask(ctx context.Context, taskID, llmModel, currentImage, followUp string, n int) (workflowID, runID string, err error) {
	return s.start(ctx, ContinuationWorkflowID(taskID, n), TaskWorkflowInput{
		TaskID:       taskID,
		LLMModel:     llmModel,
		CurrentImage: currentImage,
		FollowUp:     followUp,
	})
}

func (s *Starter) start(ctx context.Context, workflowID string, input TaskWorkflowInput) (string, string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.taskQueue,
	}, AgentTaskWorkflow, input)
	if err != nil {
		return "", "", fmt.Errorf("start workflow %s: %w", workflowID, err)
	}

	log.WithTaskID(input.TaskID).Info().
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Msg("Task workflow started")
	return run.GetID(), run.GetRunID(), nil
}

// SignalApproval delivers a capability decision to a suspended task
// workflow
func (s *Starter) SignalApproval(ctx context.Context, workflowID string, approved bool) error {
	if err := s.client.SignalWorkflow(ctx, workflowID, "", SignalApproveCapability, approved); err != nil {
		return fmt.Errorf("signal %s: %w", workflowID, err)
	}
	return nil
}

// StartDeploymentBuild launches the image build for an approved
// deployment
func (s *Starter) StartDeploymentBuild(ctx context.Context, deploymentID string) (string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        "deployment-build-" + deploymentID,
		TaskQueue: s.taskQueue,
	}, DeploymentBuildWorkflow, deploymentID)
	if err != nil {
		return "", fmt.Errorf("start deployment build %s: %w", deploymentID, err)
	}
	return run.GetID(), nil
}

// StartDeploymentRun launches a start or stop of a deployment container
func (s *Starter) StartDeploymentRun(ctx context.Context, deploymentID, action string) (string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("deployment-%s-%s", action, deploymentID),
		TaskQueue: s.taskQueue,
	}, DeploymentRunWorkflow, deploymentID, action)
	if err != nil {
		return "", fmt.Errorf("start deployment %s %s: %w", action, deploymentID, err)
	}
	return run.GetID(), nil
}
