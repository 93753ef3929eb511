package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/openclaw/openclaw/pkg/agent"
	"github.com/openclaw/openclaw/pkg/types"
)

func newTaskEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *TaskActivities) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(AgentTaskWorkflow)
	env.RegisterWorkflow(AgentStepWorkflow)
	return env, &TaskActivities{}
}

func TestAgentTaskWorkflowCompletesFirstIteration(t *testing.T) {
	env, acts := newTaskEnv(t)

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-1").Return(nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		func(ctx workflow.Context, input StepWorkflowInput) (*types.AgentResult, error) {
			assert.Equal(t, "task-1", input.TaskID)
			assert.Equal(t, 1, input.Iteration)
			assert.Equal(t, BaseAgentImage, input.Image)
			return &types.AgentResult{Completed: true, Output: "done"}, nil
		})
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.FinalizeTask, mock.Anything, FinalizeInput{TaskID: "task-1", Status: "completed"}).Return(nil)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-1"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 1, result.Iterations)
	env.AssertExpectations(t)
}

func TestAgentTaskWorkflowAgentFailure(t *testing.T) {
	env, acts := newTaskEnv(t)

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-2").Return(nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		&types.AgentResult{AgentFailed: true, Error: "container crashed"}, nil)
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.FinalizeTask, mock.Anything, FinalizeInput{TaskID: "task-2", Status: "failed"}).Return(nil)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-2"})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "container crashed", result.Error)
}

func TestAgentTaskWorkflowCapabilityApproved(t *testing.T) {
	env, acts := newTaskEnv(t)
	const upgraded = "localhost:5000/openclaw-agent:task-3-v2"

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-3").Return(nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		func(ctx workflow.Context, input StepWorkflowInput) (*types.AgentResult, error) {
			if input.Iteration == 1 {
				assert.Equal(t, BaseAgentImage, input.Image)
				return &types.AgentResult{
					CapabilityRequested: true,
					Capability: &types.CapabilityAsk{
						Type:          "python_packages",
						Resource:      "pandas",
						Justification: "data analysis",
					},
				}, nil
			}
			// After an approved build the loop continues on the new image
			assert.Equal(t, upgraded, input.Image)
			return &types.AgentResult{Completed: true}, nil
		})
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.CreateCapabilityRequest, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.BuildAgentImage, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, input BuildImageInput) (string, error) {
			assert.Equal(t, BaseAgentImage, input.BaseImage)
			assert.Equal(t, "pandas", input.Capability.Resource)
			return upgraded, nil
		})
	env.OnActivity(acts.FinalizeTask, mock.Anything, FinalizeInput{TaskID: "task-3", Status: "completed"}).Return(nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApproveCapability, true)
	}, time.Minute)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-3"})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 2, result.Iterations)
	env.AssertExpectations(t)
}

func TestAgentTaskWorkflowCapabilityDenied(t *testing.T) {
	env, acts := newTaskEnv(t)

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-4").Return(nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		func(ctx workflow.Context, input StepWorkflowInput) (*types.AgentResult, error) {
			if input.Iteration == 1 {
				return &types.AgentResult{
					CapabilityRequested: true,
					Capability:          &types.CapabilityAsk{Type: "tool_install", Resource: "ffmpeg"},
				}, nil
			}
			// Denied means no build: still on the base image
			assert.Equal(t, BaseAgentImage, input.Image)
			return &types.AgentResult{Completed: true}, nil
		})
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.CreateCapabilityRequest, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.FinalizeTask, mock.Anything, mock.Anything).Return(nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApproveCapability, false)
	}, time.Minute)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-4"})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	env.AssertNotCalled(t, "BuildAgentImage", mock.Anything, mock.Anything)
}

func TestAgentTaskWorkflowApprovalTimeout(t *testing.T) {
	env, acts := newTaskEnv(t)

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-5").Return(nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		&types.AgentResult{
			CapabilityRequested: true,
			Capability:          &types.CapabilityAsk{Type: "tool_install", Resource: "ffmpeg"},
		}, nil)
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.CreateCapabilityRequest, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.FinalizeTask, mock.Anything, FinalizeInput{TaskID: "task-5", Status: "failed"}).Return(nil)

	// No signal ever arrives; the 24 h timer fires
	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-5"})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "failed", result.Status)
	assert.Contains(t, result.Error, "timed out")
	env.AssertExpectations(t)
}

func TestAgentTaskWorkflowBuildFailureFallsBack(t *testing.T) {
	env, acts := newTaskEnv(t)
	const custom = "localhost:5000/openclaw-agent:task-6-v3"

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-6").Return(nil)
	env.OnActivity(acts.GetLastIteration, mock.Anything, "task-6").Return(3, nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		func(ctx workflow.Context, input StepWorkflowInput) (*types.AgentResult, error) {
			if input.Iteration == 4 {
				assert.Equal(t, custom, input.Image)
				return &types.AgentResult{
					CapabilityRequested: true,
					Capability:          &types.CapabilityAsk{Type: "python_packages", Resource: "torch"},
				}, nil
			}
			// Build blew up, so the loop drops back to the stock image
			assert.Equal(t, BaseAgentImage, input.Image)
			return &types.AgentResult{Completed: true}, nil
		})
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.CreateCapabilityRequest, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.BuildAgentImage, mock.Anything, mock.Anything).Return("", errors.New("builder unreachable"))
	env.OnActivity(acts.FinalizeTask, mock.Anything, mock.Anything).Return(nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApproveCapability, true)
	}, time.Minute)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{
		TaskID:       "task-6",
		CurrentImage: custom,
		FollowUp:     "add retries",
	})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 5, result.Iterations)
}

func TestAgentTaskWorkflowDeploymentRequest(t *testing.T) {
	env, acts := newTaskEnv(t)

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-7").Return(nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		&types.AgentResult{
			DeploymentRequested: true,
			Deployment:          &types.DeploymentAsk{Name: "todo-api", Port: 5000, Entrypoint: "python app.py"},
		}, nil)
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.CreateDeployment, mock.Anything, mock.Anything).Return(
		func(ctx workflow.Context, input DeploymentInput) error {
			assert.Equal(t, "todo-api", input.Deployment.Name)
			return nil
		})
	env.OnActivity(acts.FinalizeTask, mock.Anything, FinalizeInput{TaskID: "task-7", Status: "completed"}).Return(nil)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-7"})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	env.AssertExpectations(t)
}

func TestAgentTaskWorkflowIterationCap(t *testing.T) {
	env, acts := newTaskEnv(t)

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-8").Return(nil)
	// Never completes, never fails: the loop must stop on its own
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(&types.AgentResult{}, nil)
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(acts.FinalizeTask, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-8"})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, MaxIterations, result.Iterations)
}

func TestAgentTaskWorkflowStorageErrorTolerated(t *testing.T) {
	env, acts := newTaskEnv(t)

	env.OnActivity(acts.InitializeTask, mock.Anything, "task-9").Return(nil)
	env.OnWorkflow(AgentStepWorkflow, mock.Anything, mock.Anything).Return(
		&types.AgentResult{Completed: true}, nil)
	env.OnActivity(acts.StoreTaskOutput, mock.Anything, mock.Anything).Return(errors.New("store offline"))
	env.OnActivity(acts.FinalizeTask, mock.Anything, FinalizeInput{TaskID: "task-9", Status: "completed"}).Return(nil)

	env.ExecuteWorkflow(AgentTaskWorkflow, TaskWorkflowInput{TaskID: "task-9"})

	require.True(t, env.IsWorkflowCompleted())
	var result TaskWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
}

func newStepEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *agent.Activities) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(AgentStepWorkflow)
	return env, &agent.Activities{}
}

func TestAgentStepWorkflowRecordsTurns(t *testing.T) {
	env, step := newStepEnv(t)

	turns := []types.Interaction{
		{Ordinal: 1, Provider: "ollama"},
		{Ordinal: 2, Provider: "ollama"},
	}

	env.OnActivity(step.StartAgentContainer, mock.Anything, mock.Anything).Return(
		&agent.StartContainerResult{ContainerID: "abc123", WorkspaceDir: "/tmp/ws", Image: BaseAgentImage}, nil)
	env.OnActivity(step.PollAgentTurns, mock.Anything, agent.PollTurnsInput{
		TaskID: "task-1", ContainerID: "abc123", TurnsSeen: 0,
	}).Return(&agent.PollTurnsResult{NewTurns: turns}, nil).Once()
	env.OnActivity(step.PollAgentTurns, mock.Anything, agent.PollTurnsInput{
		TaskID: "task-1", ContainerID: "abc123", TurnsSeen: 2,
	}).Return(&agent.PollTurnsResult{ContainerDone: true}, nil).Once()
	env.OnActivity(step.RecordAgentTurn, mock.Anything, mock.Anything).Return(&agent.TurnRecord{}, nil).Times(3)
	env.OnActivity(step.CollectAgentResult, mock.Anything, mock.Anything).Return(
		&types.AgentResult{
			Completed: true,
			// One turn landed after the final poll
			RemainingTurns: []types.Interaction{
				{Ordinal: 1}, {Ordinal: 2}, {Ordinal: 3},
			},
		}, nil)

	env.ExecuteWorkflow(AgentStepWorkflow, StepWorkflowInput{
		TaskID: "task-1", Iteration: 1, Image: BaseAgentImage, Model: "gemma3:4b",
	})

	require.True(t, env.IsWorkflowCompleted())
	var result types.AgentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Completed)
	assert.Nil(t, result.RemainingTurns, "drained turns must not leak into the envelope")
	env.AssertExpectations(t)
}

func TestAgentStepWorkflowStartFailureYieldsEnvelope(t *testing.T) {
	env, step := newStepEnv(t)

	env.OnActivity(step.StartAgentContainer, mock.Anything, mock.Anything).Return(
		nil, errors.New("image not found"))

	env.ExecuteWorkflow(AgentStepWorkflow, StepWorkflowInput{TaskID: "task-1", Iteration: 1, Image: "bogus"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError(), "launch failure must surface as an envelope, not a workflow error")

	var result types.AgentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.AgentFailed)
	assert.Contains(t, result.Error, "image not found")
}

func TestDeploymentRunWorkflowActions(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(DeploymentRunWorkflow)
		acts := &TaskActivities{}
		env.OnActivity(acts.StartDeploymentContainer, mock.Anything, "deploy-1").Return(nil)

		env.ExecuteWorkflow(DeploymentRunWorkflow, "deploy-1", "start")
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		env.AssertExpectations(t)
	})

	t.Run("stop", func(t *testing.T) {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(DeploymentRunWorkflow)
		acts := &TaskActivities{}
		env.OnActivity(acts.StopDeploymentContainer, mock.Anything, "deploy-1").Return(nil)

		env.ExecuteWorkflow(DeploymentRunWorkflow, "deploy-1", "stop")
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
	})

	t.Run("unknown action", func(t *testing.T) {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(DeploymentRunWorkflow)

		env.ExecuteWorkflow(DeploymentRunWorkflow, "deploy-1", "restart")
		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
	})
}

func TestDeploymentBuildWorkflow(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DeploymentBuildWorkflow)
	acts := &TaskActivities{}
	env.OnActivity(acts.BuildDeploymentImage, mock.Anything, "deploy-2").Return(nil)

	env.ExecuteWorkflow(DeploymentBuildWorkflow, "deploy-2")
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestWorkflowIDs(t *testing.T) {
	assert.Equal(t, "task-workflow-abc", TaskWorkflowID("abc"))
	assert.Equal(t, "task-workflow-abc-cont-2", ContinuationWorkflowID("abc", 2))
}
