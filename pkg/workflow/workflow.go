package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/openclaw/openclaw/pkg/agent"
	"github.com/openclaw/openclaw/pkg/types"
)

const (
	// TaskQueue is the single queue all workflows and activities share
	TaskQueue = "openclaw-tasks"

	// SignalApproveCapability resumes a workflow suspended on a
	// capability request. Payload is a bool: approved or denied.
	SignalApproveCapability = "approve_capability"

	// MaxIterations caps the agent loop per workflow run
	MaxIterations = 50

	// ApprovalTimeout bounds how long a task waits for a human decision
	ApprovalTimeout = 24 * time.Hour

	// BaseAgentImage is the fallback when a capability build fails
	BaseAgentImage = "localhost:5000/openclaw-agent:openclaw"
)

// TaskWorkflowInput starts an agent task run. CurrentImage and FollowUp
// are empty on first runs and carry prior state on continuations.
type TaskWorkflowInput struct {
	TaskID       string `json:"task_id"`
	LLMModel     string `json:"llm_model"`
	CurrentImage string `json:"current_image,omitempty"`
	FollowUp     string `json:"follow_up,omitempty"`
}

// TaskWorkflowResult summarizes a finished run
type TaskWorkflowResult struct {
	Status     string `json:"status"`
	Iterations int    `json:"iterations"`
	Error      string `json:"error,omitempty"`
}

// AgentTaskWorkflow drives one task: iterate agent steps as child
// workflows, suspend on capability requests, and finalize through the
// control plane. All I/O lives in activities; the workflow only
// branches on their results and on the approval signal.
func AgentTaskWorkflow(ctx workflow.Context, input TaskWorkflowInput) (*TaskWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	currentImage := input.CurrentImage
	continuation := currentImage != ""
	if currentImage == "" {
		currentImage = BaseAgentImage
	}
	model := input.LLMModel
	if model == "" {
		model = "gemma3:4b"
	}

	var acts *TaskActivities

	short := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
	})
	if err := workflow.ExecuteActivity(short, acts.InitializeTask, input.TaskID).Get(ctx, nil); err != nil {
		return nil, err
	}

	iteration := 0
	if continuation {
		// Resume numbering after the previous run's outputs
		opts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 15 * time.Second,
		})
		if err := workflow.ExecuteActivity(opts, acts.GetLastIteration, input.TaskID).Get(ctx, &iteration); err != nil {
			logger.Warn("Could not fetch last iteration, starting from zero", "error", err)
			iteration = 0
		}
	}

	sigCh := workflow.GetSignalChannel(ctx, SignalApproveCapability)

	for iteration < MaxIterations {
		iteration++

		var result types.AgentResult
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("agent-step-%s-iter-%d", input.TaskID, iteration),
		})
		err := workflow.ExecuteChildWorkflow(childCtx, AgentStepWorkflow, StepWorkflowInput{
			TaskID:    input.TaskID,
			Iteration: iteration,
			Image:     currentImage,
			Model:     model,
			FollowUp:  input.FollowUp,
		}).Get(ctx, &result)
		if err != nil {
			return finalize(ctx, acts, input.TaskID, "failed", iteration, err.Error())
		}

		// Storage failures must not kill the run
		if err := workflow.ExecuteActivity(short, acts.StoreTaskOutput, StoreOutputInput{
			TaskID:    input.TaskID,
			Iteration: iteration,
			Result:    result,
			ImageUsed: currentImage,
			ModelUsed: model,
		}).Get(ctx, nil); err != nil {
			logger.Warn("Failed to store iteration output", "iteration", iteration, "error", err)
		}

		if result.AgentFailed {
			return finalize(ctx, acts, input.TaskID, "failed", iteration, result.Error)
		}

		if result.DeploymentRequested {
			if err := workflow.ExecuteActivity(short, acts.CreateDeployment, DeploymentInput{
				TaskID:     input.TaskID,
				Deployment: result.Deployment,
			}).Get(ctx, nil); err != nil {
				logger.Warn("Failed to create deployment record", "error", err)
			}
			break
		}

		if result.Completed {
			break
		}

		if !result.CapabilityRequested {
			continue
		}

		// Approving: file the request, then suspend on the signal
		if err := workflow.ExecuteActivity(short, acts.CreateCapabilityRequest, CapabilityInput{
			TaskID:     input.TaskID,
			Capability: result.Capability,
		}).Get(ctx, nil); err != nil {
			logger.Warn("Failed to create capability request", "error", err)
		}

		approved, expired := awaitApproval(ctx, sigCh)
		if expired {
			return finalize(ctx, acts, input.TaskID, "failed", iteration, "capability approval timed out")
		}

		if approved {
			buildOpts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
				StartToCloseTimeout: 10 * time.Minute,
				RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
			})
			var newImage string
			if err := workflow.ExecuteActivity(buildOpts, acts.BuildAgentImage, BuildImageInput{
				TaskID:     input.TaskID,
				Capability: result.Capability,
				BaseImage:  currentImage,
			}).Get(ctx, &newImage); err != nil {
				logger.Warn("Capability build failed, falling back to base image", "error", err)
				newImage = BaseAgentImage
			}
			currentImage = newImage
			logger.Info("Task image updated", "image", currentImage)
		} else {
			logger.Info("Capability request denied, continuing with current image")
		}
	}

	return finalize(ctx, acts, input.TaskID, "completed", iteration, "")
}

// awaitApproval blocks on the approval signal with a deadline. Returns
// the decision and whether the deadline fired first.
func awaitApproval(ctx workflow.Context, sigCh workflow.ReceiveChannel) (approved, expired bool) {
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, ApprovalTimeout)

	received := false
	selector := workflow.NewSelector(ctx)
	selector.AddReceive(sigCh, func(ch workflow.ReceiveChannel, _ bool) {
		ch.Receive(ctx, &approved)
		received = true
	})
	selector.AddFuture(timer, func(workflow.Future) {
		expired = true
	})
	selector.Select(ctx)

	if received {
		cancelTimer()
		return approved, false
	}
	return false, expired
}

func finalize(ctx workflow.Context, acts *TaskActivities, taskID, status string, iterations int, errMsg string) (*TaskWorkflowResult, error) {
	opts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
	})
	if err := workflow.ExecuteActivity(opts, acts.FinalizeTask, FinalizeInput{
		TaskID: taskID,
		Status: status,
	}).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to finalize task", "status", status, "error", err)
	}
	return &TaskWorkflowResult{Status: status, Iterations: iterations, Error: errMsg}, nil
}

// StepWorkflowInput names one agent iteration
type StepWorkflowInput struct {
	TaskID    string `json:"task_id"`
	Iteration int    `json:"iteration"`
	Image     string `json:"image"`
	Model     string `json:"model"`
	FollowUp  string `json:"follow_up,omitempty"`
}

// AgentStepWorkflow runs a single iteration as its own child workflow so
// every recorded LLM turn shows up as a separate activity in the
// engine's history.
func AgentStepWorkflow(ctx workflow.Context, input StepWorkflowInput) (*types.AgentResult, error) {
	var step *agent.Activities

	startOpts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
	})
	var launch agent.StartContainerResult
	if err := workflow.ExecuteActivity(startOpts, step.StartAgentContainer, agent.StartContainerInput{
		TaskID:    input.TaskID,
		Iteration: input.Iteration,
		Image:     input.Image,
		Model:     input.Model,
		FollowUp:  input.FollowUp,
	}).Get(ctx, &launch); err != nil {
		return &types.AgentResult{AgentFailed: true, Error: err.Error()}, nil
	}

	pollOpts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 31 * time.Minute,
		HeartbeatTimeout:    60 * time.Second,
	})
	recordOpts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
	})

	turnsSeen := 0
	for {
		var poll agent.PollTurnsResult
		if err := workflow.ExecuteActivity(pollOpts, step.PollAgentTurns, agent.PollTurnsInput{
			TaskID:      input.TaskID,
			ContainerID: launch.ContainerID,
			TurnsSeen:   turnsSeen,
		}).Get(ctx, &poll); err != nil {
			return &types.AgentResult{AgentFailed: true, Error: err.Error()}, nil
		}

		for _, turn := range poll.NewTurns {
			turnsSeen++
			if err := workflow.ExecuteActivity(recordOpts, step.RecordAgentTurn, agent.RecordTurnInput{
				TaskID:    input.TaskID,
				Iteration: input.Iteration,
				Turn:      turnsSeen,
				Data:      turn,
			}).Get(ctx, nil); err != nil {
				workflow.GetLogger(ctx).Warn("Failed to record turn", "turn", turnsSeen, "error", err)
			}
		}

		if poll.ContainerDone {
			break
		}
	}

	collectOpts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
	})
	var result types.AgentResult
	if err := workflow.ExecuteActivity(collectOpts, step.CollectAgentResult, agent.CollectResultInput{
		TaskID:       input.TaskID,
		Iteration:    input.Iteration,
		ContainerID:  launch.ContainerID,
		WorkspaceDir: launch.WorkspaceDir,
		Image:        launch.Image,
		Model:        input.Model,
	}).Get(ctx, &result); err != nil {
		return &types.AgentResult{AgentFailed: true, Error: err.Error()}, nil
	}

	// Turns that landed between the last poll and container exit
	remaining := result.RemainingTurns
	if len(remaining) > turnsSeen {
		for _, turn := range remaining[turnsSeen:] {
			turnsSeen++
			if err := workflow.ExecuteActivity(recordOpts, step.RecordAgentTurn, agent.RecordTurnInput{
				TaskID:    input.TaskID,
				Iteration: input.Iteration,
				Turn:      turnsSeen,
				Data:      turn,
			}).Get(ctx, nil); err != nil {
				workflow.GetLogger(ctx).Warn("Failed to record trailing turn", "turn", turnsSeen, "error", err)
			}
		}
	}
	result.RemainingTurns = nil

	return &result, nil
}

// DeploymentBuildWorkflow builds a deployment image after approval
func DeploymentBuildWorkflow(ctx workflow.Context, deploymentID string) error {
	var acts *TaskActivities
	opts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	return workflow.ExecuteActivity(opts, acts.BuildDeploymentImage, deploymentID).Get(ctx, nil)
}

// DeploymentRunWorkflow starts or stops a deployment container
func DeploymentRunWorkflow(ctx workflow.Context, deploymentID, action string) error {
	var acts *TaskActivities

	switch action {
	case "start":
		opts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 5 * time.Minute,
		})
		return workflow.ExecuteActivity(opts, acts.StartDeploymentContainer, deploymentID).Get(ctx, nil)
	case "stop":
		opts := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 2 * time.Minute,
		})
		return workflow.ExecuteActivity(opts, acts.StopDeploymentContainer, deploymentID).Get(ctx, nil)
	default:
		return fmt.Errorf("unknown deployment action %q: %w", action, types.ErrValidation)
	}
}
