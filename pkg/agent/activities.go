package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/openclaw/openclaw/pkg/client"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/types"
	"github.com/openclaw/openclaw/pkg/workspace"
)

const (
	pollInterval = 3 * time.Second
	maxPolls     = 600

	collectWait = 120 * time.Second
)

// Activities implements the per-iteration agent step as Temporal
// activities: start the container, poll for LLM turns, record each turn,
// and collect the final result.
type Activities struct {
	Config       Config
	Runtime      runtime.ContainerRuntime
	ControlPlane *client.ControlPlane
	Workspaces   *workspace.Manager

	// test seams
	heartbeat func(ctx context.Context, details ...interface{})
	sleep     time.Duration
}

// NewActivities wires the step controller
func NewActivities(cfg Config, rt runtime.ContainerRuntime, cp *client.ControlPlane, ws *workspace.Manager) *Activities {
	return &Activities{
		Config:       cfg,
		Runtime:      rt,
		ControlPlane: cp,
		Workspaces:   ws,
		heartbeat:    activity.RecordHeartbeat,
		sleep:        pollInterval,
	}
}

// StartContainerInput names the iteration to launch
type StartContainerInput struct {
	TaskID    string `json:"task_id"`
	Iteration int    `json:"iteration"`
	Image     string `json:"image"`
	Model     string `json:"model"`
	FollowUp  string `json:"follow_up"`
}

// StartContainerResult identifies the launched container
type StartContainerResult struct {
	ContainerID  string `json:"container_id"`
	WorkspaceDir string `json:"workspace_dir"`
	Image        string `json:"image"`
}

// StartAgentContainer resolves the agent image, prepares the workspace,
// composes the environment, and launches the container detached
func (a *Activities) StartAgentContainer(ctx context.Context, input StartContainerInput) (*StartContainerResult, error) {
	logger := log.WithTaskID(input.TaskID)

	image, err := a.resolveImage(ctx, input.Image)
	if err != nil {
		return nil, err
	}

	workspaceID := "workspace-" + input.TaskID
	description := ""
	if task, err := a.ControlPlane.GetTask(ctx, input.TaskID); err == nil {
		if task.WorkspaceID != "" {
			workspaceID = task.WorkspaceID
		}
		description = task.Description
	} else {
		logger.Warn().Err(err).Msg("Could not fetch task details")
	}

	workspaceDir, err := a.Workspaces.Ensure(workspaceID)
	if err != nil {
		return nil, err
	}

	env := ComposeEnv(a.Config, input.TaskID, input.Iteration, image, input.Model, description, input.FollowUp)

	containerID, err := a.Runtime.RunDetached(ctx, runtime.RunSpec{
		Image:       image,
		Env:         env,
		Mounts:      []runtime.Mount{{Source: workspaceDir, Target: "/workspace"}},
		Tmpfs:       map[string]string{"/tmp": "size=100m,mode=1777"},
		NetworkMode: "host",
	})
	if err != nil {
		return nil, fmt.Errorf("start agent container: %w", err)
	}

	logger.Info().
		Int("iteration", input.Iteration).
		Str("image", image).
		Str("container_id", short(containerID)).
		Msg("Agent container started")

	return &StartContainerResult{
		ContainerID:  containerID,
		WorkspaceDir: workspaceDir,
		Image:        image,
	}, nil
}

// resolveImage tries local tag variants before pulling the
// registry-qualified form. The registry is addressed as localhost:5000
// from outside the nested daemon but registry:5000 from inside it.
func (a *Activities) resolveImage(ctx context.Context, image string) (string, error) {
	variants := []string{
		image,
		strings.Replace(image, "localhost:5000/", "registry:5000/", 1),
		strings.TrimPrefix(image, "localhost:5000/"),
		strings.TrimPrefix(image, "registry:5000/"),
	}

	seen := make(map[string]bool)
	for _, variant := range variants {
		if variant == "" || seen[variant] {
			continue
		}
		seen[variant] = true
		if ok, err := a.Runtime.ImageExists(ctx, variant); err == nil && ok {
			return variant, nil
		}
	}

	pullTag := strings.Replace(image, "localhost:5000/", "registry:5000/", 1)
	if !strings.HasPrefix(pullTag, "registry:5000/") {
		pullTag = "registry:5000/" + pullTag
	}
	if err := a.Runtime.Pull(ctx, pullTag); err != nil {
		return "", fmt.Errorf("image %s: %w", image, types.ErrImageNotFound)
	}
	return pullTag, nil
}

// PollTurnsInput carries the poll cursor
type PollTurnsInput struct {
	TaskID      string `json:"task_id"`
	ContainerID string `json:"container_id"`
	TurnsSeen   int    `json:"turns_seen"`
}

// PollTurnsResult reports new turns and whether the container finished
type PollTurnsResult struct {
	ContainerDone bool                `json:"container_done"`
	NewTurns      []types.Interaction `json:"new_turns,omitempty"`
}

// PollAgentTurns polls the gateway trace and the container status every
// few seconds, heartbeating each cycle. It returns as soon as there are
// new turns to record or the container has exited, so the workflow can
// record each turn as its own activity.
func (a *Activities) PollAgentTurns(ctx context.Context, input PollTurnsInput) (*PollTurnsResult, error) {
	logger := log.WithTaskID(input.TaskID)

	result := &PollTurnsResult{}
	for i := 0; i < maxPolls; i++ {
		a.heartbeat(ctx, fmt.Sprintf("turns_seen=%d", input.TurnsSeen+len(result.NewTurns)))

		turns, err := a.ControlPlane.ListInteractions(ctx, input.TaskID, input.TurnsSeen+len(result.NewTurns))
		if err != nil {
			logger.Warn().Err(err).Msg("Poll interactions failed")
		} else if len(turns) > 0 {
			result.NewTurns = append(result.NewTurns, turns...)
		}

		info, err := a.Runtime.Inspect(ctx, input.ContainerID)
		switch {
		case errors.Is(err, types.ErrNotFound):
			// Already removed counts as finished
			result.ContainerDone = true
		case err != nil:
			logger.Warn().Err(err).Msg("Container status check failed")
		case !info.Running:
			result.ContainerDone = true
		}

		if len(result.NewTurns) > 0 || result.ContainerDone {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.sleep):
		}
	}
	return result, nil
}

// RecordTurnInput is one turn to surface in the workflow history
type RecordTurnInput struct {
	TaskID    string            `json:"task_id"`
	Iteration int               `json:"iteration"`
	Turn      int               `json:"turn"`
	Data      types.Interaction `json:"data"`
}

// TurnRecord is the stored summary of one turn
type TurnRecord struct {
	TaskID       string   `json:"task_id"`
	Iteration    int      `json:"iteration"`
	Turn         int      `json:"turn"`
	Provider     string   `json:"provider"`
	FinishReason string   `json:"finish_reason"`
	ToolCalls    []string `json:"tool_calls,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// RecordAgentTurn logs one LLM turn. Each invocation is its own activity
// in the step workflow, giving operators per-turn visibility.
func (a *Activities) RecordAgentTurn(ctx context.Context, input RecordTurnInput) (*TurnRecord, error) {
	record := &TurnRecord{
		TaskID:    input.TaskID,
		Iteration: input.Iteration,
		Turn:      input.Turn,
		Provider:  input.Data.Provider,
		Timestamp: input.Data.Timestamp,
	}

	if fr, ok := input.Data.Response["finish_reason"].(string); ok {
		record.FinishReason = fr
	}
	if calls, ok := input.Data.Response["tool_calls"].([]interface{}); ok {
		for _, item := range calls {
			if tc, ok := item.(map[string]interface{}); ok {
				if name, ok := tc["name"].(string); ok {
					record.ToolCalls = append(record.ToolCalls, name)
				}
			}
		}
	}

	log.WithTaskID(input.TaskID).Info().
		Int("iteration", input.Iteration).
		Int("turn", input.Turn).
		Str("provider", record.Provider).
		Str("finish_reason", record.FinishReason).
		Strs("tool_calls", record.ToolCalls).
		Msg("Agent turn recorded")

	return record, nil
}

// CollectResultInput identifies the finished iteration
type CollectResultInput struct {
	TaskID       string `json:"task_id"`
	Iteration    int    `json:"iteration"`
	ContainerID  string `json:"container_id"`
	WorkspaceDir string `json:"workspace_dir"`
	Image        string `json:"image"`
	Model        string `json:"model"`
}

// CollectAgentResult waits for the container, harvests the result
// envelope, drains the trailing interaction turns, and removes the
// container
func (a *Activities) CollectAgentResult(ctx context.Context, input CollectResultInput) (*types.AgentResult, error) {
	logger := log.WithTaskID(input.TaskID)
	timer := metrics.NewTimer()

	var output string
	if _, err := a.Runtime.Wait(ctx, input.ContainerID, collectWait); err != nil {
		logger.Warn().Err(err).Msg("Container wait failed, reading what is available")
	}
	if logs, err := a.Runtime.Logs(ctx, input.ContainerID); err == nil {
		output = string(logs)
	} else {
		logger.Warn().Err(err).Msg("Could not read container logs")
	}

	if err := a.Runtime.Remove(ctx, input.ContainerID, true); err != nil {
		logger.Warn().Err(err).Str("container_id", short(input.ContainerID)).Msg("Container remove failed")
	}

	result := HarvestResult(output, input.WorkspaceDir)
	result.AgentLogs = Truncate(output, MaxLogBytes)
	result.Metadata = &types.StepMetadata{
		Iteration:   input.Iteration,
		ImageUsed:   input.Image,
		CollectedAt: time.Now().UTC().Format(time.RFC3339),
	}

	// Drain everything so the next iteration's ordinals restart at 1.
	// The workflow diffs against turns it already recorded.
	if turns, err := a.ControlPlane.ListInteractions(ctx, input.TaskID, 0); err == nil {
		result.RemainingTurns = turns
		if err := a.ControlPlane.ClearInteractions(ctx, input.TaskID); err != nil {
			logger.Warn().Err(err).Msg("Could not clear interactions")
		}
	} else {
		logger.Warn().Err(err).Msg("Could not fetch remaining interactions")
	}

	metrics.IterationsTotal.Inc()
	timer.ObserveDuration(metrics.IterationDuration)

	logger.Info().
		Int("iteration", input.Iteration).
		Bool("completed", result.Completed).
		Bool("capability_requested", result.CapabilityRequested).
		Bool("deployment_requested", result.DeploymentRequested).
		Msg("Agent result collected")

	return result, nil
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
