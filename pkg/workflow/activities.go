package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openclaw/openclaw/pkg/agent"
	"github.com/openclaw/openclaw/pkg/client"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/network"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/types"
	"github.com/openclaw/openclaw/pkg/workspace"
)

const (
	buildPollInterval   = 5 * time.Second
	agentBuildDeadline  = 10 * time.Minute
	deployBuildDeadline = 5 * time.Minute
	deployStopGrace     = 10 * time.Second
)

var durationMsRe = regexp.MustCompile(`"durationMs"\s*:\s*(\d+)`)

// TaskActivities implements the task-level side effects: control-plane
// bookkeeping, capability builds, and deployment containers. The
// per-iteration agent activities live in pkg/agent.
type TaskActivities struct {
	ControlPlane *client.ControlPlane
	Builder      *client.Builder
	Runtime      runtime.ContainerRuntime
	Ports        *network.PortAllocator
	Workspaces   *workspace.Manager
}

// NewTaskActivities wires the task-level activity set
func NewTaskActivities(cp *client.ControlPlane, builder *client.Builder, rt runtime.ContainerRuntime, ws *workspace.Manager) *TaskActivities {
	return &TaskActivities{
		ControlPlane: cp,
		Builder:      builder,
		Runtime:      rt,
		Ports:        network.NewPortAllocator(rt),
		Workspaces:   ws,
	}
}

// InitializeTask moves the task to running and makes sure its workspace
// exists. Continuations arrive already running; that conflict is fine.
func (a *TaskActivities) InitializeTask(ctx context.Context, taskID string) error {
	logger := log.WithTaskID(taskID)

	task, err := a.ControlPlane.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	workspaceID := task.WorkspaceID
	if workspaceID == "" {
		workspaceID = "workspace-" + taskID
	}
	if _, err := a.Workspaces.Ensure(workspaceID); err != nil {
		return fmt.Errorf("prepare workspace: %w", err)
	}

	if task.Status != types.TaskStatusRunning {
		if err := a.ControlPlane.StartTask(ctx, taskID); err != nil {
			logger.Warn().Err(err).Msg("Could not mark task running")
		}
	}

	logger.Info().Str("workspace_id", workspaceID).Msg("Task initialized")
	return nil
}

// GetLastIteration returns the highest stored iteration number, so a
// continuation resumes numbering where the previous run stopped
func (a *TaskActivities) GetLastIteration(ctx context.Context, taskID string) (int, error) {
	outputs, err := a.ControlPlane.ListTaskOutputs(ctx, taskID)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, out := range outputs {
		if out.Iteration > last {
			last = out.Iteration
		}
	}
	return last, nil
}

// StoreOutputInput carries one iteration's envelope to persistence
type StoreOutputInput struct {
	TaskID    string            `json:"task_id"`
	Iteration int               `json:"iteration"`
	Result    types.AgentResult `json:"result"`
	ImageUsed string            `json:"image_used"`
	ModelUsed string            `json:"model_used"`
}

// StoreTaskOutput persists one iteration's result through the control
// plane, which also derives the conversation message from it
func (a *TaskActivities) StoreTaskOutput(ctx context.Context, input StoreOutputInput) error {
	r := input.Result

	imageUsed := input.ImageUsed
	if r.Metadata != nil && r.Metadata.ImageUsed != "" {
		imageUsed = r.Metadata.ImageUsed
	}

	output := &types.TaskOutput{
		TaskID:              input.TaskID,
		Iteration:           input.Iteration,
		Completed:           r.Completed,
		CapabilityRequested: r.CapabilityRequested,
		AgentLogs:           agent.Truncate(r.AgentLogs, agent.MaxLogBytes),
		Output:              agent.Truncate(r.Output, agent.MaxLogBytes),
		Error:               r.Error,
		LLMResponsePreview:  agent.Truncate(r.Output, 500),
		ModelUsed:           input.ModelUsed,
		ImageUsed:           imageUsed,
		DurationMs:          extractDurationMs(r.Output),
		Deliverables:        r.Deliverables,
		RawResult:           rawEnvelope(r),
	}

	if _, err := a.ControlPlane.AppendTaskOutput(ctx, input.TaskID, output); err != nil {
		return err
	}

	log.WithTaskID(input.TaskID).Info().
		Int("iteration", input.Iteration).
		Bool("completed", r.Completed).
		Msg("Iteration output stored")
	return nil
}

// extractDurationMs scrapes the wrapper's timing field out of the raw
// output text. Absent or malformed means zero.
func extractDurationMs(output string) int64 {
	m := durationMsRe.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

func rawEnvelope(r types.AgentResult) map[string]interface{} {
	raw := map[string]interface{}{
		"completed":            r.Completed,
		"capability_requested": r.CapabilityRequested,
		"deployment_requested": r.DeploymentRequested,
		"agent_failed":         r.AgentFailed,
	}
	if r.ParseError {
		raw["parse_error"] = true
	}
	if r.Capability != nil {
		raw["capability"] = r.Capability
	}
	if r.Deployment != nil {
		raw["deployment"] = r.Deployment
	}
	return raw
}

// CapabilityInput files one capability ask against the control plane
type CapabilityInput struct {
	TaskID     string               `json:"task_id"`
	Capability *types.CapabilityAsk `json:"capability"`
}

// CreateCapabilityRequest records the agent's ask so a human can decide.
// The workflow suspends on the approval signal right after this runs.
func (a *TaskActivities) CreateCapabilityRequest(ctx context.Context, input CapabilityInput) error {
	ask := input.Capability
	if ask == nil {
		ask = &types.CapabilityAsk{Type: "tool_install", Resource: "unknown"}
	}

	req := &types.CapabilityRequest{
		TaskID:         input.TaskID,
		CapabilityType: capabilityType(ask.Type),
		ResourceName:   ask.Resource,
		Justification:  ask.Justification,
		Details:        map[string]interface{}{"requested_kind": ask.Type},
	}

	stored, err := a.ControlPlane.CreateCapabilityRequest(ctx, req)
	if err != nil {
		return err
	}

	log.WithTaskID(input.TaskID).Info().
		Int("request_id", stored.ID).
		Str("resource", ask.Resource).
		Msg("Capability request filed, awaiting review")
	return nil
}

// capabilityType folds the wrapper's marker kinds into the control
// plane's taxonomy
func capabilityType(kind string) types.CapabilityType {
	switch kind {
	case "network_access":
		return types.CapabilityNetworkAccess
	case "filesystem_access":
		return types.CapabilityFilesystemAccess
	case "database_access":
		return types.CapabilityDatabaseAccess
	default:
		// python_packages, npm_packages, tool_install and friends are
		// all installs at review time
		return types.CapabilityToolInstall
	}
}

// BuildImageInput asks for a capability layer on top of BaseImage
type BuildImageInput struct {
	TaskID     string               `json:"task_id"`
	Capability *types.CapabilityAsk `json:"capability"`
	BaseImage  string               `json:"base_image"`
}

// BuildAgentImage layers the approved capability onto the task's image
// through the builder service. A failed build is not fatal: the task
// keeps running on the base image, so the fallback tag is returned
// instead of an error.
func (a *TaskActivities) BuildAgentImage(ctx context.Context, input BuildImageInput) (string, error) {
	logger := log.WithTaskID(input.TaskID)
	timer := metrics.NewTimer()

	// The builder talks to the nested daemon, which reaches the registry
	// as registry:5000 instead of localhost:5000
	base := strings.Replace(input.BaseImage, "localhost:5000/", "registry:5000/", 1)

	ack, err := a.Builder.StartAgentBuild(ctx, input.TaskID, base, buildCapabilities(input.Capability))
	if err != nil {
		logger.Warn().Err(err).Msg("Could not queue capability build, keeping base image")
		return input.BaseImage, nil
	}

	state, err := a.Builder.WaitForBuild(ctx, ack.BuildID, buildPollInterval, agentBuildDeadline)
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("agent", "failed").Inc()
		logger.Warn().Err(err).Str("build_id", ack.BuildID).Msg("Capability build did not finish, keeping base image")
		return input.BaseImage, nil
	}
	if state.Status != types.BuildSuccess {
		metrics.BuildsTotal.WithLabelValues("agent", "failed").Inc()
		logger.Warn().
			Str("build_id", ack.BuildID).
			Str("error", state.Error).
			Msg("Capability build failed, keeping base image")
		return input.BaseImage, nil
	}

	metrics.BuildsTotal.WithLabelValues("agent", "success").Inc()
	timer.ObserveDurationVec(metrics.BuildDuration, "agent")

	// Workers pull through localhost:5000
	newImage := strings.Replace(state.ImageTag, "registry:5000/", "localhost:5000/", 1)
	logger.Info().Str("image", newImage).Msg("Capability build succeeded")
	return newImage, nil
}

// buildCapabilities expands a marker ask into the builder's (kind, name)
// pairs. Comma-separated resources become one capability each.
func buildCapabilities(ask *types.CapabilityAsk) []types.Capability {
	if ask == nil {
		return nil
	}

	kind := "tool"
	switch ask.Type {
	case "python_packages", "pip_package", "pip":
		kind = "pip_package"
	case "npm_packages", "npm_package", "npm":
		kind = "npm_package"
	case "apt_packages", "apt_package", "apt":
		kind = "apt_package"
	}

	var caps []types.Capability
	for _, name := range strings.Split(ask.Resource, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		caps = append(caps, types.Capability{Kind: kind, Name: name})
	}
	return caps
}

// FinalizeInput names the terminal task status
type FinalizeInput struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// FinalizeTask moves the task to its terminal state
func (a *TaskActivities) FinalizeTask(ctx context.Context, input FinalizeInput) error {
	if input.Status == "completed" {
		return a.ControlPlane.CompleteTask(ctx, input.TaskID)
	}
	return a.ControlPlane.FailTask(ctx, input.TaskID, "workflow finalized as "+input.Status)
}

// DeploymentInput carries the agent's deployment ask
type DeploymentInput struct {
	TaskID     string               `json:"task_id"`
	Deployment *types.DeploymentAsk `json:"deployment"`
}

// CreateDeployment inserts a pending-approval deployment row from the
// agent's marker, filling sane defaults for missing fields
func (a *TaskActivities) CreateDeployment(ctx context.Context, input DeploymentInput) error {
	ask := input.Deployment
	if ask == nil {
		ask = &types.DeploymentAsk{}
	}

	name := ask.Name
	if name == "" {
		name = "app-" + input.TaskID
	}
	port := ask.Port
	if port == 0 {
		port = 5000
	}
	entrypoint := ask.Entrypoint
	if entrypoint == "" {
		entrypoint = "python app.py"
	}

	dep, err := a.ControlPlane.CreateDeployment(ctx, map[string]interface{}{
		"task_id":    input.TaskID,
		"name":       name,
		"port":       port,
		"entrypoint": entrypoint,
	})
	if err != nil {
		return err
	}

	log.WithTaskID(input.TaskID).Info().
		Str("deployment_id", dep.ID).
		Str("name", name).
		Msg("Deployment created, awaiting approval")
	return nil
}

// BuildDeploymentImage packages a task workspace into a deployment image
func (a *TaskActivities) BuildDeploymentImage(ctx context.Context, deploymentID string) error {
	logger := log.WithDeploymentID(deploymentID)
	timer := metrics.NewTimer()

	dep, err := a.ControlPlane.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}

	if _, err := a.ControlPlane.PatchDeployment(ctx, deploymentID, map[string]interface{}{
		"status": string(types.DeploymentBuilding),
	}); err != nil {
		logger.Warn().Err(err).Msg("Could not mark deployment building")
	}

	ack, err := a.Builder.StartDeploymentBuild(ctx, deploymentID, dep.TaskID, dep.Entrypoint, dep.Port)
	if err != nil {
		return a.failDeployment(ctx, deploymentID, fmt.Errorf("queue deployment build: %w", err))
	}

	state, err := a.Builder.WaitForBuild(ctx, ack.BuildID, buildPollInterval, deployBuildDeadline)
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("deployment", "failed").Inc()
		return a.failDeployment(ctx, deploymentID, fmt.Errorf("deployment build: %w", err))
	}
	if state.Status != types.BuildSuccess {
		metrics.BuildsTotal.WithLabelValues("deployment", "failed").Inc()
		return a.failDeployment(ctx, deploymentID, fmt.Errorf("deployment build failed: %s", state.Error))
	}

	metrics.BuildsTotal.WithLabelValues("deployment", "success").Inc()
	timer.ObserveDurationVec(metrics.BuildDuration, "deployment")

	if _, err := a.ControlPlane.PatchDeployment(ctx, deploymentID, map[string]interface{}{
		"status":    string(types.DeploymentBuilt),
		"image_tag": state.ImageTag,
	}); err != nil {
		return err
	}

	logger.Info().Str("image_tag", state.ImageTag).Msg("Deployment image built")
	return nil
}

func (a *TaskActivities) failDeployment(ctx context.Context, deploymentID string, cause error) error {
	if _, err := a.ControlPlane.PatchDeployment(ctx, deploymentID, map[string]interface{}{
		"status": string(types.DeploymentFailed),
		"error":  cause.Error(),
	}); err != nil {
		log.WithDeploymentID(deploymentID).Warn().Err(err).Msg("Could not mark deployment failed")
	}
	return cause
}

// StartDeploymentContainer runs a built deployment image on the first
// free host port in the deployment range
func (a *TaskActivities) StartDeploymentContainer(ctx context.Context, deploymentID string) error {
	logger := log.WithDeploymentID(deploymentID)

	dep, err := a.ControlPlane.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if dep.ImageTag == "" {
		return a.failDeployment(ctx, deploymentID, fmt.Errorf("deployment %s has no image: %w", deploymentID, types.ErrStateConflict))
	}

	if ok, err := a.Runtime.ImageExists(ctx, dep.ImageTag); err != nil || !ok {
		if err := a.Runtime.Pull(ctx, dep.ImageTag); err != nil {
			return a.failDeployment(ctx, deploymentID, fmt.Errorf("image %s: %w", dep.ImageTag, types.ErrImageNotFound))
		}
	}

	hostPort, err := a.Ports.Allocate(ctx)
	if err != nil {
		return a.failDeployment(ctx, deploymentID, err)
	}

	containerID, err := a.Runtime.RunDetached(ctx, runtime.RunSpec{
		Image:         dep.ImageTag,
		Name:          "deploy-" + deploymentID,
		Ports:         map[int]int{dep.Port: hostPort},
		RestartPolicy: "unless-stopped",
		Labels: map[string]string{
			"openclaw.deployment": deploymentID,
			"openclaw.task":       dep.TaskID,
		},
	})
	if err != nil {
		return a.failDeployment(ctx, deploymentID, fmt.Errorf("start deployment container: %w", err))
	}

	url := fmt.Sprintf("http://localhost:%d", hostPort)
	if _, err := a.ControlPlane.PatchDeployment(ctx, deploymentID, map[string]interface{}{
		"status":       string(types.DeploymentRunning),
		"container_id": containerID,
		"host_port":    hostPort,
		"url":          url,
	}); err != nil {
		return err
	}

	metrics.DeploymentStartsTotal.Inc()
	logger.Info().
		Int("host_port", hostPort).
		Str("url", url).
		Msg("Deployment container running")
	return nil
}

// StopDeploymentContainer stops and removes a running deployment
func (a *TaskActivities) StopDeploymentContainer(ctx context.Context, deploymentID string) error {
	logger := log.WithDeploymentID(deploymentID)

	dep, err := a.ControlPlane.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}

	if dep.ContainerID != "" {
		if err := a.Runtime.Stop(ctx, dep.ContainerID, deployStopGrace); err != nil {
			logger.Warn().Err(err).Msg("Container stop failed, removing anyway")
		}
		if err := a.Runtime.Remove(ctx, dep.ContainerID, true); err != nil {
			logger.Warn().Err(err).Msg("Container remove failed")
		}
	}

	if _, err := a.ControlPlane.PatchDeployment(ctx, deploymentID, map[string]interface{}{
		"status":       string(types.DeploymentStopped),
		"container_id": nil,
		"host_port":    nil,
		"url":          nil,
	}); err != nil {
		return err
	}

	logger.Info().Msg("Deployment container stopped")
	return nil
}
