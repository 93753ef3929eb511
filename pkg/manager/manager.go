package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/openclaw/pkg/events"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/storage"
	"github.com/openclaw/openclaw/pkg/types"
)

const (
	// DefaultModel is used when a task names no model
	DefaultModel = "gemma3:4b"

	maxMessagePreview = 500
)

// WorkflowStarter is the slice of the workflow layer the control plane
// needs. Satisfied by workflow.Starter; faked in tests.
type WorkflowStarter interface {
	StartTask(ctx context.Context, taskID, llmModel string) (workflowID, runID string, err error)
	ContinueTask(ctx context.Context, taskID, llmModel, currentImage, followUp string, n int) (workflowID, runID string, err error)
	SignalApproval(ctx context.Context, workflowID string, approved bool) error
	StartDeploymentBuild(ctx context.Context, deploymentID string) (string, error)
	StartDeploymentRun(ctx context.Context, deploymentID, action string) (string, error)
}

// Manager owns the control plane's business logic: task lifecycle,
// capability review, deployment lifecycle, and the audit trail. The API
// layer stays thin; every rule lives here.
type Manager struct {
	store   storage.Store
	broker  *events.Broker
	starter WorkflowStarter

	// AgentImagesDir holds per-task Dockerfiles written by the builder
	agentImagesDir string
}

// Config holds the manager's wiring
type Config struct {
	Store          storage.Store
	Broker         *events.Broker
	Starter        WorkflowStarter
	AgentImagesDir string
}

// NewManager creates the control-plane core
func NewManager(cfg Config) *Manager {
	return &Manager{
		store:          cfg.Store,
		broker:         cfg.Broker,
		starter:        cfg.Starter,
		agentImagesDir: cfg.AgentImagesDir,
	}
}

// Store exposes the backing store for read-only collaborators
func (m *Manager) Store() storage.Store { return m.store }

// Broker exposes the event bus
func (m *Manager) Broker() *events.Broker { return m.broker }

// CreateTaskInput is the user's task submission
type CreateTaskInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LLMModel    string `json:"llm_model"`
	CreatedBy   string `json:"created_by"`
}

// CreateTask stores a task with its initial policy and auto-starts its
// workflow. The workflow's first activity moves the row to running.
func (m *Manager) CreateTask(ctx context.Context, input CreateTaskInput) (*types.Task, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, fmt.Errorf("task description is required: %w", types.ErrValidation)
	}

	model := input.LLMModel
	if model == "" {
		model = DefaultModel
	}

	taskID := "task-" + shortUUID()
	task := &types.Task{
		ID:          taskID,
		Name:        input.Name,
		Description: input.Description,
		Status:      types.TaskStatusCreated,
		WorkspaceID: "workspace-" + taskID,
		LLMModel:    model,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if task.Name == "" {
		task.Name = firstWords(input.Description, 8)
	}

	if err := m.store.CreateTask(task); err != nil {
		return nil, err
	}

	policy := defaultPolicy(taskID, input.CreatedBy)
	if err := m.store.CreatePolicy(policy); err != nil {
		log.WithTaskID(taskID).Warn().Err(err).Msg("Could not create initial policy")
	} else {
		task.CurrentPolicyID = policy.ID
	}

	workflowID, runID, err := m.starter.StartTask(ctx, taskID, model)
	if err != nil {
		// The row stays created; a retry endpoint or operator can start it
		log.WithTaskID(taskID).Error().Err(err).Msg("Could not start task workflow")
	} else {
		task.WorkflowID = workflowID
		task.WorkflowRunID = runID
	}
	if err := m.store.UpdateTask(task); err != nil {
		return nil, err
	}

	m.publish(events.EventTaskCreated, taskID, "Task created: "+task.Name, nil)
	m.audit(taskID, input.CreatedBy, "task.create", "task", taskID, map[string]interface{}{"model": model})
	metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()

	log.WithTaskID(taskID).Info().Str("model", model).Msg("Task created")
	return task, nil
}

// defaultPolicy is version 1: workspace-only writes, no network beyond
// the LLM gateway, stock tool set
func defaultPolicy(taskID, createdBy string) *types.Policy {
	return &types.Policy{
		TaskID:  taskID,
		Version: 1,
		ToolsAllowed: []string{
			"read_file", "write_file", "list_files", "execute_python", "execute_shell",
		},
		NetworkRules: map[string]interface{}{
			"allow": []string{"llm-gateway"},
		},
		FilesystemRules: map[string]interface{}{
			"writable": []string{"/workspace", "/tmp"},
		},
		DatabaseRules: map[string]interface{}{},
		ResourceLimits: map[string]interface{}{
			"memory_mb":   2048,
			"cpu_shares":  1024,
			"max_runtime": "30m",
		},
		CreatedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}
}

// GetTask fetches one task
func (m *Manager) GetTask(taskID string) (*types.Task, error) {
	return m.store.GetTask(taskID)
}

// ListTasks returns every task
func (m *Manager) ListTasks() ([]*types.Task, error) {
	return m.store.ListTasks()
}

// TransitionTask applies one named lifecycle action
func (m *Manager) TransitionTask(taskID, action, reason string) (*types.Task, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	var target types.TaskStatus
	switch action {
	case "start", "resume":
		target = types.TaskStatusRunning
	case "pause":
		target = types.TaskStatusPaused
	case "complete":
		target = types.TaskStatusCompleted
	case "fail":
		target = types.TaskStatusFailed
	case "cancel":
		target = types.TaskStatusCancelled
	default:
		return nil, fmt.Errorf("unknown task action %q: %w", action, types.ErrValidation)
	}

	if task.Status == target {
		// Idempotent for the workflow's retried activities
		return task, nil
	}
	if !CanTransitionTask(task.Status, target) {
		return nil, taskTransitionErr(taskID, task.Status, target)
	}

	now := time.Now().UTC()
	previous := task.Status
	task.Status = target
	task.UpdatedAt = now
	switch target {
	case types.TaskStatusRunning:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case types.TaskStatusCompleted, types.TaskStatusFailed, types.TaskStatusCancelled:
		task.CompletedAt = &now
	}

	if err := m.store.UpdateTask(task); err != nil {
		return nil, err
	}

	metrics.TasksTotal.WithLabelValues(string(previous)).Dec()
	metrics.TasksTotal.WithLabelValues(string(target)).Inc()

	eventType := map[types.TaskStatus]events.EventType{
		types.TaskStatusRunning:   events.EventTaskStarted,
		types.TaskStatusCompleted: events.EventTaskCompleted,
		types.TaskStatusFailed:    events.EventTaskFailed,
	}[target]
	if eventType != "" {
		msg := fmt.Sprintf("Task %s", target)
		if reason != "" {
			msg += ": " + reason
		}
		m.publish(eventType, taskID, msg, nil)
	}
	m.audit(taskID, "", "task."+action, "task", taskID, map[string]interface{}{"reason": reason})

	log.WithTaskID(taskID).Info().
		Str("from", string(previous)).
		Str("to", string(target)).
		Msg("Task transitioned")
	return task, nil
}

// AppendOutput records one iteration's result, derives the conversation
// message the user sees, and adopts the iteration's image as the task's
// current image
func (m *Manager) AppendOutput(taskID string, output *types.TaskOutput) (*types.TaskOutput, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	last, err := m.store.LastIteration(taskID)
	if err == nil && output.Iteration <= last {
		return nil, fmt.Errorf("iteration %d already recorded (last %d): %w",
			output.Iteration, last, types.ErrStateConflict)
	}

	output.TaskID = taskID
	output.CreatedAt = time.Now().UTC()
	if err := m.store.CreateTaskOutput(output); err != nil {
		return nil, err
	}

	if output.ImageUsed != "" && output.ImageUsed != task.CurrentImage {
		task.CurrentImage = output.ImageUsed
		task.UpdatedAt = time.Now().UTC()
		if err := m.store.UpdateTask(task); err != nil {
			log.WithTaskID(taskID).Warn().Err(err).Msg("Could not record current image")
		}
	}

	if msg := deriveAgentMessage(output); msg != nil {
		if err := m.store.CreateTaskMessage(msg); err != nil {
			log.WithTaskID(taskID).Warn().Err(err).Msg("Could not derive agent message")
		}
	}

	m.publish(events.EventIterationRecorded, taskID,
		fmt.Sprintf("Iteration %d recorded", output.Iteration),
		map[string]string{"completed": fmt.Sprintf("%t", output.Completed)})

	return output, nil
}

// deriveAgentMessage turns an iteration output into the chat entry the
// frontend shows: the agent's text plus a summary of produced files
func deriveAgentMessage(output *types.TaskOutput) *types.TaskMessage {
	content := strings.TrimSpace(output.Output)
	if content == "" && output.Error != "" {
		content = "Iteration failed: " + output.Error
	}
	if len(content) > maxMessagePreview {
		content = content[:maxMessagePreview] + "…"
	}

	if len(output.Deliverables) > 0 {
		var names []string
		for name := range output.Deliverables {
			names = append(names, name)
		}
		content += fmt.Sprintf("\n\nFiles produced: %s", strings.Join(names, ", "))
	}
	if content == "" {
		return nil
	}

	return &types.TaskMessage{
		TaskID:  output.TaskID,
		Role:    "agent",
		Content: content,
		Metadata: map[string]interface{}{
			"iteration": output.Iteration,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// ListOutputs returns a task's iteration outputs, oldest first
func (m *Manager) ListOutputs(taskID string) ([]*types.TaskOutput, error) {
	if _, err := m.store.GetTask(taskID); err != nil {
		return nil, err
	}
	return m.store.ListOutputsByTask(taskID)
}

// CreateMessage appends one conversation entry
func (m *Manager) CreateMessage(taskID string, msg *types.TaskMessage) (*types.TaskMessage, error) {
	if _, err := m.store.GetTask(taskID); err != nil {
		return nil, err
	}
	if msg.Role == "" {
		msg.Role = "user"
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("message content is required: %w", types.ErrValidation)
	}
	msg.TaskID = taskID
	msg.CreatedAt = time.Now().UTC()
	if err := m.store.CreateTaskMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a task's conversation, oldest first
func (m *Manager) ListMessages(taskID string) ([]*types.TaskMessage, error) {
	if _, err := m.store.GetTask(taskID); err != nil {
		return nil, err
	}
	return m.store.ListMessagesByTask(taskID)
}

// ContinueTask starts a follow-up workflow run on a finished task,
// carrying the task's current image so the agent resumes on its own
// prior layers
func (m *Manager) ContinueTask(ctx context.Context, taskID, followUp string) (*types.Task, error) {
	if strings.TrimSpace(followUp) == "" {
		return nil, fmt.Errorf("follow-up instructions are required: %w", types.ErrValidation)
	}

	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != types.TaskStatusCompleted && task.Status != types.TaskStatusFailed {
		return nil, fmt.Errorf("task %s is %s, only finished tasks continue: %w",
			taskID, task.Status, types.ErrStateConflict)
	}

	// The last iteration number doubles as the continuation ordinal; it
	// is monotone across runs so workflow ids never collide
	last, err := m.store.LastIteration(taskID)
	if err != nil {
		last = 0
	}

	currentImage := task.CurrentImage
	if currentImage == "" {
		currentImage = "localhost:5000/openclaw-agent:openclaw"
	}

	if _, err := m.CreateMessage(taskID, &types.TaskMessage{Role: "user", Content: followUp}); err != nil {
		log.WithTaskID(taskID).Warn().Err(err).Msg("Could not record follow-up message")
	}

	workflowID, runID, err := m.starter.ContinueTask(ctx, taskID, task.LLMModel, currentImage, followUp, last)
	if err != nil {
		return nil, fmt.Errorf("continue task %s: %w", taskID, err)
	}

	now := time.Now().UTC()
	task.Status = types.TaskStatusRunning
	task.WorkflowID = workflowID
	task.WorkflowRunID = runID
	task.CompletedAt = nil
	task.UpdatedAt = now
	if err := m.store.UpdateTask(task); err != nil {
		return nil, err
	}

	m.publish(events.EventTaskContinued, taskID, "Continuation started", map[string]string{
		"workflow_id": workflowID,
	})
	m.audit(taskID, "", "task.continue", "task", taskID, map[string]interface{}{"follow_up": firstWords(followUp, 12)})

	log.WithTaskID(taskID).Info().Str("workflow_id", workflowID).Msg("Task continuation started")
	return task, nil
}

// AuditTrail returns the audit entries recorded for a task
func (m *Manager) AuditTrail(taskID string) ([]*types.AuditEntry, error) {
	return m.store.ListAuditByTask(taskID)
}

func (m *Manager) publish(eventType events.EventType, taskID, message string, metadata map[string]string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		ID:       shortUUID(),
		Type:     eventType,
		TaskID:   taskID,
		Message:  message,
		Metadata: metadata,
	})
}

func (m *Manager) audit(taskID, userID, action, resourceType, resourceID string, details map[string]interface{}) {
	entry := &types.AuditEntry{
		TaskID:       taskID,
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		Timestamp:    time.Now().UTC(),
	}
	if err := m.store.AppendAudit(entry); err != nil {
		log.WithComponent("manager").Warn().Err(err).Str("action", action).Msg("Audit append failed")
	}
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
