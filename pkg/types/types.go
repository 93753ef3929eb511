package types

import (
	"time"
)

// Task represents a top-level user request executed by an agent
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`

	// Workspace and execution
	WorkspaceID     string `json:"workspace_id"`
	CurrentImage    string `json:"current_image,omitempty"`
	CurrentPolicyID int    `json:"current_policy_id,omitempty"`
	LLMModel        string `json:"llm_model"`

	// Durable workflow identity
	WorkflowID    string `json:"workflow_id,omitempty"`
	WorkflowRunID string `json:"workflow_run_id,omitempty"`

	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusCreated   TaskStatus = "created"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Policy is a versioned rule set governing what a task's agent may do.
// Versions are monotone per task; older versions are never mutated.
type Policy struct {
	ID      int    `json:"id"`
	TaskID  string `json:"task_id"`
	Version int    `json:"version"`

	ToolsAllowed    []string               `json:"tools_allowed"`
	NetworkRules    map[string]interface{} `json:"network_rules"`
	FilesystemRules map[string]interface{} `json:"filesystem_rules"`
	DatabaseRules   map[string]interface{} `json:"database_rules"`
	ResourceLimits  map[string]interface{} `json:"resource_limits"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// CapabilityType classifies what kind of permission an agent is asking for
type CapabilityType string

const (
	CapabilityToolInstall      CapabilityType = "tool_install"
	CapabilityNetworkAccess    CapabilityType = "network_access"
	CapabilityFilesystemAccess CapabilityType = "filesystem_access"
	CapabilityDatabaseAccess   CapabilityType = "database_access"
)

// RequestStatus represents the decision state of a capability request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
	RequestStatusModified RequestStatus = "modified"
)

// CapabilityRequest is an agent's mid-task ask for a new capability.
// Once non-pending the status is terminal.
type CapabilityRequest struct {
	ID     int    `json:"id"`
	TaskID string `json:"task_id"`

	CapabilityType CapabilityType         `json:"capability_type"`
	ResourceName   string                 `json:"resource_name"`
	Justification  string                 `json:"justification"`
	Details        map[string]interface{} `json:"details,omitempty"`

	Status                RequestStatus `json:"status"`
	DecisionNotes         string        `json:"decision_notes,omitempty"`
	AlternativeSuggestion string        `json:"alternative_suggestion,omitempty"`
	ReviewedBy            string        `json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time    `json:"reviewed_at,omitempty"`

	RequestedAt time.Time `json:"requested_at"`
}

// TaskOutput stores the result of one agent iteration. Iteration numbers
// are strictly increasing per task, including across continuations.
type TaskOutput struct {
	ID        int    `json:"id"`
	TaskID    string `json:"task_id"`
	Iteration int    `json:"iteration"`

	Completed           bool   `json:"completed"`
	CapabilityRequested bool   `json:"capability_requested"`
	AgentLogs           string `json:"agent_logs,omitempty"`
	Output              string `json:"output,omitempty"`
	Error               string `json:"error,omitempty"`
	LLMResponsePreview  string `json:"llm_response_preview,omitempty"`
	ModelUsed           string `json:"model_used,omitempty"`
	ImageUsed           string `json:"image_used,omitempty"`
	DurationMs          int64  `json:"duration_ms,omitempty"`

	// Deliverable files created by the agent, filename -> content
	Deliverables map[string]string `json:"deliverables,omitempty"`

	// Raw result envelope from the worker
	RawResult map[string]interface{} `json:"raw_result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TaskMessage is one entry in the agent/user conversation log
type TaskMessage struct {
	ID       int                    `json:"id"`
	TaskID   string                 `json:"task_id"`
	Role     string                 `json:"role"` // "agent", "user", "system"
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DeploymentStatus represents the deployment lifecycle state
type DeploymentStatus string

const (
	DeploymentPendingApproval DeploymentStatus = "pending_approval"
	DeploymentApproved        DeploymentStatus = "approved"
	DeploymentBuilding        DeploymentStatus = "building"
	DeploymentBuilt           DeploymentStatus = "built"
	DeploymentRunning         DeploymentStatus = "running"
	DeploymentStopped         DeploymentStatus = "stopped"
	DeploymentFailed          DeploymentStatus = "failed"
)

// Deployment is a long-running container built from a task's workspace
type Deployment struct {
	ID     string `json:"id"` // deploy-<uuid8>
	Name   string `json:"name"`
	TaskID string `json:"task_id"`

	ImageTag   string `json:"image_tag,omitempty"`
	Entrypoint string `json:"entrypoint,omitempty"`
	Port       int    `json:"port,omitempty"`

	Status      DeploymentStatus `json:"status"`
	ContainerID string           `json:"container_id,omitempty"`
	HostPort    int              `json:"host_port,omitempty"`
	URL         string           `json:"url,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	BuiltAt    *time.Time `json:"built_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// BuildStatus represents the state of an image build
type BuildStatus string

const (
	BuildPending  BuildStatus = "pending"
	BuildBuilding BuildStatus = "building"
	BuildSuccess  BuildStatus = "success"
	BuildFailed   BuildStatus = "failed"
)

// Build tracks one image build inside the builder service. Builds are
// transient: they live in the builder's memory, not in the store.
type Build struct {
	ID       string      `json:"build_id"`
	TaskID   string      `json:"task_id,omitempty"`
	Status   BuildStatus `json:"status"`
	ImageTag string      `json:"image_tag,omitempty"`
	Digest   string      `json:"digest,omitempty"`
	Error    string      `json:"error,omitempty"`
	Logs     []string    `json:"logs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Capability is a normalized (kind, name) pair handed to the builder
type Capability struct {
	Kind    string `json:"type"` // apt_package, pip_package, npm_package, tool
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// AuditEntry records a user-visible mutation for the audit trail
type AuditEntry struct {
	ID           int                    `json:"id"`
	TaskID       string                 `json:"task_id,omitempty"`
	UserID       string                 `json:"user_id,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}
