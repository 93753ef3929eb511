package storage

import (
	"github.com/openclaw/openclaw/pkg/types"
)

// Store defines the interface for control-plane state storage
// This is implemented by BoltDB-backed storage
type Store interface {
	// Tasks
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	UpdateTask(task *types.Task) error
	DeleteTask(id string) error

	// Policies
	CreatePolicy(policy *types.Policy) error
	GetPolicy(id int) (*types.Policy, error)
	ListPoliciesByTask(taskID string) ([]*types.Policy, error)

	// Capability requests
	CreateCapabilityRequest(req *types.CapabilityRequest) error
	GetCapabilityRequest(id int) (*types.CapabilityRequest, error)
	ListCapabilityRequests(taskID string, status types.RequestStatus) ([]*types.CapabilityRequest, error)
	UpdateCapabilityRequest(req *types.CapabilityRequest) error

	// Iteration outputs
	CreateTaskOutput(output *types.TaskOutput) error
	ListOutputsByTask(taskID string) ([]*types.TaskOutput, error)
	LastIteration(taskID string) (int, error)

	// Conversation messages
	CreateTaskMessage(msg *types.TaskMessage) error
	ListMessagesByTask(taskID string) ([]*types.TaskMessage, error)

	// Deployments
	CreateDeployment(deployment *types.Deployment) error
	GetDeployment(id string) (*types.Deployment, error)
	ListDeployments(taskID string, status types.DeploymentStatus) ([]*types.Deployment, error)
	UpdateDeployment(deployment *types.Deployment) error

	// LLM provider configuration (single key/value rows)
	SetLLMConfig(key, value string) error
	GetLLMConfig(key string) (string, error)
	ListLLMConfig() (map[string]string, error)

	// Audit trail
	AppendAudit(entry *types.AuditEntry) error
	ListAuditByTask(taskID string) ([]*types.AuditEntry, error)

	// Utility
	Close() error
}
