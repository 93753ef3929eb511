package manager

import (
	"fmt"

	"github.com/openclaw/openclaw/pkg/types"
)

// Legal task transitions. Anything absent is a state conflict.
var taskTransitions = map[types.TaskStatus][]types.TaskStatus{
	types.TaskStatusCreated: {types.TaskStatusRunning, types.TaskStatusFailed, types.TaskStatusCancelled},
	types.TaskStatusRunning: {types.TaskStatusPaused, types.TaskStatusCompleted, types.TaskStatusFailed, types.TaskStatusCancelled},
	types.TaskStatusPaused:  {types.TaskStatusRunning, types.TaskStatusFailed, types.TaskStatusCancelled},
	// Completed tasks may re-enter running through a continuation
	types.TaskStatusCompleted: {types.TaskStatusRunning},
	types.TaskStatusFailed:    {types.TaskStatusRunning},
}

// Legal deployment transitions
var deploymentTransitions = map[types.DeploymentStatus][]types.DeploymentStatus{
	types.DeploymentPendingApproval: {types.DeploymentApproved, types.DeploymentFailed},
	types.DeploymentApproved:        {types.DeploymentBuilding, types.DeploymentFailed},
	types.DeploymentBuilding:        {types.DeploymentBuilt, types.DeploymentFailed},
	types.DeploymentBuilt:           {types.DeploymentRunning, types.DeploymentFailed},
	types.DeploymentRunning:         {types.DeploymentStopped, types.DeploymentFailed},
	types.DeploymentStopped:         {types.DeploymentRunning, types.DeploymentFailed},
	types.DeploymentFailed:          {},
}

// CanTransitionTask reports whether a task may move between two states
func CanTransitionTask(from, to types.TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionDeployment reports whether a deployment may move between
// two states
func CanTransitionDeployment(from, to types.DeploymentStatus) bool {
	for _, next := range deploymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func taskTransitionErr(taskID string, from, to types.TaskStatus) error {
	return fmt.Errorf("task %s cannot go %s -> %s: %w", taskID, from, to, types.ErrStateConflict)
}

func deploymentTransitionErr(id string, from, to types.DeploymentStatus) error {
	return fmt.Errorf("deployment %s cannot go %s -> %s: %w", id, from, to, types.ErrStateConflict)
}
