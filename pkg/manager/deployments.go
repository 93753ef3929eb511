package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/openclaw/pkg/events"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/types"
)

// CreateDeploymentInput is the agent's (or a user's) deployment ask
type CreateDeploymentInput struct {
	TaskID     string `json:"task_id"`
	Name       string `json:"name"`
	Port       int    `json:"port"`
	Entrypoint string `json:"entrypoint"`
}

// CreateDeployment inserts a deployment row awaiting approval
func (m *Manager) CreateDeployment(input CreateDeploymentInput) (*types.Deployment, error) {
	if _, err := m.store.GetTask(input.TaskID); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, fmt.Errorf("deployment name is required: %w", types.ErrValidation)
	}
	if input.Port <= 0 || input.Port > 65535 {
		return nil, fmt.Errorf("deployment port %d out of range: %w", input.Port, types.ErrValidation)
	}
	if input.Entrypoint == "" {
		input.Entrypoint = "python app.py"
	}

	dep := &types.Deployment{
		ID:         "deploy-" + shortUUID(),
		Name:       input.Name,
		TaskID:     input.TaskID,
		Entrypoint: input.Entrypoint,
		Port:       input.Port,
		Status:     types.DeploymentPendingApproval,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.CreateDeployment(dep); err != nil {
		return nil, err
	}

	metrics.DeploymentsTotal.WithLabelValues(string(dep.Status)).Inc()
	m.publish(events.EventDeploymentCreated, input.TaskID,
		"Deployment requested: "+dep.Name, map[string]string{"deployment_id": dep.ID})
	m.audit(input.TaskID, "", "deployment.create", "deployment", dep.ID, nil)

	log.WithDeploymentID(dep.ID).Info().Str("name", dep.Name).Msg("Deployment created, awaiting approval")
	return dep, nil
}

// GetDeployment fetches one deployment
func (m *Manager) GetDeployment(id string) (*types.Deployment, error) {
	return m.store.GetDeployment(id)
}

// ListDeployments filters by task and status; empty means all
func (m *Manager) ListDeployments(taskID string, status types.DeploymentStatus) ([]*types.Deployment, error) {
	return m.store.ListDeployments(taskID, status)
}

// ApproveDeployment decides a pending deployment. Approval kicks off the
// image build workflow; denial is terminal.
func (m *Manager) ApproveDeployment(ctx context.Context, id string, approved bool, notes string) (*types.Deployment, error) {
	dep, err := m.store.GetDeployment(id)
	if err != nil {
		return nil, err
	}
	if dep.Status != types.DeploymentPendingApproval {
		return nil, fmt.Errorf("deployment %s already %s: %w", id, dep.Status, types.ErrStateConflict)
	}

	now := time.Now().UTC()
	if !approved {
		dep.Status = types.DeploymentFailed
		dep.Error = "denied"
		if notes != "" {
			dep.Error = "denied: " + notes
		}
		if err := m.store.UpdateDeployment(dep); err != nil {
			return nil, err
		}
		m.audit(dep.TaskID, "", "deployment.deny", "deployment", id, map[string]interface{}{"notes": notes})
		return dep, nil
	}

	dep.Status = types.DeploymentApproved
	dep.ApprovedAt = &now
	if err := m.store.UpdateDeployment(dep); err != nil {
		return nil, err
	}

	if _, err := m.starter.StartDeploymentBuild(ctx, id); err != nil {
		return nil, fmt.Errorf("start deployment build: %w", err)
	}

	m.publish(events.EventDeploymentApproved, dep.TaskID,
		"Deployment approved: "+dep.Name, map[string]string{"deployment_id": id})
	m.audit(dep.TaskID, "", "deployment.approve", "deployment", id, map[string]interface{}{"notes": notes})

	log.WithDeploymentID(id).Info().Msg("Deployment approved, build started")
	return dep, nil
}

// StartDeployment runs a built or previously stopped deployment
func (m *Manager) StartDeployment(ctx context.Context, id string) (*types.Deployment, error) {
	dep, err := m.store.GetDeployment(id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionDeployment(dep.Status, types.DeploymentRunning) {
		return nil, deploymentTransitionErr(id, dep.Status, types.DeploymentRunning)
	}

	if _, err := m.starter.StartDeploymentRun(ctx, id, "start"); err != nil {
		return nil, fmt.Errorf("start deployment: %w", err)
	}

	m.publish(events.EventDeploymentStarted, dep.TaskID,
		"Deployment starting: "+dep.Name, map[string]string{"deployment_id": id})
	m.audit(dep.TaskID, "", "deployment.start", "deployment", id, nil)
	return dep, nil
}

// StopDeployment stops a running deployment
func (m *Manager) StopDeployment(ctx context.Context, id string) (*types.Deployment, error) {
	dep, err := m.store.GetDeployment(id)
	if err != nil {
		return nil, err
	}
	if dep.Status != types.DeploymentRunning {
		return nil, deploymentTransitionErr(id, dep.Status, types.DeploymentStopped)
	}

	if _, err := m.starter.StartDeploymentRun(ctx, id, "stop"); err != nil {
		return nil, fmt.Errorf("stop deployment: %w", err)
	}

	m.publish(events.EventDeploymentStopped, dep.TaskID,
		"Deployment stopping: "+dep.Name, map[string]string{"deployment_id": id})
	m.audit(dep.TaskID, "", "deployment.stop", "deployment", id, nil)
	return dep, nil
}

// patchableDeploymentFields is the allowed PATCH surface. Everything else
// is owned by the lifecycle endpoints.
var patchableDeploymentFields = map[string]bool{
	"status":       true,
	"image_tag":    true,
	"container_id": true,
	"host_port":    true,
	"url":          true,
	"error":        true,
}

// PatchDeployment applies a partial update from the workflow activities,
// stamping lifecycle timestamps as the status moves
func (m *Manager) PatchDeployment(id string, fields map[string]interface{}) (*types.Deployment, error) {
	dep, err := m.store.GetDeployment(id)
	if err != nil {
		return nil, err
	}

	for key := range fields {
		if !patchableDeploymentFields[key] {
			return nil, fmt.Errorf("field %q is not patchable: %w", key, types.ErrValidation)
		}
	}

	now := time.Now().UTC()
	previous := dep.Status

	if raw, ok := fields["status"]; ok {
		status := types.DeploymentStatus(fmt.Sprintf("%v", raw))
		if status != dep.Status {
			if !CanTransitionDeployment(dep.Status, status) {
				return nil, deploymentTransitionErr(id, dep.Status, status)
			}
			dep.Status = status
			switch status {
			case types.DeploymentBuilt:
				dep.BuiltAt = &now
			case types.DeploymentRunning:
				dep.StartedAt = &now
			case types.DeploymentStopped:
				dep.StoppedAt = &now
			}
		}
	}
	if raw, ok := fields["image_tag"]; ok {
		dep.ImageTag = asString(raw)
	}
	if raw, ok := fields["container_id"]; ok {
		dep.ContainerID = asString(raw)
	}
	if raw, ok := fields["host_port"]; ok {
		dep.HostPort = asInt(raw)
	}
	if raw, ok := fields["url"]; ok {
		dep.URL = asString(raw)
	}
	if raw, ok := fields["error"]; ok {
		dep.Error = asString(raw)
	}

	if err := m.store.UpdateDeployment(dep); err != nil {
		return nil, err
	}

	if dep.Status != previous {
		metrics.DeploymentsTotal.WithLabelValues(string(previous)).Dec()
		metrics.DeploymentsTotal.WithLabelValues(string(dep.Status)).Inc()
		if dep.Status == types.DeploymentBuilt {
			m.publish(events.EventImageBuilt, dep.TaskID,
				"Deployment image built: "+dep.ImageTag, map[string]string{"deployment_id": id})
		}
	}
	return dep, nil
}

// asString tolerates JSON nulls, which the stop activity sends to clear
// container fields
func asString(raw interface{}) string {
	if raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

func asInt(raw interface{}) int {
	switch v := raw.(type) {
	case nil:
		return 0
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
