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

// CreateCapabilityRequest files an agent's ask as pending
func (m *Manager) CreateCapabilityRequest(req *types.CapabilityRequest) (*types.CapabilityRequest, error) {
	if _, err := m.store.GetTask(req.TaskID); err != nil {
		return nil, err
	}
	if req.ResourceName == "" {
		return nil, fmt.Errorf("capability resource name is required: %w", types.ErrValidation)
	}
	if req.CapabilityType == "" {
		req.CapabilityType = types.CapabilityToolInstall
	}

	req.Status = types.RequestStatusPending
	req.RequestedAt = time.Now().UTC()
	if err := m.store.CreateCapabilityRequest(req); err != nil {
		return nil, err
	}

	metrics.CapabilityRequestsTotal.WithLabelValues(string(req.CapabilityType)).Inc()
	m.publish(events.EventCapabilityRequested, req.TaskID,
		fmt.Sprintf("Capability requested: %s (%s)", req.ResourceName, req.CapabilityType),
		map[string]string{"resource": req.ResourceName})
	m.audit(req.TaskID, "", "capability.request", "capability_request",
		fmt.Sprintf("%d", req.ID), map[string]interface{}{"resource": req.ResourceName})

	return req, nil
}

// GetCapabilityRequest fetches one request
func (m *Manager) GetCapabilityRequest(id int) (*types.CapabilityRequest, error) {
	return m.store.GetCapabilityRequest(id)
}

// ListCapabilityRequests filters by task and status; empty means all
func (m *Manager) ListCapabilityRequests(taskID string, status types.RequestStatus) ([]*types.CapabilityRequest, error) {
	return m.store.ListCapabilityRequests(taskID, status)
}

// ReviewInput is a human decision on a pending request
type ReviewInput struct {
	Approved              bool   `json:"approved"`
	DecisionNotes         string `json:"decision_notes"`
	AlternativeSuggestion string `json:"alternative_suggestion"`
	ReviewedBy            string `json:"reviewed_by"`
}

// ReviewCapability decides a pending request exactly once and delivers
// the decision signal to the owning workflow. A denial with an
// alternative suggestion is not a decision: the request records the
// suggestion and stays pending, and no signal is sent.
func (m *Manager) ReviewCapability(ctx context.Context, id int, input ReviewInput) (*types.CapabilityRequest, error) {
	req, err := m.store.GetCapabilityRequest(id)
	if err != nil {
		return nil, err
	}
	if req.Status != types.RequestStatusPending {
		return nil, fmt.Errorf("capability request %d already %s: %w", id, req.Status, types.ErrStateConflict)
	}

	now := time.Now().UTC()
	req.DecisionNotes = input.DecisionNotes
	req.AlternativeSuggestion = input.AlternativeSuggestion
	req.ReviewedBy = input.ReviewedBy
	req.ReviewedAt = &now

	if !input.Approved && input.AlternativeSuggestion != "" {
		if err := m.store.UpdateCapabilityRequest(req); err != nil {
			return nil, err
		}
		m.audit(req.TaskID, input.ReviewedBy, "capability.modify", "capability_request",
			fmt.Sprintf("%d", id), map[string]interface{}{"alternative": input.AlternativeSuggestion})
		return req, nil
	}

	if input.Approved {
		req.Status = types.RequestStatusApproved
	} else {
		req.Status = types.RequestStatusDenied
	}
	if err := m.store.UpdateCapabilityRequest(req); err != nil {
		return nil, err
	}

	if input.Approved {
		if err := m.bumpPolicy(req); err != nil {
			log.WithTaskID(req.TaskID).Warn().Err(err).Msg("Could not bump policy version")
		}
	}

	task, err := m.store.GetTask(req.TaskID)
	if err != nil {
		return nil, err
	}
	if task.WorkflowID == "" {
		return nil, fmt.Errorf("task %s has no workflow to signal: %w", req.TaskID, types.ErrStateConflict)
	}
	if err := m.starter.SignalApproval(ctx, task.WorkflowID, input.Approved); err != nil {
		return nil, err
	}

	decision := "denied"
	if input.Approved {
		decision = "approved"
	}
	metrics.CapabilityDecisionsTotal.WithLabelValues(decision).Inc()
	m.publish(events.EventCapabilityDecided, req.TaskID,
		fmt.Sprintf("Capability %s %s: %s", req.ResourceName, decision, input.DecisionNotes),
		map[string]string{"decision": decision})
	m.audit(req.TaskID, input.ReviewedBy, "capability."+decision, "capability_request",
		fmt.Sprintf("%d", id), map[string]interface{}{"notes": input.DecisionNotes})

	log.WithTaskID(req.TaskID).Info().
		Int("request_id", id).
		Str("decision", decision).
		Msg("Capability request reviewed")
	return req, nil
}

// bumpPolicy creates the next policy version with the approved resource
// added to the allowed tool set
func (m *Manager) bumpPolicy(req *types.CapabilityRequest) error {
	policies, err := m.store.ListPoliciesByTask(req.TaskID)
	if err != nil {
		return err
	}

	next := defaultPolicy(req.TaskID, req.ReviewedBy)
	for _, p := range policies {
		if p.Version >= next.Version {
			next = clonePolicy(p)
			next.Version = p.Version + 1
		}
	}
	next.CreatedAt = time.Now().UTC()
	next.CreatedBy = req.ReviewedBy

	grant := string(req.CapabilityType) + ":" + req.ResourceName
	if !contains(next.ToolsAllowed, grant) {
		next.ToolsAllowed = append(next.ToolsAllowed, grant)
	}

	if err := m.store.CreatePolicy(next); err != nil {
		return err
	}

	task, err := m.store.GetTask(req.TaskID)
	if err != nil {
		return err
	}
	task.CurrentPolicyID = next.ID
	task.UpdatedAt = time.Now().UTC()
	return m.store.UpdateTask(task)
}

func clonePolicy(p *types.Policy) *types.Policy {
	clone := *p
	clone.ID = 0
	clone.ToolsAllowed = append([]string(nil), p.ToolsAllowed...)
	return &clone
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ListPolicies returns a task's policy history, oldest version first
func (m *Manager) ListPolicies(taskID string) ([]*types.Policy, error) {
	if _, err := m.store.GetTask(taskID); err != nil {
		return nil, err
	}
	return m.store.ListPoliciesByTask(taskID)
}
