package manager

import (
	"context"
	"time"

	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
	"github.com/openclaw/openclaw/pkg/types"
)

const collectInterval = 30 * time.Second

// MetricsCollector periodically recounts tasks and deployments from the
// store so the gauges survive restarts and drift from missed increments
type MetricsCollector struct {
	manager *Manager
}

// NewMetricsCollector wraps a manager for gauge refresh
func NewMetricsCollector(m *Manager) *MetricsCollector {
	return &MetricsCollector{manager: m}
}

// Run refreshes gauges until the context ends
func (c *MetricsCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *MetricsCollector) collect() {
	tasks, err := c.manager.store.ListTasks()
	if err != nil {
		log.WithComponent("metrics").Warn().Err(err).Msg("Task recount failed")
		return
	}
	taskCounts := make(map[types.TaskStatus]int)
	for _, task := range tasks {
		taskCounts[task.Status]++
	}
	for _, status := range []types.TaskStatus{
		types.TaskStatusCreated, types.TaskStatusRunning, types.TaskStatusPaused,
		types.TaskStatusCompleted, types.TaskStatusFailed, types.TaskStatusCancelled,
	} {
		metrics.TasksTotal.WithLabelValues(string(status)).Set(float64(taskCounts[status]))
	}

	deployments, err := c.manager.store.ListDeployments("", "")
	if err != nil {
		log.WithComponent("metrics").Warn().Err(err).Msg("Deployment recount failed")
		return
	}
	depCounts := make(map[types.DeploymentStatus]int)
	for _, dep := range deployments {
		depCounts[dep.Status]++
	}
	for _, status := range []types.DeploymentStatus{
		types.DeploymentPendingApproval, types.DeploymentApproved, types.DeploymentBuilding,
		types.DeploymentBuilt, types.DeploymentRunning, types.DeploymentStopped, types.DeploymentFailed,
	} {
		metrics.DeploymentsTotal.WithLabelValues(string(status)).Set(float64(depCounts[status]))
	}
}
