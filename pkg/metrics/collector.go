package metrics

import (
	"time"

	"github.com/openclaw/openclaw/pkg/storage"
	"github.com/openclaw/openclaw/pkg/types"
)

// Collector periodically refreshes gauge metrics from the store
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTaskMetrics()
	c.collectDeploymentMetrics()
}

func (c *Collector) collectTaskMetrics() {
	tasks, err := c.store.ListTasks()
	if err != nil {
		return
	}

	counts := make(map[types.TaskStatus]int)
	for _, task := range tasks {
		counts[task.Status]++
	}

	for _, status := range []types.TaskStatus{
		types.TaskStatusCreated,
		types.TaskStatusRunning,
		types.TaskStatusPaused,
		types.TaskStatusCompleted,
		types.TaskStatusFailed,
		types.TaskStatusCancelled,
	} {
		TasksTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectDeploymentMetrics() {
	deployments, err := c.store.ListDeployments("", "")
	if err != nil {
		return
	}

	counts := make(map[types.DeploymentStatus]int)
	for _, d := range deployments {
		counts[d.Status]++
	}

	for _, status := range []types.DeploymentStatus{
		types.DeploymentPendingApproval,
		types.DeploymentApproved,
		types.DeploymentBuilding,
		types.DeploymentBuilt,
		types.DeploymentRunning,
		types.DeploymentStopped,
		types.DeploymentFailed,
	} {
		DeploymentsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
