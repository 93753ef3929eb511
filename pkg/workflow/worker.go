package workflow

import (
	"fmt"

	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/openclaw/openclaw/pkg/agent"
	"github.com/openclaw/openclaw/pkg/log"
)

// WorkerConfig holds everything needed to run the task worker
type WorkerConfig struct {
	TemporalHost string `yaml:"temporal_host"`
	Namespace    string `yaml:"namespace"`
	TaskQueue    string `yaml:"task_queue"`
}

// DefaultWorkerConfig matches the compose topology
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		TemporalHost: "temporal:7233",
		Namespace:    "default",
		TaskQueue:    TaskQueue,
	}
}

// Worker hosts the task workflows and their activities on one queue
type Worker struct {
	client temporalclient.Client
	worker worker.Worker
}

// NewWorker dials the engine and registers everything. The caller owns
// both activity sets so tests can inject fakes underneath them.
func NewWorker(cfg WorkerConfig, taskActs *TaskActivities, stepActs *agent.Activities) (*Worker, error) {
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.Namespace,
		Logger:    log.NewTemporalAdapter(log.WithComponent("temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.TemporalHost, err)
	}

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	Register(w, taskActs, stepActs)

	return &Worker{client: c, worker: w}, nil
}

// Register attaches the workflows and activities to a worker. Split out
// so the test environment can reuse the exact production registration.
func Register(r worker.Registry, taskActs *TaskActivities, stepActs *agent.Activities) {
	r.RegisterWorkflowWithOptions(AgentTaskWorkflow, workflow.RegisterOptions{Name: "AgentTaskWorkflow"})
	r.RegisterWorkflowWithOptions(AgentStepWorkflow, workflow.RegisterOptions{Name: "AgentStepWorkflow"})
	r.RegisterWorkflowWithOptions(DeploymentBuildWorkflow, workflow.RegisterOptions{Name: "DeploymentBuildWorkflow"})
	r.RegisterWorkflowWithOptions(DeploymentRunWorkflow, workflow.RegisterOptions{Name: "DeploymentRunWorkflow"})

	r.RegisterActivity(taskActs)
	r.RegisterActivity(stepActs)
}

// Run blocks serving the queue until an interrupt arrives
func (w *Worker) Run() error {
	log.WithComponent("worker").Info().Msg("Task worker starting")
	return w.worker.Run(worker.InterruptCh())
}

// Client exposes the underlying connection for workflow starts
func (w *Worker) Client() temporalclient.Client {
	return w.client
}

// Close releases the engine connection
func (w *Worker) Close() {
	w.client.Close()
}
