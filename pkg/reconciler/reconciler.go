package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openclaw/openclaw/pkg/health"
	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/manager"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/types"
)

const (
	sweepInterval = 30 * time.Second
	probeTimeout  = 5 * time.Second
)

// Reconciler keeps deployment rows honest: a row claiming running whose
// container is gone gets marked stopped or failed. Containers have
// restart policy unless-stopped, so the engine owns restarts; this sweep
// only corrects rows the engine could not save.
//
// Deployments that survive the container check get an HTTP reachability
// probe against their URL. Probe verdicts are debounced and surfaced,
// never acted on: a Flask app stuck in a crash loop still belongs to
// the engine's restart policy.
type Reconciler struct {
	manager  *manager.Manager
	runtime  runtime.ContainerRuntime
	interval time.Duration
	stopCh   chan struct{}

	probeCfg   health.Config
	newChecker func(url string) health.Checker

	mu     sync.Mutex
	probes map[string]*health.Status
}

// NewReconciler creates the deployment drift sweep
func NewReconciler(mgr *manager.Manager, rt runtime.ContainerRuntime) *Reconciler {
	return &Reconciler{
		manager:    mgr,
		runtime:    rt,
		interval:   sweepInterval,
		stopCh:     make(chan struct{}),
		probeCfg:   health.DefaultConfig(),
		newChecker: defaultChecker,
		probes:     make(map[string]*health.Status),
	}
}

// defaultChecker treats any HTTP answer as reachable. Deployments serve
// whatever routes the agent wrote, so a 404 on / still means the app is
// up and listening.
func defaultChecker(url string) health.Checker {
	return health.NewHTTPChecker(url).
		WithStatusRange(200, 599).
		WithTimeout(probeTimeout)
}

// Start begins the sweep loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the sweep loop
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Sweep(context.Background()); err != nil {
				log.WithComponent("reconciler").Warn().Err(err).Msg("Sweep failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Sweep runs one reconciliation pass over the running deployments
func (r *Reconciler) Sweep(ctx context.Context) error {
	deployments, err := r.manager.ListDeployments("", types.DeploymentRunning)
	if err != nil {
		return fmt.Errorf("list running deployments: %w", err)
	}

	seen := make(map[string]bool, len(deployments))
	for _, dep := range deployments {
		if dep.ContainerID == "" {
			// A running row with no container id is corrupt state
			r.markGone(dep, types.DeploymentFailed, "running row has no container id")
			continue
		}

		info, err := r.runtime.Inspect(ctx, dep.ContainerID)
		switch {
		case errors.Is(err, types.ErrNotFound):
			r.markGone(dep, types.DeploymentFailed, "container removed outside the control plane")
		case err != nil:
			log.WithDeploymentID(dep.ID).Warn().Err(err).Msg("Container inspect failed, skipping")
		case !info.Running:
			// The engine gave up restarting it; exit code tells the story
			r.markGone(dep, types.DeploymentStopped, fmt.Sprintf("container exited with code %d", info.ExitCode))
		default:
			seen[dep.ID] = true
			r.probe(ctx, dep)
		}
	}

	r.pruneProbes(seen)
	return nil
}

// probe folds one reachability check into the deployment's debounced
// health status
func (r *Reconciler) probe(ctx context.Context, dep *types.Deployment) {
	if dep.URL == "" {
		return
	}

	result := r.newChecker(dep.URL).Check(ctx)

	r.mu.Lock()
	status, ok := r.probes[dep.ID]
	if !ok {
		status = health.NewStatus()
		r.probes[dep.ID] = status
	}
	status.Update(result, r.probeCfg)
	unhealthy := !status.Healthy && !status.InStartPeriod(r.probeCfg)
	failures := status.ConsecutiveFailures
	r.mu.Unlock()

	if unhealthy {
		log.WithDeploymentID(dep.ID).Warn().
			Str("url", dep.URL).
			Str("probe", result.Message).
			Int("consecutive_failures", failures).
			Msg("Deployment container is running but not answering")
	}
}

func (r *Reconciler) pruneProbes(seen map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.probes {
		if !seen[id] {
			delete(r.probes, id)
		}
	}
}

// Unhealthy lists running deployments whose probes have failed past the
// retry threshold, sorted for stable output
func (r *Reconciler) Unhealthy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, status := range r.probes {
		if !status.Healthy && !status.InStartPeriod(r.probeCfg) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Reconciler) markGone(dep *types.Deployment, status types.DeploymentStatus, reason string) {
	fields := map[string]interface{}{
		"status":       string(status),
		"container_id": nil,
		"host_port":    nil,
		"url":          nil,
	}
	if status == types.DeploymentFailed {
		fields["error"] = reason
	}

	if _, err := r.manager.PatchDeployment(dep.ID, fields); err != nil {
		log.WithDeploymentID(dep.ID).Warn().Err(err).Msg("Could not mark drifted deployment")
		return
	}
	log.WithDeploymentID(dep.ID).Info().
		Str("status", string(status)).
		Str("reason", reason).
		Msg("Deployment row reconciled with engine state")
}
