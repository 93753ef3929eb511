package reconciler

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw/pkg/events"
	"github.com/openclaw/openclaw/pkg/health"
	"github.com/openclaw/openclaw/pkg/manager"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/storage"
	"github.com/openclaw/openclaw/pkg/types"
)

type fakeRuntime struct {
	containers map[string]*runtime.ContainerInfo
}

func (f *fakeRuntime) ImageExists(context.Context, string) (bool, error) { return true, nil }
func (f *fakeRuntime) Pull(context.Context, string) error                { return nil }
func (f *fakeRuntime) RunDetached(context.Context, runtime.RunSpec) (string, error) {
	return "", nil
}
func (f *fakeRuntime) Wait(context.Context, string, time.Duration) (int, error) { return 0, nil }
func (f *fakeRuntime) Logs(context.Context, string) ([]byte, error)             { return nil, nil }
func (f *fakeRuntime) Inspect(_ context.Context, id string) (*runtime.ContainerInfo, error) {
	info, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", id, types.ErrNotFound)
	}
	return info, nil
}
func (f *fakeRuntime) Stop(context.Context, string, time.Duration) error { return nil }
func (f *fakeRuntime) Remove(context.Context, string, bool) error        { return nil }
func (f *fakeRuntime) UsedHostPorts(context.Context) (map[int]bool, error) {
	return map[int]bool{}, nil
}
func (f *fakeRuntime) Close() error { return nil }

type noopStarter struct{}

func (noopStarter) StartTask(context.Context, string, string) (string, string, error) {
	return "wf", "run", nil
}
func (noopStarter) ContinueTask(context.Context, string, string, string, string, int) (string, string, error) {
	return "wf", "run", nil
}
func (noopStarter) SignalApproval(context.Context, string, bool) error { return nil }
func (noopStarter) StartDeploymentBuild(context.Context, string) (string, error) {
	return "wf", nil
}
func (noopStarter) StartDeploymentRun(context.Context, string, string) (string, error) {
	return "wf", nil
}

func runningDeployment(t *testing.T, mgr *manager.Manager, containerID string) *types.Deployment {
	t.Helper()
	task, err := mgr.CreateTask(context.Background(), manager.CreateTaskInput{Description: "serve an api"})
	require.NoError(t, err)

	dep, err := mgr.CreateDeployment(manager.CreateDeploymentInput{
		TaskID: task.ID, Name: "api", Port: 5000,
	})
	require.NoError(t, err)

	_, err = mgr.ApproveDeployment(context.Background(), dep.ID, true, "")
	require.NoError(t, err)
	_, err = mgr.PatchDeployment(dep.ID, map[string]interface{}{"status": "building"})
	require.NoError(t, err)
	_, err = mgr.PatchDeployment(dep.ID, map[string]interface{}{
		"status": "built", "image_tag": "localhost:5000/openclaw-deploy:" + dep.ID,
	})
	require.NoError(t, err)
	_, err = mgr.PatchDeployment(dep.ID, map[string]interface{}{
		"status": "running", "container_id": containerID, "host_port": 9100,
		"url": "http://localhost:9100",
	})
	require.NoError(t, err)
	return dep
}

func newTestReconciler(t *testing.T, rt *fakeRuntime) (*Reconciler, *manager.Manager) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	mgr := manager.NewManager(manager.Config{
		Store:          store,
		Broker:         broker,
		Starter:        noopStarter{},
		AgentImagesDir: filepath.Join(dir, "agent-images"),
	})
	return NewReconciler(mgr, rt), mgr
}

func TestSweepMarksMissingContainerFailed(t *testing.T) {
	rt := &fakeRuntime{containers: map[string]*runtime.ContainerInfo{}}
	rec, mgr := newTestReconciler(t, rt)
	dep := runningDeployment(t, mgr, "gone123")

	require.NoError(t, rec.Sweep(context.Background()))

	after, err := mgr.GetDeployment(dep.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentFailed, after.Status)
	assert.Contains(t, after.Error, "removed outside")
	assert.Empty(t, after.ContainerID)
	assert.Zero(t, after.HostPort)
}

func TestSweepMarksExitedContainerStopped(t *testing.T) {
	rt := &fakeRuntime{containers: map[string]*runtime.ContainerInfo{
		"dead456": {ID: "dead456", Running: false, ExitCode: 137},
	}}
	rec, mgr := newTestReconciler(t, rt)
	dep := runningDeployment(t, mgr, "dead456")

	require.NoError(t, rec.Sweep(context.Background()))

	after, err := mgr.GetDeployment(dep.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStopped, after.Status)
	require.NotNil(t, after.StoppedAt)
}

type stubChecker struct {
	healthy bool
}

func (s *stubChecker) Check(context.Context) health.Result {
	return health.Result{Healthy: s.healthy, CheckedAt: time.Now()}
}
func (s *stubChecker) Type() health.CheckType { return health.CheckTypeHTTP }

func TestSweepProbesRunningDeployments(t *testing.T) {
	rt := &fakeRuntime{containers: map[string]*runtime.ContainerInfo{
		"alive789": {ID: "alive789", Running: true},
	}}
	rec, mgr := newTestReconciler(t, rt)
	dep := runningDeployment(t, mgr, "alive789")

	probe := &stubChecker{healthy: false}
	rec.newChecker = func(string) health.Checker { return probe }
	rec.probeCfg = health.Config{Retries: 2}

	// One failed probe is not enough to flip the verdict
	require.NoError(t, rec.Sweep(context.Background()))
	assert.Empty(t, rec.Unhealthy())

	require.NoError(t, rec.Sweep(context.Background()))
	assert.Equal(t, []string{dep.ID}, rec.Unhealthy())

	// The row itself is untouched; the engine owns restarts
	after, err := mgr.GetDeployment(dep.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentRunning, after.Status)

	// Recovery clears the verdict immediately
	probe.healthy = true
	require.NoError(t, rec.Sweep(context.Background()))
	assert.Empty(t, rec.Unhealthy())
}

func TestSweepPrunesProbesForGoneDeployments(t *testing.T) {
	rt := &fakeRuntime{containers: map[string]*runtime.ContainerInfo{
		"alive789": {ID: "alive789", Running: true},
	}}
	rec, mgr := newTestReconciler(t, rt)
	dep := runningDeployment(t, mgr, "alive789")

	rec.newChecker = func(string) health.Checker { return &stubChecker{healthy: false} }
	rec.probeCfg = health.Config{Retries: 1}

	require.NoError(t, rec.Sweep(context.Background()))
	assert.Equal(t, []string{dep.ID}, rec.Unhealthy())

	// Container disappears; the next sweep marks the row and drops the probe
	delete(rt.containers, "alive789")
	require.NoError(t, rec.Sweep(context.Background()))
	assert.Empty(t, rec.Unhealthy())
}

func TestSweepLeavesHealthyContainersAlone(t *testing.T) {
	rt := &fakeRuntime{containers: map[string]*runtime.ContainerInfo{
		"alive789": {ID: "alive789", Running: true},
	}}
	rec, mgr := newTestReconciler(t, rt)
	dep := runningDeployment(t, mgr, "alive789")

	require.NoError(t, rec.Sweep(context.Background()))

	after, err := mgr.GetDeployment(dep.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentRunning, after.Status)
	assert.Equal(t, "alive789", after.ContainerID)
}
