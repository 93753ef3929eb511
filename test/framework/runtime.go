package framework

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/types"
)

// FakeRuntime is an in-memory stand-in for the docker engine. Scenarios
// seed containers, flip their run state, and inspect what was launched.
type FakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*runtime.ContainerInfo
	launched   []runtime.RunSpec
	usedPorts  map[int]bool
	nextID     int
}

// NewFakeRuntime creates an empty fake engine
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		containers: make(map[string]*runtime.ContainerInfo),
		usedPorts:  make(map[int]bool),
	}
}

// AddContainer seeds a container the engine claims to know about
func (f *FakeRuntime) AddContainer(id string, running bool, exitCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[id] = &runtime.ContainerInfo{ID: id, Running: running, ExitCode: exitCode}
}

// RemoveContainer makes a container vanish, as if removed out of band
func (f *FakeRuntime) RemoveContainer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
}

// Launched returns every RunSpec passed to RunDetached
func (f *FakeRuntime) Launched() []runtime.RunSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runtime.RunSpec, len(f.launched))
	copy(out, f.launched)
	return out
}

func (f *FakeRuntime) ImageExists(context.Context, string) (bool, error) { return true, nil }
func (f *FakeRuntime) Pull(context.Context, string) error                { return nil }

func (f *FakeRuntime) RunDetached(_ context.Context, spec runtime.RunSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	f.launched = append(f.launched, spec)
	f.containers[id] = &runtime.ContainerInfo{ID: id, Running: true}
	for _, host := range spec.Ports {
		f.usedPorts[host] = true
	}
	return id, nil
}

func (f *FakeRuntime) Wait(context.Context, string, time.Duration) (int, error) { return 0, nil }
func (f *FakeRuntime) Logs(context.Context, string) ([]byte, error)             { return nil, nil }

func (f *FakeRuntime) Inspect(_ context.Context, id string) (*runtime.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", id, types.ErrNotFound)
	}
	copied := *info
	return &copied, nil
}

func (f *FakeRuntime) Stop(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.containers[id]; ok {
		info.Running = false
	}
	return nil
}

func (f *FakeRuntime) Remove(_ context.Context, id string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	return nil
}

func (f *FakeRuntime) UsedHostPorts(context.Context) (map[int]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]bool, len(f.usedPorts))
	for port, used := range f.usedPorts {
		out[port] = used
	}
	return out, nil
}

func (f *FakeRuntime) Close() error { return nil }
