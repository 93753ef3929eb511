package builder

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/openclaw/pkg/types"
)

// Registry tracks builds in memory. Builds are transient state of the
// builder process; the durable record of an image is the pushed tag and
// the persisted Dockerfile.
type Registry struct {
	mu     sync.RWMutex
	builds map[string]*types.Build
}

// NewRegistry creates an empty build registry
func NewRegistry() *Registry {
	return &Registry{builds: make(map[string]*types.Build)}
}

// Create records a new pending build
func (r *Registry) Create(buildID, taskID, imageTag string) *types.Build {
	r.mu.Lock()
	defer r.mu.Unlock()

	build := &types.Build{
		ID:        buildID,
		TaskID:    taskID,
		Status:    types.BuildPending,
		ImageTag:  imageTag,
		CreatedAt: time.Now(),
	}
	r.builds[buildID] = build
	return copyBuild(build)
}

// Get returns a snapshot of one build
func (r *Registry) Get(buildID string) (*types.Build, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	build, ok := r.builds[buildID]
	if !ok {
		return nil, fmt.Errorf("build %s: %w", buildID, types.ErrNotFound)
	}
	return copyBuild(build), nil
}

// SetStatus transitions a build and records the terminal fields
func (r *Registry) SetStatus(buildID string, status types.BuildStatus, imageTag, digest, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	build, ok := r.builds[buildID]
	if !ok {
		return
	}
	build.Status = status
	if imageTag != "" {
		build.ImageTag = imageTag
	}
	if digest != "" {
		build.Digest = digest
	}
	build.Error = errMsg
}

// AppendLog attaches one chunk of build output
func (r *Registry) AppendLog(buildID, chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if build, ok := r.builds[buildID]; ok {
		build.Logs = append(build.Logs, chunk)
	}
}

// NextVersion computes the version integer for a task's next image:
// one more than the number of builds already pending, building, or
// succeeded for that task. Failed builds never consume a version.
func (r *Registry) NextVersion(taskID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, build := range r.builds {
		if !strings.Contains(build.ImageTag, taskID) {
			continue
		}
		switch build.Status {
		case types.BuildPending, types.BuildBuilding, types.BuildSuccess:
			count++
		}
	}
	return count + 1
}

func copyBuild(b *types.Build) *types.Build {
	out := *b
	out.Logs = append([]string(nil), b.Logs...)
	return &out
}
