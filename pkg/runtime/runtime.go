package runtime

import (
	"context"
	"time"
)

// Mount is a bind mount into a container
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes a detached container run
type RunSpec struct {
	Image         string
	Name          string
	Env           map[string]string
	Mounts        []Mount
	Tmpfs         map[string]string // target -> options, e.g. /tmp -> "size=100m,mode=1777"
	NetworkMode   string            // "host", "bridge", or empty for default
	Ports         map[int]int       // container port -> host port
	Labels        map[string]string
	RestartPolicy string // "", "unless-stopped", "always"
}

// ContainerInfo is the subset of inspect data callers need
type ContainerInfo struct {
	ID           string
	Status       string
	Running      bool
	ExitCode     int
	PortBindings map[int]int // container port -> host port
}

// ContainerRuntime is a narrow capability over the local container engine.
// No retry policy lives at this layer; callers decide.
type ContainerRuntime interface {
	// ImageExists reports whether the tag is present locally
	ImageExists(ctx context.Context, tag string) (bool, error)

	// Pull fetches an image from its registry
	Pull(ctx context.Context, tag string) error

	// RunDetached creates and starts a container, returning its id
	RunDetached(ctx context.Context, spec RunSpec) (string, error)

	// Wait blocks until the container stops or the deadline passes,
	// returning the exit code
	Wait(ctx context.Context, containerID string, deadline time.Duration) (int, error)

	// Logs returns the container's combined stdout and stderr
	Logs(ctx context.Context, containerID string) ([]byte, error)

	// Inspect returns current status and port bindings
	Inspect(ctx context.Context, containerID string) (*ContainerInfo, error)

	// Stop stops a running container with a grace period
	Stop(ctx context.Context, containerID string, grace time.Duration) error

	// Remove deletes a container
	Remove(ctx context.Context, containerID string, force bool) error

	// UsedHostPorts returns the host ports bound by any container,
	// running or not
	UsedHostPorts(ctx context.Context) (map[int]bool, error)

	// Close releases the engine connection
	Close() error
}
