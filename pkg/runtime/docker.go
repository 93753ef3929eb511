package runtime

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/openclaw/openclaw/pkg/types"
)

// DockerRuntime implements ContainerRuntime against the Docker Engine API
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects to the engine using the standard environment
// (DOCKER_HOST or the default socket)
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to docker: %w", types.ErrRuntimeUnavailable)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Close releases the engine connection
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

// mapErr translates engine errors into the shared taxonomy
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%s: %v: %w", op, err, types.ErrNotFound)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%s: %v: %w", op, err, types.ErrRuntimeUnavailable)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ImageExists reports whether the tag is present locally
func (r *DockerRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	_, _, err := r.cli.ImageInspectWithRaw(ctx, tag)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, mapErr("image inspect", err)
	}
	return true, nil
}

// Pull fetches an image; the reader must be drained for the pull to finish
func (r *DockerRuntime) Pull(ctx context.Context, tag string) error {
	reader, err := r.cli.ImagePull(ctx, tag, image.PullOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("pull %s: %w", tag, types.ErrImageNotFound)
		}
		return mapErr("image pull", err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("image pull %s: %w", tag, err)
	}
	return nil
}

// RunDetached creates and starts a container from the spec
func (r *DockerRuntime) RunDetached(ctx context.Context, spec RunSpec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	binds := make([]string, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range spec.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
	}

	hostConfig := &container.HostConfig{
		Binds:        binds,
		Tmpfs:        spec.Tmpfs,
		PortBindings: bindings,
	}
	if spec.NetworkMode != "" {
		hostConfig.NetworkMode = container.NetworkMode(spec.NetworkMode)
	}
	if spec.RestartPolicy != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(spec.RestartPolicy),
		}
	}

	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Env:          env,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}, hostConfig, nil, nil, spec.Name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("create from %s: %w", spec.Image, types.ErrImageNotFound)
		}
		return "", mapErr("container create", err)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", mapErr("container start", err)
	}
	return created.ID, nil
}

// Wait blocks until the container exits or the deadline passes
func (r *DockerRuntime) Wait(ctx context.Context, containerID string, deadline time.Duration) (int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	statusCh, errCh := r.cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return -1, fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		if waitCtx.Err() != nil {
			return -1, fmt.Errorf("container wait %s: %w", containerID, types.ErrTimeout)
		}
		return -1, mapErr("container wait", err)
	}
}

// Logs returns combined stdout and stderr
func (r *DockerRuntime) Logs(ctx context.Context, containerID string) ([]byte, error) {
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, mapErr("container logs", err)
	}
	defer reader.Close()

	// The stream is multiplexed; demux into one buffer
	var buf strings.Builder
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return nil, fmt.Errorf("container logs %s: %w", containerID, err)
	}
	return []byte(buf.String()), nil
}

// Inspect returns status and port bindings
func (r *DockerRuntime) Inspect(ctx context.Context, containerID string) (*ContainerInfo, error) {
	info, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, mapErr("container inspect", err)
	}

	result := &ContainerInfo{
		ID:           info.ID,
		PortBindings: make(map[int]int),
	}
	if info.State != nil {
		result.Status = info.State.Status
		result.Running = info.State.Running
		result.ExitCode = info.State.ExitCode
	}
	if info.NetworkSettings != nil {
		for port, bindings := range info.NetworkSettings.Ports {
			for _, binding := range bindings {
				hostPort, err := strconv.Atoi(binding.HostPort)
				if err != nil {
					continue
				}
				result.PortBindings[port.Int()] = hostPort
			}
		}
	}
	return result, nil
}

// Stop stops a running container with a grace period
func (r *DockerRuntime) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		return mapErr("container stop", err)
	}
	return nil
}

// Remove deletes a container
func (r *DockerRuntime) Remove(ctx context.Context, containerID string, force bool) error {
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return mapErr("container remove", err)
	}
	return nil
}

// UsedHostPorts returns every host port bound by a container on the engine
func (r *DockerRuntime) UsedHostPorts(ctx context.Context) (map[int]bool, error) {
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, mapErr("container list", err)
	}

	used := make(map[int]bool)
	for _, c := range containers {
		for _, port := range c.Ports {
			if port.PublicPort > 0 {
				used[int(port.PublicPort)] = true
			}
		}
	}
	return used, nil
}
