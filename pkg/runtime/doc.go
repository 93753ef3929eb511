/*
Package runtime provides Docker Engine integration for OpenClaw's container
lifecycle management.

The runtime package wraps the Docker client API behind a narrow
ContainerRuntime interface: image existence checks and pulls, detached runs
with mounts, tmpfs, port bindings and restart policies, waiting, log
harvest, inspection, stop/remove, and a host-port usage scan for the
deployment allocator. It deliberately carries no retry policy; activities
and workflows own that decision.

# Usage

Creating a runtime client:

	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

Running an agent container:

	id, err := rt.RunDetached(ctx, runtime.RunSpec{
		Image:       "openclaw-agent:task-abc123-v2",
		Env:         map[string]string{"TASK_ID": "task-abc123"},
		Mounts:      []runtime.Mount{{Source: workspace, Target: "/workspace"}},
		Tmpfs:       map[string]string{"/tmp": "size=100m,mode=1777"},
		NetworkMode: "host",
	})

Running a deployment container:

	id, err := rt.RunDetached(ctx, runtime.RunSpec{
		Image:         "openclaw-deploy:deploy-11112222",
		Name:          "deploy-11112222",
		Ports:         map[int]int{5000: 9100},
		RestartPolicy: "unless-stopped",
		Labels:        map[string]string{"openclaw.deployment": "deploy-11112222"},
	})

# Error Mapping

Engine errors are translated to the shared taxonomy in pkg/types:
missing images map to ErrImageNotFound, unreachable daemons to
ErrRuntimeUnavailable, expired waits to ErrTimeout. Callers branch with
errors.Is rather than string matching.

# Integration Points

  - pkg/agent: agent container start, poll, harvest
  - pkg/workflow: deployment start/stop activities and port scanning
  - pkg/reconciler: drift detection between rows and live containers
*/
package runtime
