/*
Package manager is the control plane's core: every rule about tasks,
policies, capability requests, outputs, messages, and deployments lives
here, between the HTTP layer above and the store below.

Responsibilities:

  - Task lifecycle. CreateTask stores the row with a version-1 policy and
    auto-starts the task workflow; transitions go through a fixed state
    table and stamp started/completed timestamps.
  - Iteration outputs. AppendOutput enforces monotone iteration numbers,
    adopts the iteration's image as the task's current image, and derives
    the agent's conversation message from the output.
  - Capability review. A pending request is decided exactly once; the
    decision is delivered as the approve_capability signal to the task's
    workflow. Approval creates the next policy version. A denial carrying
    an alternative suggestion is not a decision: the request records the
    suggestion and stays pending.
  - Deployment lifecycle. pending_approval -> approved (build workflow)
    -> building -> built -> running <-> stopped, with failed reachable
    from anywhere. The PATCH surface is restricted to the fields the
    workflow activities own.
  - Observability. Every mutation publishes a typed event and appends an
    audit entry; the timeline and current-state views are assembled from
    those plus the durable rows and the builder's persisted Dockerfiles.

The manager never touches the container engine or the builder directly:
all side effects run inside workflow activities, which call back into
this package through the HTTP API.
*/
package manager
