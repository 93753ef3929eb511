/*
Package reconciler closes the gap between deployment rows and the
container engine. The control plane records what should be running; the
engine knows what is. A periodic sweep inspects every running
deployment's container and corrects rows whose container disappeared or
exited.

The sweep never starts containers. Restarts belong to the engine's
unless-stopped policy, and deliberate starts go through the deployment
workflows, so the only safe unilateral action here is marking rows
stopped or failed.
*/
package reconciler
