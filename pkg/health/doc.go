/*
Package health provides probe primitives for OpenClaw targets that live
outside the process, chiefly deployment containers.

Two checkers are provided. HTTPChecker issues a request and accepts a
configurable status range; TCPChecker dials and hangs up. Both honor
context cancellation and report a Result with timing attached.

Status folds consecutive results into a debounced verdict so that one
dropped probe does not flip a deployment to unhealthy:

	config := health.DefaultConfig()
	checker := health.NewHTTPChecker(deployment.URL)
	status := health.NewStatus()

	result := checker.Check(ctx)
	status.Update(result, config)

Process-level liveness and readiness for OpenClaw's own services live in
pkg/metrics, not here.
*/
package health
