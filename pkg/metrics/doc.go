/*
Package metrics provides Prometheus instrumentation and health reporting
for the OpenClaw control plane, builder, and gateway.

All metrics live under the openclaw_ prefix and register themselves at
package init. Gauges covering task and deployment populations are
refreshed from the store by the Collector on a 15 second interval;
counters and histograms are updated inline by the code paths they
measure.

# Metric Families

  - openclaw_tasks_total, openclaw_deployments_total: population gauges
    by lifecycle status, refreshed by the Collector
  - openclaw_iterations_total, openclaw_iteration_duration_seconds:
    agent iteration volume and latency
  - openclaw_builds_total, openclaw_build_duration_seconds: image build
    outcomes by kind (agent, deployment)
  - openclaw_llm_requests_total, openclaw_llm_request_duration_seconds,
    openclaw_sse_streams_total: gateway traffic by provider
  - openclaw_capability_requests_total,
    openclaw_capability_decisions_total: approval loop volume
  - openclaw_api_requests_total, openclaw_api_request_duration_seconds:
    HTTP surface traffic

# Health

The package also carries the process health checker. Components register
themselves with RegisterComponent and update their state with
UpdateComponent; HealthHandler, ReadyHandler and LivenessHandler serve
the aggregate. Readiness requires the critical components (store,
docker, temporal) to be registered and healthy.

Expose everything on the API server:

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
*/
package metrics
