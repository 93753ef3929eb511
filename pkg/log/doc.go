/*
Package log provides structured logging for OpenClaw using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	import "github.com/openclaw/openclaw/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("control plane started")
	log.Error("failed to connect to docker daemon")

Structured logging:

	log.Logger.Info().
		Str("task_id", "task-123").
		Int("iteration", 3).
		Msg("agent step finished")

Component loggers:

	gwLog := log.WithComponent("gateway")
	gwLog.Info().Str("provider", "gemini").Msg("chat completion served")

	taskLog := log.WithTaskID("task-def456")
	taskLog.Info().Msg("workflow started")

# Integration Points

This package integrates with:

  - pkg/manager: task lifecycle and capability decisions
  - pkg/workflow: Temporal workflow and activity logging
  - pkg/gateway: per-provider request logging
  - pkg/builder: build progress and failures
  - pkg/api: HTTP request and error logging
  - pkg/runtime: container engine operations
*/
package log
