/*
Package types defines the core data structures shared across OpenClaw.

Tasks own their policies, capability requests, iteration outputs, messages,
and deployments. Workflow identity (workflow id, run id) is a weak
back-reference; the workflow engine remains the source of truth for workflow
state. The package also carries the error taxonomy used by every layer and
the agent result envelope exchanged between the step controller and the task
workflow.
*/
package types
