/*
Package storage provides persistent state storage for the control plane.

All durable rows (tasks, policies, capability requests, iteration outputs,
conversation messages, deployments, LLM provider configuration, audit log)
live in a single BoltDB file as JSON-encoded values, one bucket per row
type. Writes that cross a user-visible boundary are single-row updates;
there is no multi-row transaction contract.

Integer-keyed rows (policies, capability requests, outputs, messages,
audit entries) take their ids from the bucket sequence so ids are monotone
in insertion order.
*/
package storage
