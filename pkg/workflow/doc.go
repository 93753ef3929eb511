// Package workflow contains the durable orchestration for agent tasks:
// the task loop that iterates agent steps and suspends on capability
// approvals, the per-iteration step workflow, and the deployment build
// and run workflows, plus the worker that serves them all on the
// openclaw-tasks queue.
//
// The workflows hold no I/O. Every side effect lives in an activity so
// a crash anywhere resumes from the engine's history, and a task can
// sit suspended on an approval signal for hours without holding any
// process state.
package workflow
