// Package agent runs one agent iteration as a set of Temporal
// activities: launch the throwaway container, poll the gateway for LLM
// turns while it runs, record each turn, and harvest the result
// envelope when it exits. The workspace persists across iterations of
// the same task; the container does not.
package agent
