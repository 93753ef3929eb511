package types

// AgentResult is the envelope one agent iteration returns to the task
// workflow. It is parsed from the delimited JSON block on container stdout,
// falling back to result.json in the workspace.
type AgentResult struct {
	Completed           bool `json:"completed"`
	CapabilityRequested bool `json:"capability_requested"`
	DeploymentRequested bool `json:"deployment_requested"`
	AgentFailed         bool `json:"agent_failed"`
	ParseError          bool `json:"parse_error,omitempty"`

	Capability *CapabilityAsk `json:"capability,omitempty"`
	Deployment *DeploymentAsk `json:"deployment,omitempty"`

	// Deliverable files harvested from the workspace, filename -> content
	Deliverables map[string]string `json:"deliverables,omitempty"`

	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	AgentLogs string `json:"agent_logs,omitempty"`

	Metadata *StepMetadata `json:"_temporal_metadata,omitempty"`

	// Interaction turns drained from the gateway after the container
	// exited, appended so no turn is lost between polls
	RemainingTurns []Interaction `json:"_remaining_turns,omitempty"`
}

// CapabilityAsk is the payload of a CAPABILITY_REQUEST marker
type CapabilityAsk struct {
	Type          string `json:"type"`
	Resource      string `json:"resource"`
	Justification string `json:"justification"`
}

// DeploymentAsk is the payload of a DEPLOYMENT_REQUEST marker
type DeploymentAsk struct {
	Name       string   `json:"name"`
	Port       int      `json:"port"`
	Entrypoint string   `json:"entrypoint"`
	Files      []string `json:"files,omitempty"`
}

// StepMetadata is attached by the step controller before the envelope is
// handed back to the workflow
type StepMetadata struct {
	Iteration   int    `json:"iteration"`
	ImageUsed   string `json:"image_used"`
	CollectedAt string `json:"collected_at"`
}

// Interaction is one recorded LLM turn for a task. Ordinals are 1-based
// and gapless in insertion order.
type Interaction struct {
	Ordinal   int                    `json:"ordinal"`
	Timestamp string                 `json:"timestamp"`
	Provider  string                 `json:"provider"`
	Streaming bool                   `json:"streaming"`
	Request   map[string]interface{} `json:"request"`
	Response  map[string]interface{} `json:"response"`
}
