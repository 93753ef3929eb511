package agent

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	maxDescriptionBytes = 2000
	maxDockerfileBytes  = 4000
	maxFollowUpBytes    = 2000

	maxPreambleFiles = 30
)

// Config holds the step controller's environment
type Config struct {
	// ControlPlaneHost is the control plane's service name on the shared
	// network. The agent container runs inside a nested daemon, so the
	// name is resolved to an IP before injection.
	ControlPlaneHost string
	ControlPlanePort int

	// ControlPlaneIP overrides resolution when set
	ControlPlaneIP string

	OllamaURL      string
	AgentImagesDir string

	// lookupHost is swapped in tests
	lookupHost func(host string) ([]string, error)
}

// DefaultConfig returns the compose-network defaults
func DefaultConfig() Config {
	return Config{
		ControlPlaneHost: "control-plane",
		ControlPlanePort: 8000,
		OllamaURL:        "http://host.docker.internal:11434",
		AgentImagesDir:   "/agent-images",
	}
}

// ControlPlaneURL resolves the control-plane address the agent container
// can reach. Falls back to the hostname when resolution fails.
func (c Config) ControlPlaneURL() string {
	host := c.ControlPlaneIP
	if host == "" {
		lookup := c.lookupHost
		if lookup == nil {
			lookup = net.LookupHost
		}
		if addrs, err := lookup(c.ControlPlaneHost); err == nil && len(addrs) > 0 {
			host = addrs[0]
		} else {
			host = c.ControlPlaneHost
		}
	}
	return fmt.Sprintf("http://%s:%d", host, c.ControlPlanePort)
}

// ComposeEnv builds the agent container's environment
func ComposeEnv(cfg Config, taskID string, iteration int, image, model, description, followUp string) map[string]string {
	cpURL := cfg.ControlPlaneURL()

	return map[string]string{
		"TASK_ID":           taskID,
		"ITERATION":         strconv.Itoa(iteration),
		"CONTROL_PLANE_URL": cpURL,
		"LLM_ROUTER_URL":    cpURL + "/api/llm",
		"OLLAMA_URL":        cfg.OllamaURL,
		"LLM_MODEL":         model,
		"TASK_DESCRIPTION":  Truncate(description, maxDescriptionBytes),
		"AGENT_IMAGE":       image,
		"AGENT_DOCKERFILE":  Truncate(readDockerfile(cfg.AgentImagesDir, taskID), maxDockerfileBytes),
		"FOLLOW_UP":         Truncate(followUp, maxFollowUpBytes),
	}
}

// readDockerfile loads the task's current Dockerfile so the agent sees
// what is already installed
func readDockerfile(agentImagesDir, taskID string) string {
	if agentImagesDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(agentImagesDir, taskID, "Dockerfile"))
	if err != nil {
		return ""
	}
	return string(data)
}

// ContinuationPreamble wraps the original prompt for a continuation run,
// listing the workspace files the previous run produced
func ContinuationPreamble(existingFiles []string, followUp, original string) string {
	filesContext := "none"
	if len(existingFiles) > 0 {
		if len(existingFiles) > maxPreambleFiles {
			existingFiles = existingFiles[:maxPreambleFiles]
		}
		filesContext = strings.Join(existingFiles, ", ")
	}
	return fmt.Sprintf(
		"CONTINUATION: The previous run of this task already completed and produced these files "+
			"in /workspace: [%s]. "+
			"Your job now is to IMPROVE the existing code based on these follow-up instructions:\n\n"+
			"%s\n\n"+
			"--- Original task description for reference ---\n%s",
		filesContext, followUp, original,
	)
}
