package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.lookupHost = func(host string) ([]string, error) {
		return []string{"172.18.0.5"}, nil
	}
	return cfg
}

func TestComposeEnv(t *testing.T) {
	cfg := testConfig(t)
	cfg.AgentImagesDir = t.TempDir()
	taskDir := filepath.Join(cfg.AgentImagesDir, "task-1")
	require.NoError(t, os.MkdirAll(taskDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "Dockerfile"), []byte("FROM openclaw-agent:openclaw\n"), 0644))

	env := ComposeEnv(cfg, "task-1", 2, "openclaw-agent:task-1-v1", "gemma3:4b", "build a web app", "")

	assert.Equal(t, "task-1", env["TASK_ID"])
	assert.Equal(t, "2", env["ITERATION"])
	assert.Equal(t, "http://172.18.0.5:8000", env["CONTROL_PLANE_URL"])
	assert.Equal(t, "http://172.18.0.5:8000/api/llm", env["LLM_ROUTER_URL"])
	assert.Equal(t, "gemma3:4b", env["LLM_MODEL"])
	assert.Equal(t, "openclaw-agent:task-1-v1", env["AGENT_IMAGE"])
	assert.Contains(t, env["AGENT_DOCKERFILE"], "FROM openclaw-agent:openclaw")
	assert.Equal(t, "", env["FOLLOW_UP"])
}

func TestComposeEnvTruncation(t *testing.T) {
	cfg := testConfig(t)

	longDesc := strings.Repeat("d", 3000)
	longFollowUp := strings.Repeat("f", 3000)
	env := ComposeEnv(cfg, "task-1", 1, "img", "m", longDesc, longFollowUp)

	assert.Len(t, env["TASK_DESCRIPTION"], maxDescriptionBytes)
	assert.Len(t, env["FOLLOW_UP"], maxFollowUpBytes)
}

func TestControlPlaneURLFallsBackToHostname(t *testing.T) {
	cfg := DefaultConfig()
	cfg.lookupHost = func(host string) ([]string, error) {
		return nil, assert.AnError
	}
	assert.Equal(t, "http://control-plane:8000", cfg.ControlPlaneURL())
}

func TestControlPlaneURLExplicitIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ControlPlaneIP = "10.0.0.9"
	assert.Equal(t, "http://10.0.0.9:8000", cfg.ControlPlaneURL())
}

func TestContinuationPreamble(t *testing.T) {
	prompt := ContinuationPreamble([]string{"app.py", "templates/index.html"}, "add dark mode", "build a web app")

	assert.Contains(t, prompt, "CONTINUATION")
	assert.Contains(t, prompt, "app.py, templates/index.html")
	assert.Contains(t, prompt, "add dark mode")
	assert.Contains(t, prompt, "build a web app")
}

func TestContinuationPreambleNoFiles(t *testing.T) {
	prompt := ContinuationPreamble(nil, "try again", "original")
	assert.Contains(t, prompt, "[none]")
}
