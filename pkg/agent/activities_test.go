package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw/pkg/client"
	"github.com/openclaw/openclaw/pkg/runtime"
	"github.com/openclaw/openclaw/pkg/types"
	"github.com/openclaw/openclaw/pkg/workspace"
)

// fakeRuntime implements runtime.ContainerRuntime with function hooks
type fakeRuntime struct {
	imageExists   func(tag string) (bool, error)
	pull          func(tag string) error
	runDetached   func(spec runtime.RunSpec) (string, error)
	wait          func(id string) (int, error)
	logs          func(id string) ([]byte, error)
	inspect       func(id string) (*runtime.ContainerInfo, error)
	removedForced []string
}

func (f *fakeRuntime) ImageExists(_ context.Context, tag string) (bool, error) {
	if f.imageExists != nil {
		return f.imageExists(tag)
	}
	return true, nil
}

func (f *fakeRuntime) Pull(_ context.Context, tag string) error {
	if f.pull != nil {
		return f.pull(tag)
	}
	return nil
}

func (f *fakeRuntime) RunDetached(_ context.Context, spec runtime.RunSpec) (string, error) {
	return f.runDetached(spec)
}

func (f *fakeRuntime) Wait(_ context.Context, id string, _ time.Duration) (int, error) {
	if f.wait != nil {
		return f.wait(id)
	}
	return 0, nil
}

func (f *fakeRuntime) Logs(_ context.Context, id string) ([]byte, error) {
	return f.logs(id)
}

func (f *fakeRuntime) Inspect(_ context.Context, id string) (*runtime.ContainerInfo, error) {
	return f.inspect(id)
}

func (f *fakeRuntime) Stop(_ context.Context, _ string, _ time.Duration) error { return nil }

func (f *fakeRuntime) Remove(_ context.Context, id string, force bool) error {
	if force {
		f.removedForced = append(f.removedForced, id)
	}
	return nil
}

func (f *fakeRuntime) UsedHostPorts(_ context.Context) (map[int]bool, error) {
	return map[int]bool{}, nil
}

func (f *fakeRuntime) Close() error { return nil }

func testActivities(t *testing.T, rt *fakeRuntime, cpURL string) *Activities {
	t.Helper()

	ws, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ControlPlaneIP = "127.0.0.1"
	cfg.AgentImagesDir = t.TempDir()

	a := NewActivities(cfg, rt, client.NewControlPlane(cpURL), ws)
	a.heartbeat = func(context.Context, ...interface{}) {}
	a.sleep = time.Millisecond
	return a
}

func TestStartAgentContainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Task{
			ID:          "task-1",
			WorkspaceID: "workspace-task-1",
			Description: "build a fibonacci API",
		})
	}))
	defer server.Close()

	var captured runtime.RunSpec
	rt := &fakeRuntime{
		runDetached: func(spec runtime.RunSpec) (string, error) {
			captured = spec
			return "container-abc", nil
		},
	}

	a := testActivities(t, rt, server.URL)
	result, err := a.StartAgentContainer(context.Background(), StartContainerInput{
		TaskID:    "task-1",
		Iteration: 1,
		Image:     "openclaw-agent:task-1-v1",
		Model:     "gemma3:4b",
	})
	require.NoError(t, err)

	assert.Equal(t, "container-abc", result.ContainerID)
	assert.Equal(t, "openclaw-agent:task-1-v1", captured.Image)
	assert.Equal(t, "host", captured.NetworkMode)
	assert.Equal(t, "size=100m,mode=1777", captured.Tmpfs["/tmp"])
	require.Len(t, captured.Mounts, 1)
	assert.Equal(t, "/workspace", captured.Mounts[0].Target)
	assert.Equal(t, "task-1", captured.Env["TASK_ID"])
	assert.Equal(t, "build a fibonacci API", captured.Env["TASK_DESCRIPTION"])
	assert.Equal(t, "http://127.0.0.1:8000/api/llm", captured.Env["LLM_ROUTER_URL"])
}

func TestStartAgentContainerImageFallbackPull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Task{ID: "task-1"})
	}))
	defer server.Close()

	var pulled string
	rt := &fakeRuntime{
		imageExists: func(tag string) (bool, error) { return false, nil },
		pull: func(tag string) error {
			pulled = tag
			return nil
		},
		runDetached: func(spec runtime.RunSpec) (string, error) { return "c1", nil },
	}

	a := testActivities(t, rt, server.URL)
	result, err := a.StartAgentContainer(context.Background(), StartContainerInput{
		TaskID: "task-1",
		Image:  "localhost:5000/openclaw-agent:task-1-v2",
	})
	require.NoError(t, err)
	assert.Equal(t, "registry:5000/openclaw-agent:task-1-v2", pulled)
	assert.Equal(t, "registry:5000/openclaw-agent:task-1-v2", result.Image)
}

func TestPollAgentTurnsReturnsNewTurns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"interactions": []types.Interaction{
				{Ordinal: 3, Provider: "ollama"},
				{Ordinal: 4, Provider: "ollama"},
			},
		})
	}))
	defer server.Close()

	rt := &fakeRuntime{
		inspect: func(id string) (*runtime.ContainerInfo, error) {
			return &runtime.ContainerInfo{Running: true}, nil
		},
	}

	a := testActivities(t, rt, server.URL)
	result, err := a.PollAgentTurns(context.Background(), PollTurnsInput{
		TaskID:      "task-1",
		ContainerID: "c1",
		TurnsSeen:   2,
	})
	require.NoError(t, err)
	assert.False(t, result.ContainerDone)
	require.Len(t, result.NewTurns, 2)
	assert.Equal(t, 3, result.NewTurns[0].Ordinal)
}

func TestPollAgentTurnsContainerExit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"interactions": []types.Interaction{}})
	}))
	defer server.Close()

	rt := &fakeRuntime{
		inspect: func(id string) (*runtime.ContainerInfo, error) {
			return &runtime.ContainerInfo{Running: false, ExitCode: 0}, nil
		},
	}

	a := testActivities(t, rt, server.URL)
	result, err := a.PollAgentTurns(context.Background(), PollTurnsInput{TaskID: "task-1", ContainerID: "c1"})
	require.NoError(t, err)
	assert.True(t, result.ContainerDone)
	assert.Empty(t, result.NewTurns)
}

func TestCollectAgentResult(t *testing.T) {
	cleared := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			cleared = true
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"interactions": []types.Interaction{{Ordinal: 1, Provider: "ollama"}},
		})
	}))
	defer server.Close()

	rt := &fakeRuntime{
		logs: func(id string) ([]byte, error) {
			return []byte("work work\n===OPENCLAW_RESULT_JSON_START===\n{\"completed\": true}\n===OPENCLAW_RESULT_JSON_END===\n"), nil
		},
	}

	a := testActivities(t, rt, server.URL)
	result, err := a.CollectAgentResult(context.Background(), CollectResultInput{
		TaskID:      "task-1",
		Iteration:   2,
		ContainerID: "c1",
		Image:       "openclaw-agent:task-1-v1",
	})
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Contains(t, result.AgentLogs, "work work")
	require.NotNil(t, result.Metadata)
	assert.Equal(t, 2, result.Metadata.Iteration)
	assert.Equal(t, "openclaw-agent:task-1-v1", result.Metadata.ImageUsed)
	require.Len(t, result.RemainingTurns, 1)
	assert.True(t, cleared)
	assert.Equal(t, []string{"c1"}, rt.removedForced)
}

func TestRecordAgentTurn(t *testing.T) {
	a := testActivities(t, &fakeRuntime{}, "http://unused")

	record, err := a.RecordAgentTurn(context.Background(), RecordTurnInput{
		TaskID:    "task-1",
		Iteration: 1,
		Turn:      3,
		Data: types.Interaction{
			Provider: "gemini",
			Response: map[string]interface{}{
				"finish_reason": "tool_calls",
				"tool_calls": []interface{}{
					map[string]interface{}{"name": "write", "arguments": map[string]interface{}{}},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, record.Turn)
	assert.Equal(t, "gemini", record.Provider)
	assert.Equal(t, "tool_calls", record.FinishReason)
	assert.Equal(t, []string{"write"}, record.ToolCalls)
}
