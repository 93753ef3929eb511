package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: buf})
	return buf
}

// Level methods must chain directly on the helper call expression; the
// helpers return a pointer so the event builders resolve on it.
func TestChildLoggersChainOnCallExpression(t *testing.T) {
	buf := initBuffer(t)

	WithComponent("gateway").Warn().Str("provider", "gemini").Msg("retrying")
	WithTaskID("task-abc123").Info().Int("iteration", 3).Msg("stored")
	WithDeploymentID("deploy-1").Error().Msg("gone")
	WithBuildID("build-1").Debug().Msg("queued")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "gateway", first["component"])
	assert.Equal(t, "gemini", first["provider"])
	assert.Equal(t, "warn", first["level"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "task-abc123", second["task_id"])
	assert.Equal(t, float64(3), second["iteration"])
}

func TestTemporalAdapterPairsKeyvals(t *testing.T) {
	buf := initBuffer(t)

	adapter := NewTemporalAdapter(WithComponent("temporal"))
	adapter.Info("WorkflowStarted", "WorkflowID", "task-workflow-1", "Attempt", 1)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "temporal", line["component"])
	assert.Equal(t, "task-workflow-1", line["WorkflowID"])
	assert.Equal(t, float64(1), line["Attempt"])
	assert.Equal(t, "WorkflowStarted", line["message"])
}
