package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKeepsUnknownFields(t *testing.T) {
	raw := `{
		"role": "tool",
		"content": "file written",
		"tool_call_id": "call_123",
		"name": "write",
		"x_vendor_hint": {"nested": true}
	}`

	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, "tool", m.Role)
	assert.Equal(t, "file written", m.Text())
	assert.Equal(t, "call_123", m.Extra["tool_call_id"])
	assert.Equal(t, "write", m.Extra["name"])

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var round map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, "call_123", round["tool_call_id"])
	assert.Equal(t, map[string]interface{}{"nested": true}, round["x_vendor_hint"])
}

func TestMessageNullContentWithToolCalls(t *testing.T) {
	raw := `{
		"role": "assistant",
		"content": null,
		"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "exec", "arguments": "{}"}}]
	}`

	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Nil(t, m.Content)
	require.Len(t, m.ToolCalls, 1)

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var round map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &round))
	value, present := round["content"]
	assert.True(t, present, "content must serialize even when null")
	assert.Nil(t, value)
}

func TestMessageFlattensMultiPartContent(t *testing.T) {
	raw := `{
		"role": "user",
		"content": [
			{"type": "text", "text": "first"},
			{"type": "text", "text": "second"}
		]
	}`

	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, "first\nsecond", m.Text())
}

func TestChatRequestKeepsExtensions(t *testing.T) {
	raw := `{
		"model": "gemma3:4b",
		"messages": [{"role": "user", "content": "hi"}],
		"tools": [{"type": "function", "function": {"name": "exec"}}],
		"tool_choice": "auto",
		"top_p": 0.9
	}`

	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, "gemma3:4b", req.Model)
	require.Len(t, req.Messages, 1)
	assert.Len(t, req.Tools(), 1)
	assert.Equal(t, "auto", req.Extra["tool_choice"])
	assert.Equal(t, 0.9, req.Extra["top_p"])
}

func TestChatRequestDefaults(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model": "m", "messages": []}`), &req))

	assert.Equal(t, 0.7, req.TemperatureOrDefault())
	assert.Equal(t, 4096, req.MaxTokensOrDefault())
	assert.False(t, req.WantStream())
}

func TestChatRequestStreamFlag(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model": "m", "messages": [], "stream": true}`), &req))
	assert.True(t, req.WantStream())

	// Some SDKs tuck stream into otherwise-unknown extensions
	bag := ChatRequest{Model: "m", Extra: map[string]interface{}{"stream": true}}
	assert.True(t, bag.WantStream())
}
