package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSSE(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var chunks []map[string]interface{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			chunks = append(chunks, map[string]interface{}{"done": true})
			continue
		}
		var chunk map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		chunks = append(chunks, chunk)
	}
	return chunks
}

func delta(t *testing.T, chunk map[string]interface{}) map[string]interface{} {
	t.Helper()
	choices := chunk["choices"].([]interface{})
	require.NotEmpty(t, choices)
	return choices[0].(map[string]interface{})["delta"].(map[string]interface{})
}

func TestStreamCompletionContentChunks(t *testing.T) {
	content := strings.Repeat("a", 250)
	resp := &ChatResponse{
		Model: "gemma3:4b",
		Choices: []Choice{{
			Message:      NewTextMessage("assistant", content),
			FinishReason: "stop",
		}},
		Usage: Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}

	w := httptest.NewRecorder()
	sseHeaders(w)
	streamCompletion(w, resp, "gemma3:4b")

	chunks := parseSSE(t, w.Body.String())
	require.GreaterOrEqual(t, len(chunks), 6)

	// Role chunk first
	first := delta(t, chunks[0])
	assert.Equal(t, "assistant", first["role"])

	// 250 chars at 100 per piece is three content chunks
	var rebuilt strings.Builder
	contentChunks := 0
	for _, chunk := range chunks[1 : len(chunks)-2] {
		d := delta(t, chunk)
		if text, ok := d["content"].(string); ok {
			rebuilt.WriteString(text)
			contentChunks++
			assert.LessOrEqual(t, len(text), 100)
		}
	}
	assert.Equal(t, 3, contentChunks)
	assert.Equal(t, content, rebuilt.String())

	// Terminal chunk carries finish_reason and usage, then DONE
	terminal := chunks[len(chunks)-2]
	choices := terminal["choices"].([]interface{})
	assert.Equal(t, "stop", choices[0].(map[string]interface{})["finish_reason"])
	usage := terminal["usage"].(map[string]interface{})
	assert.Equal(t, float64(30), usage["total_tokens"])

	assert.Equal(t, true, chunks[len(chunks)-1]["done"])
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}

func TestStreamCompletionToolCalls(t *testing.T) {
	args := strings.Repeat("x", 450)
	resp := &ChatResponse{
		Model: "gpt-4o",
		Choices: []Choice{{
			Message: Message{
				Role: "assistant",
				ToolCalls: []map[string]interface{}{{
					"id":   "call_abc",
					"type": "function",
					"function": map[string]interface{}{
						"name":      "exec",
						"arguments": args,
					},
				}},
			},
			FinishReason: "tool_calls",
		}},
	}

	w := httptest.NewRecorder()
	streamCompletion(w, resp, "gpt-4o")
	chunks := parseSSE(t, w.Body.String())

	// role, opener, 3 argument fragments, terminal, DONE
	require.Len(t, chunks, 7)

	opener := delta(t, chunks[1])["tool_calls"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "call_abc", opener["id"])
	assert.Equal(t, "function", opener["type"])
	fn := opener["function"].(map[string]interface{})
	assert.Equal(t, "exec", fn["name"])
	assert.Equal(t, "", fn["arguments"])

	var rebuilt strings.Builder
	for _, chunk := range chunks[2:5] {
		frag := delta(t, chunk)["tool_calls"].([]interface{})[0].(map[string]interface{})
		piece := frag["function"].(map[string]interface{})["arguments"].(string)
		assert.LessOrEqual(t, len(piece), 200)
		rebuilt.WriteString(piece)
	}
	assert.Equal(t, args, rebuilt.String())
}

func TestStreamErrorEmitsTerminalChunk(t *testing.T) {
	w := httptest.NewRecorder()
	sseHeaders(w)
	streamError(w, "gemma3:4b", "backend unreachable")

	chunks := parseSSE(t, w.Body.String())
	require.Len(t, chunks, 2)

	d := delta(t, chunks[0])
	content := d["content"].(string)
	assert.True(t, strings.HasPrefix(content, "[LLM_ERROR] "))
	assert.Contains(t, content, "backend unreachable")
	assert.Equal(t, true, chunks[1]["done"])
}

func TestAccumulateStreamRebuildsToolCalls(t *testing.T) {
	lines := []string{
		`data: {"choices":[{"delta":{"role":"assistant"},"finish_reason":null}]}`,
		`data: {"choices":[{"delta":{"content":"thinking"},"finish_reason":null}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"exec","arguments":""}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"cmd\":"}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"ls\"}"}}]},"finish_reason":null}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`,
	}

	content, toolCalls, finishReason, usage := accumulateStream(lines)

	assert.Equal(t, "thinking", content)
	assert.Equal(t, "tool_calls", finishReason)
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.TotalTokens)

	require.Len(t, toolCalls, 1)
	assert.Equal(t, "call_1", toolCalls[0]["id"])
	fn := toolCalls[0]["function"].(map[string]interface{})
	assert.Equal(t, "exec", fn["name"])
	assert.Equal(t, `{"cmd":"ls"}`, fn["arguments"])
}
