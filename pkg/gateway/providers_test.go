package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateway(env map[string]string) *Gateway {
	return New(nil, env)
}

func chatReq(t *testing.T, raw string) *ChatRequest {
	t.Helper()
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return &req
}

func TestCallOllamaTranslation(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		fmt.Fprint(w, `{
			"message": {"content": "hello there"},
			"prompt_eval_count": 11,
			"eval_count": 7
		}`)
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyOllamaURL: server.URL})
	req := chatReq(t, `{"model": "gemma3:4b", "messages": [{"role": "user", "content": "hi"}], "temperature": 0.2}`)

	resp, err := g.callOllama(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, false, captured["stream"])
	options := captured["options"].(map[string]interface{})
	assert.Equal(t, 0.2, options["temperature"])
	assert.Equal(t, float64(4096), options["num_predict"])

	assert.Equal(t, "hello there", resp.FirstMessage().Text())
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
}

func TestCallOllamaToolCallsFinishReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"message": {
				"content": "",
				"tool_calls": [{"function": {"name": "exec", "arguments": {"cmd": "ls"}}}]
			}
		}`)
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyOllamaURL: server.URL})
	resp, err := g.callOllama(context.Background(), chatReq(t, `{"model": "qwen3:8b", "messages": [{"role": "user", "content": "hi"}]}`))
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
	assert.Len(t, resp.FirstMessage().ToolCalls, 1)
}

func TestCallAnthropicTranslation(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		fmt.Fprint(w, `{
			"id": "msg_1",
			"content": [
				{"type": "text", "text": "running it"},
				{"type": "tool_use", "id": "toolu_1", "name": "exec", "input": {"cmd": "ls"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 9, "output_tokens": 4}
		}`)
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyAnthropicKey: "secret-key"})
	g.anthropicURL = server.URL

	req := chatReq(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "list files"},
			{"role": "assistant", "content": null, "tool_calls": [{"id": "call_0", "type": "function", "function": {"name": "exec", "arguments": "{\"cmd\":\"pwd\"}"}}]},
			{"role": "tool", "content": "/workspace", "tool_call_id": "call_0"}
		],
		"tools": [{"type": "function", "function": {"name": "exec", "description": "run", "parameters": {"type": "object"}}}]
	}`)

	resp, err := g.callAnthropic(context.Background(), req)
	require.NoError(t, err)

	// System message folded into the system field
	assert.Equal(t, "be terse", captured["system"])

	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 3)

	// Assistant tool_calls became tool_use blocks
	assistant := messages[1].(map[string]interface{})
	blocks := assistant["content"].([]interface{})
	toolUse := blocks[0].(map[string]interface{})
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "call_0", toolUse["id"])
	assert.Equal(t, map[string]interface{}{"cmd": "pwd"}, toolUse["input"])

	// Tool result became a user tool_result block
	toolMsg := messages[2].(map[string]interface{})
	assert.Equal(t, "user", toolMsg["role"])
	result := toolMsg["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "call_0", result["tool_use_id"])

	// Tools translated to input_schema form
	tools := captured["tools"].([]interface{})
	tool := tools[0].(map[string]interface{})
	assert.Equal(t, "exec", tool["name"])
	assert.NotNil(t, tool["input_schema"])

	// Response translated back to OpenAI shape
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
	msg := resp.FirstMessage()
	assert.Equal(t, "running it", msg.Text())
	require.Len(t, msg.ToolCalls, 1)
	fn := msg.ToolCalls[0]["function"].(map[string]interface{})
	assert.Equal(t, "exec", fn["name"])
	assert.JSONEq(t, `{"cmd":"ls"}`, fn["arguments"].(string))
	assert.Equal(t, 13, resp.Usage.TotalTokens)
}

func TestCallAnthropicNotConfigured(t *testing.T) {
	g := testGateway(nil)
	_, err := g.callAnthropic(context.Background(), chatReq(t, `{"model": "claude-3", "messages": []}`))

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusServiceUnavailable, perr.Status)
}

func TestCallGeminiNormalizesFinishReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gem-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"id": "cmpl-1",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_9",
						"type": "function",
						"function": {"name": "write", "arguments": "{}"},
						"extra_content": {"google": {"thought_signature": "sig-abc"}}
					}]
				},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}
		}`)
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyGeminiKey: "gem-key"})
	g.geminiURL = server.URL

	resp, err := g.callGemini(context.Background(), chatReq(t, `{"model": "gemini-flash-latest", "messages": [{"role": "user", "content": "go"}]}`))
	require.NoError(t, err)

	// stop with tool_calls present is normalized
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)

	// and the thought signature was cached for re-injection
	sig, ok := g.sigs.get("call_9")
	assert.True(t, ok)
	assert.Equal(t, "sig-abc", sig)
}

func TestGeminiThoughtSignatureReinjection(t *testing.T) {
	g := testGateway(map[string]string{KeyGeminiKey: "gem-key"})
	g.sigs.put("call_9", "sig-abc")

	req := chatReq(t, `{
		"model": "gemini-flash-latest",
		"messages": [
			{"role": "assistant", "content": null, "tool_calls": [{"id": "call_9", "type": "function", "function": {"name": "write", "arguments": "{}"}}]},
			{"role": "tool", "content": "ok", "tool_call_id": "call_9"}
		]
	}`)

	payload := g.geminiPayload(req, false)
	messages := payload["messages"].([]map[string]interface{})
	calls := messages[0]["tool_calls"].([]map[string]interface{})
	extra := calls[0]["extra_content"].(map[string]interface{})
	google := extra["google"].(map[string]interface{})
	assert.Equal(t, "sig-abc", google["thought_signature"])
}

func TestStreamGeminiRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": "overloaded"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"},\"finish_reason\":null}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyGeminiKey: "gem-key"})
	g.geminiURL = server.URL

	lines, err := g.streamGemini(context.Background(), chatReq(t, `{"model": "gemini-flash-latest", "messages": [{"role": "user", "content": "hi"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, lines, 3)
}

func TestStreamGeminiExhaustsRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyGeminiKey: "gem-key"})
	g.geminiURL = server.URL

	_, err := g.streamGemini(context.Background(), chatReq(t, `{"model": "gemini-flash-latest", "messages": []}`))
	require.Error(t, err)
	assert.Equal(t, geminiMaxRetries, attempts)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
}

func TestStreamGeminiReplayEmitsSingleDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"},\"finish_reason\":null}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyGeminiKey: "gem-key"})
	g.geminiURL = server.URL

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)

	req := chatReq(t, `{"model": "gemini-flash-latest", "messages": [{"role": "user", "content": "hi"}], "stream": true}`)
	g.streamResponse(c, ProviderGemini, "", req)

	body := rec.Body.String()
	assert.Contains(t, body, `"content":"hi"`)
	assert.Equal(t, 1, strings.Count(body, "data: [DONE]"), "stream must terminate with exactly one sentinel:\n%s", body)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"), "sentinel must be the final event:\n%s", body)
}

func TestCallOpenAIPassThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oa-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"id": "chatcmpl-real",
			"created": 1700000000,
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "done"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
		}`)
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyOpenAIKey: "oa-key"})
	g.openaiURL = server.URL

	resp, err := g.callOpenAI(context.Background(), chatReq(t, `{"model": "gpt-4o", "messages": [{"role": "user", "content": "x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-real", resp.ID)
	assert.Equal(t, "done", resp.FirstMessage().Text())
}

func TestProviderErrorSurfacesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "bad key"}`)
	}))
	defer server.Close()

	g := testGateway(map[string]string{KeyOpenAIKey: "bad"})
	g.openaiURL = server.URL

	_, err := g.callOpenAI(context.Background(), chatReq(t, `{"model": "gpt-4o", "messages": []}`))
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Contains(t, perr.Detail, "bad key")
}
