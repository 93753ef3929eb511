package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	sseContentPiece = 100
	sseArgsPiece    = 200
)

// sseHeaders marks a response as an event stream and disables proxy
// buffering so deltas reach the agent as they are written
func sseHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func writeEvent(w io.Writer, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func writeRaw(w io.Writer, line string) {
	fmt.Fprintf(w, "%s\n\n", line)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func writeDone(w io.Writer) {
	writeRaw(w, "data: [DONE]")
}

func chunkEnvelope(id string, created int64, model string, choices []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   model,
		"choices": choices,
	}
}

func deltaChoice(delta map[string]interface{}, finishReason interface{}) []interface{} {
	return []interface{}{map[string]interface{}{
		"index":         0,
		"delta":         delta,
		"finish_reason": finishReason,
	}}
}

// streamCompletion replays a completed response as an OpenAI SSE chunk
// stream: a role chunk, content in small pieces, each tool call opened
// with its id and name then its arguments in fragments, a terminal chunk
// carrying finish_reason and usage, and the DONE sentinel. Agents always
// request streaming; backends other than Gemini answer in one piece, so
// this bridge is the main path.
func streamCompletion(w http.ResponseWriter, resp *ChatResponse, reqModel string) {
	chunkID := "chatcmpl-" + uuid.NewString()[:12]
	created := resp.Created
	if created == 0 {
		created = time.Now().Unix()
	}
	model := resp.Model
	if model == "" {
		model = reqModel
	}

	if len(resp.Choices) == 0 {
		writeEvent(w, chunkEnvelope(chunkID, created, model, []interface{}{}))
		writeDone(w)
		return
	}

	choice := resp.Choices[0]
	msg := choice.Message

	writeEvent(w, chunkEnvelope(chunkID, created, model,
		deltaChoice(map[string]interface{}{"role": "assistant", "content": nil}, nil)))

	content := msg.Text()
	for i := 0; i < len(content); i += sseContentPiece {
		end := i + sseContentPiece
		if end > len(content) {
			end = len(content)
		}
		writeEvent(w, chunkEnvelope(chunkID, created, model,
			deltaChoice(map[string]interface{}{"content": content[i:end]}, nil)))
	}

	for tcIndex, tc := range msg.ToolCalls {
		fn, _ := tc["function"].(map[string]interface{})
		callID, _ := tc["id"].(string)
		if callID == "" {
			callID = "call_" + uuid.NewString()[:8]
		}
		name, _ := fn["name"].(string)
		args, _ := fn["arguments"].(string)
		if args == "" {
			args = "{}"
		}

		writeEvent(w, chunkEnvelope(chunkID, created, model,
			deltaChoice(map[string]interface{}{
				"tool_calls": []interface{}{map[string]interface{}{
					"index": tcIndex,
					"id":    callID,
					"type":  "function",
					"function": map[string]interface{}{
						"name":      name,
						"arguments": "",
					},
				}},
			}, nil)))

		for i := 0; i < len(args); i += sseArgsPiece {
			end := i + sseArgsPiece
			if end > len(args) {
				end = len(args)
			}
			writeEvent(w, chunkEnvelope(chunkID, created, model,
				deltaChoice(map[string]interface{}{
					"tool_calls": []interface{}{map[string]interface{}{
						"index": tcIndex,
						"function": map[string]interface{}{
							"arguments": args[i:end],
						},
					}},
				}, nil)))
		}
	}

	final := chunkEnvelope(chunkID, created, model,
		deltaChoice(map[string]interface{}{}, choice.FinishReason))
	final["usage"] = map[string]interface{}{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	}
	writeEvent(w, final)
	writeDone(w)
}

// streamError delivers a failure as a terminal SSE message so the
// agent's streaming loop completes instead of crashing mid-read
func streamError(w http.ResponseWriter, model, detail string) {
	chunk := chunkEnvelope("chatcmpl-err-"+uuid.NewString()[:8], time.Now().Unix(), model,
		deltaChoice(map[string]interface{}{
			"role":    "assistant",
			"content": "[LLM_ERROR] " + detail,
		}, "stop"))
	writeEvent(w, chunk)
	writeDone(w)
}
