package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/openclaw/openclaw/pkg/types"
)

// MaxInteractionsPerTask caps the per-task trace so a runaway agent
// cannot grow memory without bound
const MaxInteractionsPerTask = 100

// InteractionLog records every LLM turn per task. The step controller
// drains it after each container run and stores the turns with the
// iteration output.
type InteractionLog struct {
	mu    sync.Mutex
	turns map[string][]types.Interaction
}

// NewInteractionLog creates an empty log
func NewInteractionLog() *InteractionLog {
	return &InteractionLog{turns: make(map[string][]types.Interaction)}
}

// Record appends one turn. Ordinals are 1-based and gapless in
// insertion order; past the cap new turns are dropped.
func (l *InteractionLog) Record(taskID, provider string, streaming bool, request, response map[string]interface{}) {
	if taskID == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	turns := l.turns[taskID]
	if len(turns) >= MaxInteractionsPerTask {
		return
	}

	l.turns[taskID] = append(turns, types.Interaction{
		Ordinal:   len(turns) + 1,
		Timestamp: time.Now().Format("2006-01-02T15:04:05"),
		Provider:  provider,
		Streaming: streaming,
		Request:   request,
		Response:  response,
	})
}

// List returns the turns for a task with ordinal greater than since;
// since zero returns everything
func (l *InteractionLog) List(taskID string, since int) []types.Interaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	turns := l.turns[taskID]
	out := make([]types.Interaction, 0, len(turns))
	for _, turn := range turns {
		if turn.Ordinal > since {
			out = append(out, turn)
		}
	}
	return out
}

// Clear drops a task's turns and returns how many were removed
func (l *InteractionLog) Clear(taskID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := len(l.turns[taskID])
	delete(l.turns, taskID)
	return removed
}

const (
	maxSummaryContent = 2000
	maxSummaryArg     = 500
)

// summarizeRequest captures what went up: message shape and the tool
// results the agent fed back, which is where the execution trace lives
func summarizeRequest(req *ChatRequest) map[string]interface{} {
	roles := make([]string, 0, len(req.Messages))
	var toolResults []map[string]interface{}

	for _, m := range req.Messages {
		roles = append(roles, m.Role)
		if m.Role != "tool" {
			continue
		}
		callID, _ := m.Extra["tool_call_id"].(string)
		toolResults = append(toolResults, map[string]interface{}{
			"tool_call_id": callID,
			"content":      truncate(m.Text(), maxSummaryContent),
		})
	}

	summary := map[string]interface{}{
		"msg_count": len(req.Messages),
		"roles":     roles,
	}
	if len(toolResults) > 0 {
		summary["tool_results"] = toolResults
	}
	return summary
}

// summarizeResponse captures what came down: text, the tool calls the
// model decided on (arguments trimmed), and usage
func summarizeResponse(content string, toolCalls []map[string]interface{}, finishReason string, usage *Usage) map[string]interface{} {
	summary := map[string]interface{}{
		"finish_reason": finishReason,
	}
	if content != "" {
		summary["content"] = truncate(content, maxSummaryContent)
	}

	if len(toolCalls) > 0 {
		calls := make([]map[string]interface{}, 0, len(toolCalls))
		for _, tc := range toolCalls {
			fn, _ := tc["function"].(map[string]interface{})
			id, _ := tc["id"].(string)
			name, _ := fn["name"].(string)
			call := map[string]interface{}{
				"id":   id,
				"name": name,
			}
			call["arguments"] = summarizeArguments(fn["arguments"])
			calls = append(calls, call)
		}
		summary["tool_calls"] = calls
	}

	if usage != nil {
		summary["usage"] = map[string]interface{}{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		}
	}
	return summary
}

func summarizeArguments(raw interface{}) interface{} {
	argsStr, ok := raw.(string)
	if !ok {
		return raw
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
		return truncate(argsStr, maxSummaryArg)
	}

	out := make(map[string]interface{}, len(args))
	for key, value := range args {
		if s, ok := value.(string); ok && len(s) > maxSummaryArg {
			out[key] = truncate(s, maxSummaryArg) + "..."
			continue
		}
		out[key] = value
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
