package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// callAnthropic forwards to the Messages API, translating the OpenAI
// tool conventions both ways: system messages concatenate into the
// top-level system field, tool results become tool_result blocks,
// assistant tool_calls become tool_use blocks, and the response's
// tool_use blocks come back as OpenAI tool_calls.
func (g *Gateway) callAnthropic(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	apiKey := g.config.Get(KeyAnthropicKey)
	if apiKey == "" {
		return nil, notConfigured(ProviderAnthropic, KeyAnthropicKey)
	}

	var system strings.Builder
	messages := make([]map[string]interface{}, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch {
		case m.Role == "system":
			system.WriteString(m.Text())
			system.WriteString("\n")

		case m.Role == "tool":
			callID, _ := m.Extra["tool_call_id"].(string)
			messages = append(messages, map[string]interface{}{
				"role": "user",
				"content": []interface{}{map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": callID,
					"content":     m.Text(),
				}},
			})

		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			var blocks []interface{}
			if text := m.Text(); text != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": text})
			}
			for _, tc := range m.ToolCalls {
				fn, _ := tc["function"].(map[string]interface{})
				callID, _ := tc["id"].(string)
				name, _ := fn["name"].(string)

				var input map[string]interface{}
				if argsStr, ok := fn["arguments"].(string); ok {
					if err := json.Unmarshal([]byte(argsStr), &input); err != nil {
						input = map[string]interface{}{}
					}
				} else {
					input = map[string]interface{}{}
				}

				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    callID,
					"name":  name,
					"input": input,
				})
			}
			messages = append(messages, map[string]interface{}{"role": "assistant", "content": blocks})

		default:
			messages = append(messages, map[string]interface{}{"role": m.Role, "content": m.Text()})
		}
	}

	payload := map[string]interface{}{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  req.MaxTokensOrDefault(),
		"temperature": req.TemperatureOrDefault(),
	}
	if s := strings.TrimSpace(system.String()); s != "" {
		payload["system"] = s
	}
	if tools := translateToolsToAnthropic(req.Tools()); len(tools) > 0 {
		payload["tools"] = tools
	}

	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}
	data, err := g.postJSON(ctx, ProviderAnthropic, g.anthropicURL, payload, headers)
	if err != nil {
		return nil, err
	}

	var body struct {
		ID      string `json:"id"`
		Content []struct {
			Type  string                 `json:"type"`
			Text  string                 `json:"text"`
			ID    string                 `json:"id"`
			Name  string                 `json:"name"`
			Input map[string]interface{} `json:"input"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("anthropic response: %w", err)
	}

	var textParts []string
	var toolCalls []map[string]interface{}
	for _, block := range body.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   block.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      block.Name,
					"arguments": string(args),
				},
			})
		}
	}

	var content *string
	if len(textParts) > 0 {
		joined := strings.Join(textParts, " ")
		content = &joined
	}

	finishReason := "stop"
	if body.StopReason == "tool_use" {
		finishReason = "tool_calls"
	}

	id := body.ID
	if id == "" {
		id = "chatcmpl-anthropic"
	}
	return &ChatResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Message: Message{
				Role:      "assistant",
				Content:   content,
				ToolCalls: toolCalls,
			},
			FinishReason: finishReason,
		}},
		Usage: Usage{
			PromptTokens:     body.Usage.InputTokens,
			CompletionTokens: body.Usage.OutputTokens,
			TotalTokens:      body.Usage.InputTokens + body.Usage.OutputTokens,
		},
	}, nil
}

// translateToolsToAnthropic converts OpenAI function tools to the
// Messages API tool schema
func translateToolsToAnthropic(tools []interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, item := range tools {
		tool, ok := item.(map[string]interface{})
		if !ok || tool["type"] != "function" {
			continue
		}
		fn, _ := tool["function"].(map[string]interface{})
		name, _ := fn["name"].(string)
		description, _ := fn["description"].(string)
		schema, ok := fn["parameters"].(map[string]interface{})
		if !ok {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, map[string]interface{}{
			"name":         name,
			"description":  description,
			"input_schema": schema,
		})
	}
	return out
}
