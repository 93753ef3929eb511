package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// callOpenAI forwards to the Chat Completions API. The formats match,
// so this is a pass-through with tool_calls preserved.
func (g *Gateway) callOpenAI(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	apiKey := g.config.Get(KeyOpenAIKey)
	if apiKey == "" {
		return nil, notConfigured(ProviderOpenAI, KeyOpenAIKey)
	}

	payload := map[string]interface{}{
		"model":       req.Model,
		"messages":    wireMessages(req, nil),
		"temperature": req.TemperatureOrDefault(),
		"max_tokens":  req.MaxTokensOrDefault(),
		"stream":      false,
	}
	if tools := req.Tools(); tools != nil {
		payload["tools"] = tools
	}
	if tc, ok := req.Extra["tool_choice"]; ok {
		payload["tool_choice"] = tc
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	data, err := g.postJSON(ctx, ProviderOpenAI, g.openaiURL, payload, headers)
	if err != nil {
		return nil, err
	}
	return decodeOpenAIResponse(ProviderOpenAI, req.Model, data, false, nil)
}

// decodeOpenAIResponse parses an OpenAI-shape completion body. When
// normalizeToolFinish is set, a choice carrying tool_calls is forced to
// finish_reason tool_calls; Gemini's compat endpoint sometimes reports
// stop, and OpenAI clients skip the calls when it does.
func decodeOpenAIResponse(provider, reqModel string, data []byte, normalizeToolFinish bool, sigs *thoughtSigCache) (*ChatResponse, error) {
	var body struct {
		ID      string `json:"id"`
		Created int64  `json:"created"`
		Choices []struct {
			Index   int `json:"index"`
			Message struct {
				Role         string                   `json:"role"`
				Content      *string                  `json:"content"`
				ToolCalls    []map[string]interface{} `json:"tool_calls"`
				FunctionCall interface{}              `json:"function_call"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%s response: %w", provider, err)
	}

	choices := make([]Choice, 0, len(body.Choices))
	for _, c := range body.Choices {
		finishReason := c.FinishReason
		if finishReason == "" {
			finishReason = "stop"
		}
		if normalizeToolFinish && len(c.Message.ToolCalls) > 0 && finishReason != "tool_calls" {
			finishReason = "tool_calls"
		}

		if sigs != nil {
			for _, tc := range c.Message.ToolCalls {
				callID, _ := tc["id"].(string)
				sigs.put(callID, extractThoughtSignature(tc))
			}
		}

		role := c.Message.Role
		if role == "" {
			role = "assistant"
		}
		choices = append(choices, Choice{
			Index: c.Index,
			Message: Message{
				Role:         role,
				Content:      c.Message.Content,
				ToolCalls:    c.Message.ToolCalls,
				FunctionCall: c.Message.FunctionCall,
			},
			FinishReason: finishReason,
		})
	}

	id := body.ID
	if id == "" {
		id = "chatcmpl-" + provider
	}
	created := body.Created
	if created == 0 {
		created = time.Now().Unix()
	}
	return &ChatResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   reqModel,
		Choices: choices,
		Usage:   body.Usage,
	}, nil
}

// extractThoughtSignature digs extra_content.google.thought_signature
// out of one tool call
func extractThoughtSignature(tc map[string]interface{}) string {
	extra, _ := tc["extra_content"].(map[string]interface{})
	google, _ := extra["google"].(map[string]interface{})
	sig, _ := google["thought_signature"].(string)
	return sig
}
