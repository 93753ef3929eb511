package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// callOllama forwards to the local daemon's /api/chat endpoint,
// non-streaming, and rewraps the answer in OpenAI shape
func (g *Gateway) callOllama(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	payload := map[string]interface{}{
		"model":    req.Model,
		"messages": wireMessages(req, nil),
		"stream":   false,
		"options": map[string]interface{}{
			"temperature": req.TemperatureOrDefault(),
			"num_predict": req.MaxTokensOrDefault(),
		},
	}
	if tools := req.Tools(); tools != nil {
		payload["tools"] = tools
	}

	data, err := g.postJSON(ctx, ProviderOllama, g.config.OllamaURL()+"/api/chat", payload, nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Message struct {
			Content   string                   `json:"content"`
			ToolCalls []map[string]interface{} `json:"tool_calls"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("ollama response: %w", err)
	}

	finishReason := "stop"
	if len(body.Message.ToolCalls) > 0 {
		finishReason = "tool_calls"
	}

	content := body.Message.Content
	return &ChatResponse{
		ID:      "chatcmpl-ollama",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Message: Message{
				Role:      "assistant",
				Content:   &content,
				ToolCalls: body.Message.ToolCalls,
			},
			FinishReason: finishReason,
		}},
		Usage: Usage{
			PromptTokens:     body.PromptEvalCount,
			CompletionTokens: body.EvalCount,
			TotalTokens:      body.PromptEvalCount + body.EvalCount,
		},
	}, nil
}

// postJSON posts a payload and returns the body, converting transport
// and non-2xx failures into ProviderError
func (g *Gateway) postJSON(ctx context.Context, provider, url string, payload interface{}, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Status: http.StatusServiceUnavailable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Status: http.StatusBadGateway, Detail: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(data)
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return nil, &ProviderError{Provider: provider, Status: resp.StatusCode, Detail: detail}
	}
	return data, nil
}

// getJSON fetches with the probe client; used for model listings
func (g *Gateway) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := g.probe.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ollamaModels lists the daemon's local models
func (g *Gateway) ollamaModels(ctx context.Context) ([]string, error) {
	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := g.getJSON(ctx, g.config.OllamaURL()+"/api/tags", &body); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
