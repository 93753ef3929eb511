package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/types"
)

const (
	geminiMaxRetries   = 3
	geminiRetryBackoff = 500 * time.Millisecond
)

// geminiPayload renders the request for Google's OpenAI-compat endpoint
// with cached thought signatures injected back into history
func (g *Gateway) geminiPayload(req *ChatRequest, stream bool) map[string]interface{} {
	payload := map[string]interface{}{
		"model":       req.Model,
		"messages":    wireMessages(req, g.sigs),
		"temperature": req.TemperatureOrDefault(),
		"max_tokens":  req.MaxTokensOrDefault(),
		"stream":      stream,
	}
	if stream {
		payload["stream_options"] = map[string]interface{}{"include_usage": true}
	}
	if tools := req.Tools(); tools != nil {
		payload["tools"] = tools
	}
	if tc, ok := req.Extra["tool_choice"]; ok {
		payload["tool_choice"] = tc
	}
	return payload
}

// callGemini forwards non-streaming. The compat endpoint answers in
// OpenAI shape already; the gateway caches thought signatures and
// normalizes finish_reason for choices that carry tool calls.
func (g *Gateway) callGemini(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	apiKey := g.config.Get(KeyGeminiKey)
	if apiKey == "" {
		return nil, notConfigured(ProviderGemini, KeyGeminiKey)
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	data, err := g.postJSON(ctx, ProviderGemini, g.geminiURL, g.geminiPayload(req, false), headers)
	if err != nil {
		return nil, err
	}
	return decodeOpenAIResponse(ProviderGemini, req.Model, data, true, g.sigs)
}

// streamGemini runs the backend SSE stream to completion and returns the
// data lines for replay to the client. Collecting before replaying is
// what makes retries possible: a MALFORMED_FUNCTION_CALL or non-200 can
// be retried wholesale because nothing has been sent downstream yet.
func (g *Gateway) streamGemini(ctx context.Context, req *ChatRequest) ([]string, error) {
	apiKey := g.config.Get(KeyGeminiKey)
	if apiKey == "" {
		return nil, notConfigured(ProviderGemini, KeyGeminiKey)
	}

	body, err := json.Marshal(g.geminiPayload(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshal gemini payload: %w", err)
	}

	logger := log.WithComponent("gateway")
	var lastErr error

	for attempt := 1; attempt <= geminiMaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(geminiRetryBackoff * time.Duration(attempt-1)):
			}
		}

		lines, malformed, err := g.streamGeminiOnce(ctx, body, apiKey)
		if err != nil {
			logger.Error().Err(err).Int("attempt", attempt).Msg("Gemini stream attempt failed")
			lastErr = err
			continue
		}
		if malformed {
			logger.Warn().Int("attempt", attempt).Msg("Gemini returned MALFORMED_FUNCTION_CALL, retrying")
			lastErr = fmt.Errorf("gemini: %w", types.ErrProviderMalformed)
			if attempt < geminiMaxRetries {
				continue
			}
			// Persisted across every attempt; replay what we have so
			// the agent at least sees the finish_reason
		}

		g.cacheSignaturesFromStream(lines)
		return lines, nil
	}
	return nil, lastErr
}

func (g *Gateway) streamGeminiOnce(ctx context.Context, body []byte, apiKey string) (lines []string, malformed bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.geminiURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, false, &ProviderError{Provider: ProviderGemini, Status: http.StatusServiceUnavailable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
		return nil, false, &ProviderError{Provider: ProviderGemini, Status: resp.StatusCode, Detail: string(errBody)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		lines = append(lines, line)
		if strings.Contains(line, "MALFORMED_FUNCTION_CALL") {
			malformed = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, &ProviderError{Provider: ProviderGemini, Status: http.StatusBadGateway, Detail: err.Error()}
	}
	return lines, malformed, nil
}

// cacheSignaturesFromStream side-parses the collected chunks for
// thought signatures attached to streamed tool calls
func (g *Gateway) cacheSignaturesFromStream(lines []string) {
	for _, line := range lines {
		if !strings.Contains(line, "thought_signature") || !strings.Contains(line, "tool_calls") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(payload) == "[DONE]" {
			continue
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					ToolCalls []map[string]interface{} `json:"tool_calls"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			for _, tc := range choice.Delta.ToolCalls {
				callID, _ := tc["id"].(string)
				g.sigs.put(callID, extractThoughtSignature(tc))
			}
		}
	}
}

// accumulateStream folds replayed SSE lines back into content, tool
// calls, finish reason and usage for the interaction trace
func accumulateStream(lines []string) (content string, toolCalls []map[string]interface{}, finishReason string, usage *Usage) {
	var pieces []string
	byIndex := make(map[int]map[string]interface{})
	var order []int

	for _, line := range lines {
		payload := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(payload) == "[DONE]" {
			continue
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content   *string                  `json:"content"`
					ToolCalls []map[string]interface{} `json:"tool_calls"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
			Usage *Usage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != nil {
				pieces = append(pieces, *choice.Delta.Content)
			}
			if choice.FinishReason != nil {
				finishReason = *choice.FinishReason
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if f, ok := tc["index"].(float64); ok {
					idx = int(f)
				}
				acc, seen := byIndex[idx]
				if !seen {
					acc = map[string]interface{}{
						"id":   "",
						"type": "function",
						"function": map[string]interface{}{
							"name":      "",
							"arguments": "",
						},
					}
					byIndex[idx] = acc
					order = append(order, idx)
				}
				fn := acc["function"].(map[string]interface{})
				if id, ok := tc["id"].(string); ok && id != "" {
					acc["id"] = id
				}
				if tcFn, ok := tc["function"].(map[string]interface{}); ok {
					if name, ok := tcFn["name"].(string); ok && name != "" {
						fn["name"] = name
					}
					if args, ok := tcFn["arguments"].(string); ok {
						fn["arguments"] = fn["arguments"].(string) + args
					}
				}
			}
		}
	}

	for _, idx := range order {
		toolCalls = append(toolCalls, byIndex[idx])
	}
	return strings.Join(pieces, ""), toolCalls, finishReason, usage
}
