package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one chat message in OpenAI wire format. Clients send fields
// this gateway has no opinion about (tool_call_id, name, cache hints,
// vendor extensions); everything unrecognized is kept in Extra and
// round-trips to the provider untouched. Losing unknown fields breaks
// providers, so the std struct-tag decoding is not used here.
type Message struct {
	Role         string
	Content      *string
	ToolCalls    []map[string]interface{}
	FunctionCall interface{}
	Refusal      *string

	Extra map[string]interface{}
}

// NewTextMessage builds a plain text message
func NewTextMessage(role, content string) Message {
	return Message{Role: role, Content: &content}
}

// Text returns the content or "" when null
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// UnmarshalJSON keeps unknown fields and flattens multi-part content
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		switch key {
		case "role":
			m.Role, _ = value.(string)
		case "content":
			m.Content = flattenContent(value)
		case "tool_calls":
			m.ToolCalls = toToolCalls(value)
		case "function_call":
			m.FunctionCall = value
		case "refusal":
			if s, ok := value.(string); ok {
				m.Refusal = &s
			}
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]interface{})
			}
			m.Extra[key] = value
		}
	}
	return nil
}

// MarshalJSON emits known fields plus everything carried in Extra.
// Content serializes as null when absent; that is valid OpenAI format
// for assistant messages that only carry tool_calls.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+5)
	for key, value := range m.Extra {
		out[key] = value
	}
	out["role"] = m.Role
	out["content"] = m.Content
	if len(m.ToolCalls) > 0 {
		out["tool_calls"] = m.ToolCalls
	}
	if m.FunctionCall != nil {
		out["function_call"] = m.FunctionCall
	}
	if m.Refusal != nil {
		out["refusal"] = m.Refusal
	}
	return json.Marshal(out)
}

// flattenContent accepts the OpenAI multi-part form and reduces it to a
// plain string; null stays null
func flattenContent(value interface{}) *string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return &v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch part := item.(type) {
			case map[string]interface{}:
				if part["type"] == "text" {
					if text, ok := part["text"].(string); ok {
						parts = append(parts, text)
						continue
					}
				}
				parts = append(parts, fmt.Sprint(part))
			case string:
				parts = append(parts, part)
			}
		}
		joined := strings.Join(parts, "\n")
		return &joined
	default:
		s := fmt.Sprint(v)
		return &s
	}
}

func toToolCalls(value interface{}) []map[string]interface{} {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	calls := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if call, ok := item.(map[string]interface{}); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// ChatRequest is an OpenAI-compatible chat completion request. As with
// Message, unknown top-level fields (tools, tool_choice, top_p, stop,
// response_format) ride along in Extra.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	Stream      bool

	Extra map[string]interface{}
}

// UnmarshalJSON keeps unknown fields
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		switch key {
		case "model":
			if err := json.Unmarshal(value, &r.Model); err != nil {
				return fmt.Errorf("model: %w", err)
			}
		case "messages":
			if err := json.Unmarshal(value, &r.Messages); err != nil {
				return fmt.Errorf("messages: %w", err)
			}
		case "temperature":
			if err := json.Unmarshal(value, &r.Temperature); err != nil {
				return fmt.Errorf("temperature: %w", err)
			}
		case "max_tokens":
			if err := json.Unmarshal(value, &r.MaxTokens); err != nil {
				return fmt.Errorf("max_tokens: %w", err)
			}
		case "stream":
			if err := json.Unmarshal(value, &r.Stream); err != nil {
				return fmt.Errorf("stream: %w", err)
			}
		default:
			var generic interface{}
			if err := json.Unmarshal(value, &generic); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if r.Extra == nil {
				r.Extra = make(map[string]interface{})
			}
			r.Extra[key] = generic
		}
	}
	return nil
}

// MarshalJSON emits the request in provider-ready form
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Extra)+5)
	for key, value := range r.Extra {
		out[key] = value
	}
	out["model"] = r.Model
	out["messages"] = r.Messages
	if r.Temperature != nil {
		out["temperature"] = r.Temperature
	}
	if r.MaxTokens != nil {
		out["max_tokens"] = r.MaxTokens
	}
	if r.Stream {
		out["stream"] = true
	}
	return json.Marshal(out)
}

// TemperatureOrDefault returns the request temperature or 0.7
func (r *ChatRequest) TemperatureOrDefault() float64 {
	if r.Temperature == nil {
		return 0.7
	}
	return *r.Temperature
}

// MaxTokensOrDefault returns the request token limit or 4096
func (r *ChatRequest) MaxTokensOrDefault() int {
	if r.MaxTokens == nil {
		return 4096
	}
	return *r.MaxTokens
}

// WantStream reports whether the client asked for SSE. Some SDKs put
// stream into the extension bag instead of the top-level field.
func (r *ChatRequest) WantStream() bool {
	if r.Stream {
		return true
	}
	v, ok := r.Extra["stream"].(bool)
	return ok && v
}

// Tools returns the pass-through tools array, if any
func (r *ChatRequest) Tools() []interface{} {
	tools, _ := r.Extra["tools"].([]interface{})
	return tools
}

// Usage is the OpenAI token accounting block
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion alternative
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is an OpenAI-compatible chat completion response
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// FirstMessage returns the message of choice zero, or nil
func (r *ChatResponse) FirstMessage() *Message {
	if len(r.Choices) == 0 {
		return nil
	}
	return &r.Choices[0].Message
}
