package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/openclaw/openclaw/pkg/storage"
	"github.com/openclaw/openclaw/pkg/types"
)

const (
	// Chat completions can run long against slow local models
	outboundTimeout = 300 * time.Second

	// Short timeout for health pings and model listings
	probeTimeout = 5 * time.Second
)

// Gateway multiplexes OpenAI-format chat completions across providers.
// Agents talk to it as if it were OpenAI; the model name decides where
// a request really goes.
type Gateway struct {
	config *ConfigStore
	sigs   *thoughtSigCache
	trace  *InteractionLog

	client *http.Client
	probe  *http.Client

	// Overridable for tests
	geminiURL    string
	anthropicURL string
	openaiURL    string
}

// New creates a gateway. The env map seeds provider config which
// persisted values then override.
func New(store storage.Store, env map[string]string) *Gateway {
	return &Gateway{
		config:       NewConfigStore(store, env),
		sigs:         newThoughtSigCache(),
		trace:        NewInteractionLog(),
		client:       &http.Client{Timeout: outboundTimeout},
		probe:        &http.Client{Timeout: probeTimeout},
		geminiURL:    "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
		anthropicURL: "https://api.anthropic.com/v1/messages",
		openaiURL:    "https://api.openai.com/v1/chat/completions",
	}
}

// Config exposes the provider configuration store
func (g *Gateway) Config() *ConfigStore {
	return g.config
}

// Interactions exposes the per-task trace
func (g *Gateway) Interactions() *InteractionLog {
	return g.trace
}

// ProviderError carries the HTTP status the gateway should surface for
// a backend failure
type ProviderError struct {
	Provider string
	Status   int
	Detail   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: HTTP %d: %s", e.Provider, e.Status, e.Detail)
}

func (e *ProviderError) Unwrap() error {
	return types.ErrProvider
}

func notConfigured(provider, key string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Status:   http.StatusServiceUnavailable,
		Detail:   key + " not configured",
	}
}

// messageToWire renders one message for a provider payload. When sigs is
// non-nil, cached Gemini thought signatures are re-injected into the
// tool calls that lost them on the way through the agent SDK.
func messageToWire(m Message, sigs *thoughtSigCache) map[string]interface{} {
	wire := map[string]interface{}{
		"role":    m.Role,
		"content": m.Content,
	}

	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]interface{}, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			if sigs == nil {
				calls = append(calls, tc)
				continue
			}
			callID, _ := tc["id"].(string)
			sig, ok := sigs.get(callID)
			if !ok {
				calls = append(calls, tc)
				continue
			}

			patched := make(map[string]interface{}, len(tc)+1)
			for k, v := range tc {
				patched[k] = v
			}
			extra, _ := patched["extra_content"].(map[string]interface{})
			if extra == nil {
				extra = make(map[string]interface{})
			}
			google, _ := extra["google"].(map[string]interface{})
			if google == nil {
				google = make(map[string]interface{})
			}
			google["thought_signature"] = sig
			extra["google"] = google
			patched["extra_content"] = extra
			calls = append(calls, patched)
		}
		wire["tool_calls"] = calls
	}

	if m.FunctionCall != nil {
		wire["function_call"] = m.FunctionCall
	}
	for key, value := range m.Extra {
		if _, taken := wire[key]; !taken {
			wire[key] = value
		}
	}
	return wire
}

// wireMessages renders the whole conversation
func wireMessages(req *ChatRequest, sigs *thoughtSigCache) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		out = append(out, messageToWire(m, sigs))
	}
	return out
}
