package gateway

import (
	"strings"
	"sync"

	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/storage"
)

// Provider configuration keys
const (
	KeyOllamaURL    = "OLLAMA_URL"
	KeyGeminiKey    = "GEMINI_API_KEY"
	KeyAnthropicKey = "ANTHROPIC_API_KEY"
	KeyOpenAIKey    = "OPENAI_API_KEY"
)

var configKeys = []string{KeyOllamaURL, KeyGeminiKey, KeyAnthropicKey, KeyOpenAIKey}

// DefaultOllamaURL reaches the host daemon from inside compose
const DefaultOllamaURL = "http://host.docker.internal:11434"

// ConfigStore holds provider settings: a live map for the hot path,
// persisted rows so keys survive restarts. Values set at runtime win
// over environment seeds.
type ConfigStore struct {
	mu     sync.RWMutex
	values map[string]string
	store  storage.Store
}

// NewConfigStore seeds from the given environment values and overlays
// whatever is persisted
func NewConfigStore(store storage.Store, env map[string]string) *ConfigStore {
	cs := &ConfigStore{
		values: map[string]string{
			KeyOllamaURL:    DefaultOllamaURL,
			KeyGeminiKey:    "",
			KeyAnthropicKey: "",
			KeyOpenAIKey:    "",
		},
		store: store,
	}
	for key, value := range env {
		if value != "" {
			cs.values[key] = value
		}
	}

	if store != nil {
		persisted, err := store.ListLLMConfig()
		if err != nil {
			log.WithComponent("gateway").Warn().Err(err).Msg("Could not load persisted LLM config")
		}
		for key, value := range persisted {
			if value != "" && isConfigKey(key) {
				cs.values[key] = value
			}
		}
	}
	return cs
}

func isConfigKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the live value for a key
func (c *ConfigStore) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// Set updates the live value and persists it
func (c *ConfigStore) Set(key, value string) error {
	value = strings.TrimSpace(value)

	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()

	if c.store != nil {
		return c.store.SetLLMConfig(key, value)
	}
	return nil
}

// OllamaURL returns the configured Ollama base URL
func (c *ConfigStore) OllamaURL() string { return c.Get(KeyOllamaURL) }

// MaskKey renders a secret for display: first and last four characters
// for long keys, almost everything starred for short ones
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 2 {
		return strings.Repeat("*", len(key))
	}
	if len(key) <= 10 {
		return key[:2] + strings.Repeat("*", len(key)-2)
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
