package gateway

import "strings"

// Provider names
const (
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// DetectProvider picks the backend from the model name. Anything not
// recognizably hosted routes to the local Ollama daemon.
func DetectProvider(model string) string {
	lower := strings.ToLower(model)

	switch {
	case strings.HasPrefix(lower, "gemini"):
		return ProviderGemini
	case strings.HasPrefix(lower, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(lower, "gpt-"),
		strings.HasPrefix(lower, "o1-"),
		strings.HasPrefix(lower, "o3-"),
		strings.HasPrefix(lower, "o4-"):
		return ProviderOpenAI
	default:
		return ProviderOllama
	}
}
