package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openclaw/openclaw/pkg/log"
	"github.com/openclaw/openclaw/pkg/metrics"
)

// Model catalogs advertised for hosted providers. Ollama's list is live.
var (
	geminiModels = []string{
		"gemini-2.0-flash-exp", "gemini-1.5-pro", "gemini-1.5-flash",
		"gemini-3-flash-preview", "gemini-flash-latest",
		"gemini-flash-lite-latest", "gemini-2.5-flash-lite",
	}
	anthropicModels = []string{
		"claude-sonnet-4-20250514", "claude-opus-4-20250514", "claude-3-5-haiku-20241022",
	}
	openaiModels = []string{"gpt-4o", "gpt-4o-mini", "o1-preview"}
)

// Register mounts the gateway surface on a router group, typically
// /api/llm on the control-plane server
func (g *Gateway) Register(r gin.IRouter) {
	r.POST("/v1/chat/completions", g.handleChatCompletions)
	r.POST("/chat", g.handleLegacyChat)

	r.GET("/interactions/:task_id", g.handleGetInteractions)
	r.DELETE("/interactions/:task_id", g.handleClearInteractions)

	r.GET("/health", g.handleHealth)
	r.GET("/providers", g.handleProviders)
	r.GET("/models", g.handleModels)
	r.GET("/config", g.handleGetConfig)
	r.POST("/config", g.handleUpdateConfig)
}

// taskIDFromAuth pulls the task identity out of Bearer task:<id>
func taskIDFromAuth(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer task:") {
		return strings.TrimPrefix(auth, "Bearer task:")
	}
	return ""
}

func (g *Gateway) dispatch(ctx context.Context, provider string, req *ChatRequest) (*ChatResponse, error) {
	switch provider {
	case ProviderGemini:
		return g.callGemini(ctx, req)
	case ProviderAnthropic:
		return g.callAnthropic(ctx, req)
	case ProviderOpenAI:
		return g.callOpenAI(ctx, req)
	default:
		return g.callOllama(ctx, req)
	}
}

func (g *Gateway) handleChatCompletions(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model and messages are required"})
		return
	}

	taskID := taskIDFromAuth(c)
	provider := DetectProvider(req.Model)
	timer := metrics.NewTimer()

	logger := log.WithComponent("gateway")
	logger.Info().
		Str("model", req.Model).
		Str("provider", provider).
		Int("messages", len(req.Messages)).
		Bool("stream", req.WantStream()).
		Msg("Chat completion request")

	if req.WantStream() {
		g.streamResponse(c, provider, taskID, &req)
		metrics.LLMRequestsTotal.WithLabelValues(provider, "stream").Inc()
		timer.ObserveDurationVec(metrics.LLMRequestDuration, provider)
		return
	}

	resp, err := g.dispatch(c.Request.Context(), provider, &req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(provider, "error").Inc()
		g.writeProviderError(c, err)
		return
	}

	g.recordCompletion(taskID, provider, &req, resp, false)
	metrics.LLMRequestsTotal.WithLabelValues(provider, "ok").Inc()
	timer.ObserveDurationVec(metrics.LLMRequestDuration, provider)
	c.JSON(http.StatusOK, resp)
}

// streamResponse handles the SSE path. Gemini streams pass through as
// collected; everything else is called whole and replayed as chunks.
func (g *Gateway) streamResponse(c *gin.Context, provider, taskID string, req *ChatRequest) {
	metrics.SSEStreamsTotal.WithLabelValues(provider).Inc()
	sseHeaders(c.Writer)

	if provider == ProviderGemini {
		lines, err := g.streamGemini(c.Request.Context(), req)
		if err != nil {
			streamError(c.Writer, req.Model, err.Error())
			return
		}
		// The backend's own [DONE] is dropped so the stream carries
		// exactly one terminal sentinel
		for _, line := range lines {
			if strings.TrimSpace(strings.TrimPrefix(line, "data: ")) == "[DONE]" {
				continue
			}
			writeRaw(c.Writer, line)
		}
		writeDone(c.Writer)

		content, toolCalls, finishReason, usage := accumulateStream(lines)
		if taskID != "" {
			g.trace.Record(taskID, provider, true,
				summarizeRequest(req),
				summarizeResponse(content, toolCalls, finishReason, usage))
		}
		return
	}

	resp, err := g.dispatch(c.Request.Context(), provider, req)
	if err != nil {
		streamError(c.Writer, req.Model, err.Error())
		return
	}
	g.recordCompletion(taskID, provider, req, resp, true)
	streamCompletion(c.Writer, resp, req.Model)
}

func (g *Gateway) recordCompletion(taskID, provider string, req *ChatRequest, resp *ChatResponse, streaming bool) {
	if taskID == "" {
		return
	}
	msg := resp.FirstMessage()
	if msg == nil {
		return
	}
	finishReason := resp.Choices[0].FinishReason
	usage := resp.Usage
	g.trace.Record(taskID, provider, streaming,
		summarizeRequest(req),
		summarizeResponse(msg.Text(), msg.ToolCalls, finishReason, &usage))
}

func (g *Gateway) writeProviderError(c *gin.Context, err error) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		c.JSON(perr.Status, gin.H{"error": perr.Error()})
		return
	}
	log.WithComponent("gateway").Error().Err(err).Msg("Chat completion failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (g *Gateway) handleGetInteractions(c *gin.Context) {
	taskID := c.Param("task_id")
	since := 0
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an integer"})
			return
		}
		since = parsed
	}

	interactions := g.trace.List(taskID, since)
	c.JSON(http.StatusOK, gin.H{
		"task_id":      taskID,
		"count":        len(interactions),
		"interactions": interactions,
	})
}

func (g *Gateway) handleClearInteractions(c *gin.Context) {
	taskID := c.Param("task_id")
	c.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"cleared": g.trace.Clear(taskID),
	})
}

func (g *Gateway) handleHealth(c *gin.Context) {
	status := make(map[string]interface{})

	if models, err := g.ollamaModels(c.Request.Context()); err == nil {
		status[ProviderOllama] = gin.H{"status": "healthy", "url": g.config.OllamaURL(), "models": models}
	} else {
		status[ProviderOllama] = gin.H{"status": "unhealthy", "error": err.Error()}
	}

	configured := func(key string) string {
		if g.config.Get(key) != "" {
			return "configured"
		}
		return "not_configured"
	}
	status[ProviderGemini] = gin.H{"status": configured(KeyGeminiKey), "models": geminiModels}
	status[ProviderAnthropic] = gin.H{"status": configured(KeyAnthropicKey), "models": anthropicModels}
	status[ProviderOpenAI] = gin.H{"status": configured(KeyOpenAIKey), "models": openaiModels}

	c.JSON(http.StatusOK, gin.H{"providers": status})
}

func (g *Gateway) handleProviders(c *gin.Context) {
	ollamaModels, _ := g.ollamaModels(c.Request.Context())

	providers := []gin.H{
		{
			"name": ProviderOllama, "type": ProviderOllama,
			"url":       g.config.OllamaURL(),
			"available": len(ollamaModels) > 0,
			"models":    ollamaModels,
		},
		{
			"name": ProviderGemini, "type": ProviderGemini,
			"available": g.config.Get(KeyGeminiKey) != "",
			"models":    geminiModels,
		},
		{
			"name": ProviderAnthropic, "type": ProviderAnthropic,
			"available": g.config.Get(KeyAnthropicKey) != "",
			"models":    anthropicModels,
		},
		{
			"name": ProviderOpenAI, "type": ProviderOpenAI,
			"available": g.config.Get(KeyOpenAIKey) != "",
			"models":    openaiModels,
		},
	}

	defaultProvider := ProviderOllama
	for _, p := range providers {
		if available, _ := p["available"].(bool); available {
			defaultProvider, _ = p["name"].(string)
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"providers": providers, "default_provider": defaultProvider})
}

func (g *Gateway) handleModels(c *gin.Context) {
	var models []gin.H

	if ollama, err := g.ollamaModels(c.Request.Context()); err == nil {
		for _, name := range ollama {
			models = append(models, gin.H{"id": name, "provider": ProviderOllama})
		}
	}
	if g.config.Get(KeyGeminiKey) != "" {
		for _, name := range geminiModels {
			models = append(models, gin.H{"id": name, "provider": ProviderGemini})
		}
	}
	if g.config.Get(KeyAnthropicKey) != "" {
		for _, name := range anthropicModels {
			models = append(models, gin.H{"id": name, "provider": ProviderAnthropic})
		}
	}
	if g.config.Get(KeyOpenAIKey) != "" {
		for _, name := range openaiModels {
			models = append(models, gin.H{"id": name, "provider": ProviderOpenAI})
		}
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (g *Gateway) configView() gin.H {
	return gin.H{
		"ollama_url":           g.config.OllamaURL(),
		"gemini_api_key":       MaskKey(g.config.Get(KeyGeminiKey)),
		"anthropic_api_key":    MaskKey(g.config.Get(KeyAnthropicKey)),
		"openai_api_key":       MaskKey(g.config.Get(KeyOpenAIKey)),
		"gemini_configured":    g.config.Get(KeyGeminiKey) != "",
		"anthropic_configured": g.config.Get(KeyAnthropicKey) != "",
		"openai_configured":    g.config.Get(KeyOpenAIKey) != "",
	}
}

func (g *Gateway) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, g.configView())
}

type configUpdate struct {
	OllamaURL       *string `json:"ollama_url"`
	GeminiAPIKey    *string `json:"gemini_api_key"`
	AnthropicAPIKey *string `json:"anthropic_api_key"`
	OpenAIAPIKey    *string `json:"openai_api_key"`
}

func (g *Gateway) handleUpdateConfig(c *gin.Context) {
	var update configUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var changes []string
	apply := func(key string, value *string, allowEmpty bool) {
		if value == nil {
			return
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" && !allowEmpty {
			return
		}
		if err := g.config.Set(key, trimmed); err != nil {
			log.WithComponent("gateway").Error().Err(err).Str("key", key).Msg("Failed to persist config")
		}
		state := "cleared"
		if trimmed != "" {
			state = "set"
		}
		changes = append(changes, key+" "+state)
	}

	apply(KeyOllamaURL, update.OllamaURL, false)
	apply(KeyGeminiKey, update.GeminiAPIKey, true)
	apply(KeyAnthropicKey, update.AnthropicAPIKey, true)
	apply(KeyOpenAIKey, update.OpenAIAPIKey, true)

	if len(changes) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "no_changes", "message": "No fields provided"})
		return
	}

	log.WithComponent("gateway").Info().Strs("changes", changes).Msg("LLM config updated")
	c.JSON(http.StatusOK, gin.H{
		"status":  "updated",
		"changes": changes,
		"config":  g.configView(),
	})
}

type legacyChatRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Model  string `json:"model"`
}

// handleLegacyChat keeps the original single-prompt endpoint alive
func (g *Gateway) handleLegacyChat(c *gin.Context) {
	var legacy legacyChatRequest
	if err := c.ShouldBindJSON(&legacy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if legacy.Model == "" {
		legacy.Model = "gemma3:4b"
	}

	req := &ChatRequest{
		Model:    legacy.Model,
		Messages: []Message{NewTextMessage("user", legacy.Prompt)},
	}
	resp, err := g.dispatch(c.Request.Context(), DetectProvider(req.Model), req)
	if err != nil {
		g.writeProviderError(c, err)
		return
	}

	response := ""
	if msg := resp.FirstMessage(); msg != nil {
		response = msg.Text()
	}
	c.JSON(http.StatusOK, gin.H{
		"model":    resp.Model,
		"response": response,
		"done":     true,
	})
}
