// Package gateway is the OpenAI-compatible LLM router. Agents speak the
// chat completions protocol to one endpoint; the model name picks the
// backend (Ollama, Gemini, Anthropic, or OpenAI) and the gateway
// translates request and response shapes where the backend differs.
//
// Responses are always re-streamed as SSE in OpenAI chunk format, no
// matter how the backend answered. Every exchange is traced into a
// per-task interaction ring that the control plane exposes for
// debugging and that agents drain between turns.
package gateway
