package gateway

import "sync"

// thoughtSigCache maps tool_call IDs to Gemini thought signatures.
// Newer Gemini models attach a signature to each tool call and demand
// it back when the conversation history returns; the agent-side SDK
// strips unknown fields, so the gateway remembers them instead.
type thoughtSigCache struct {
	mu   sync.RWMutex
	sigs map[string]string
}

func newThoughtSigCache() *thoughtSigCache {
	return &thoughtSigCache{sigs: make(map[string]string)}
}

func (c *thoughtSigCache) put(callID, sig string) {
	if callID == "" || sig == "" {
		return
	}
	c.mu.Lock()
	c.sigs[callID] = sig
	c.mu.Unlock()
}

func (c *thoughtSigCache) get(callID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.sigs[callID]
	return sig, ok
}
