/*
Package api is the control plane's HTTP surface. It binds the manager's
business logic to REST routes under /api, mounts the LLM gateway under
/api/llm so agents reach every provider through one origin, and serves
/health, /ready and /metrics.

The layer stays deliberately thin: handlers decode, call one manager
method, and encode. Status codes come from the shared error taxonomy
(not found 404, validation 400, state conflict 409, provider or runtime
unavailable 503), so the workflow activities calling back into this API
can branch on status alone.
*/
package api
