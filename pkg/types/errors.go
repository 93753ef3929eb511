package types

import "errors"

// Error taxonomy shared across packages. HTTP layers map these to status
// codes; activities return them to workflows which branch on class, not
// message text. Wrap with fmt.Errorf("...: %w", Err...) and test with
// errors.Is.
var (
	// ErrValidation indicates a malformed or unacceptable request
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a missing row, image, or resource
	ErrNotFound = errors.New("not found")

	// ErrStateConflict indicates an operation invalid for the current
	// lifecycle state (start on a non-created task, review of a decided
	// capability request)
	ErrStateConflict = errors.New("state conflict")

	// ErrRuntimeUnavailable indicates the container engine or store
	// cannot be reached
	ErrRuntimeUnavailable = errors.New("runtime unavailable")

	// ErrImageNotFound indicates an image tag that exists neither
	// locally nor in the registry
	ErrImageNotFound = errors.New("image not found")

	// ErrProvider indicates a non-2xx response from an LLM backend
	ErrProvider = errors.New("provider error")

	// ErrProviderMalformed indicates a provider response the gateway
	// cannot use, such as Gemini's MALFORMED_FUNCTION_CALL
	ErrProviderMalformed = errors.New("provider returned malformed response")

	// ErrTimeout indicates a deadline expired
	ErrTimeout = errors.New("timeout")

	// ErrNoFreePort indicates the deployment host-port range is exhausted
	ErrNoFreePort = errors.New("no free host port")

	// ErrInternal is the catch-all for unexpected failures
	ErrInternal = errors.New("internal error")
)
