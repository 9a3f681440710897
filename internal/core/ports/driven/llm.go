package driven

import "context"

// CompletionService is the narrow contract to the external language model.
// The engine treats it as an opaque request/response collaborator: no retry
// policy, no streaming, no provider-specific behaviour leaks into core.
type CompletionService interface {
	// Complete sends the assembled prompt and returns the completion text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// ModelName returns the name of the completion model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}

// CompletionRequest carries one prompt to the completion service.
type CompletionRequest struct {
	// System is the system preamble, possibly empty.
	System string

	// Messages are (role, text) pairs in conversation order. Roles are
	// "user" and "assistant".
	Messages []CompletionMessage

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens bounds the completion length.
	MaxTokens int
}

// CompletionMessage is one turn handed to the completion service.
type CompletionMessage struct {
	Role string
	Text string
}
