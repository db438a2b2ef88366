package llm

import (
	"context"
	"errors"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Request is one completion call. Name identifies the prompt for logs,
// metrics and traces.
type Request struct {
	Name     string
	Messages []Message
	JSON     bool
}

// Usage reports token counts when the provider returns them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model output.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Client abstracts chat-completion providers.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// VisionClient transcribes an image with a prompt.
type VisionClient interface {
	Transcribe(ctx context.Context, prompt string, png []byte) (string, error)
}

var (
	// ErrInvalidOutput marks output that is not valid JSON after a repair attempt.
	ErrInvalidOutput = errors.New("llm output is not valid JSON")
	// ErrSchema marks JSON that does not satisfy the declared schema.
	ErrSchema = errors.New("llm output violates schema")
	// ErrNotConfigured is returned by the placeholder client.
	ErrNotConfigured = errors.New("llm provider not configured")
)

// PlaceholderClient is used when no provider is configured.
type PlaceholderClient struct{}

// Complete returns ErrNotConfigured.
func (PlaceholderClient) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{}, ErrNotConfigured
}

// Transcribe returns ErrNotConfigured.
func (PlaceholderClient) Transcribe(ctx context.Context, prompt string, png []byte) (string, error) {
	return "", ErrNotConfigured
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
