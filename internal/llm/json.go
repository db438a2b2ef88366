package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hsmt-backend/internal/shared/metrics"
)

// Validator is implemented by output types that check their own schema.
type Validator interface {
	Validate() error
}

// Caller renders catalog prompts and decodes JSON replies.
type Caller struct {
	Client  Client
	Catalog *Catalog
}

// NewCaller uses the embedded catalog.
func NewCaller(client Client) (*Caller, error) {
	cat, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return &Caller{Client: client, Catalog: cat}, nil
}

// CompleteJSON renders prompt with data, asks for a JSON object and decodes it into out.
// Unparseable output gets one repair round trip before ErrInvalidOutput.
// If out implements Validator, a failed check yields ErrSchema.
func (c *Caller) CompleteJSON(ctx context.Context, prompt string, data any, out any) error {
	msgs, err := c.Catalog.Render(prompt, data)
	if err != nil {
		return err
	}
	metrics.IncLLMCall(prompt)
	resp, err := c.Client.Complete(ctx, Request{Name: prompt, Messages: msgs, JSON: true})
	if err != nil {
		return err
	}

	raw := StripFences(resp.Content)
	if decodeErr := json.Unmarshal([]byte(raw), out); decodeErr != nil {
		fixed, fixErr := c.fix(ctx, raw, decodeErr)
		if fixErr != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidOutput, prompt, fixErr)
		}
		if err := json.Unmarshal([]byte(fixed), out); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidOutput, prompt, err)
		}
	}

	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSchema, prompt, err)
		}
	}
	return nil
}

func (c *Caller) fix(ctx context.Context, raw string, cause error) (string, error) {
	msgs, err := c.Catalog.Render("fix_json", map[string]any{"Raw": raw, "Error": cause.Error()})
	if err != nil {
		return "", err
	}
	metrics.IncLLMCall("fix_json")
	resp, err := c.Client.Complete(ctx, Request{Name: "fix_json", Messages: msgs, JSON: true})
	if err != nil {
		return "", err
	}
	return StripFences(resp.Content), nil
}

// StripFences removes a surrounding ``` or ```json block and any prose before the first brace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexAny(s, "}]"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}
