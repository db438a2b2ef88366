package trace

import (
	"context"
	"time"

	"hsmt-backend/internal/llm"
)

type tracedLLM struct {
	base llm.Client
}

// WrapLLM records every completion as a generation of the trace found in the call context.
func WrapLLM(base llm.Client) llm.Client {
	if base == nil {
		return nil
	}
	return tracedLLM{base: base}
}

func (t tracedLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	resp, err := t.base.Complete(ctx, req)
	if tr := FromContext(ctx); tr != nil {
		input := make([]map[string]string, 0, len(req.Messages))
		for _, m := range req.Messages {
			input = append(input, map[string]string{"role": m.Role, "content": m.Content})
		}
		tr.Generation(Generation{
			Name:             req.Name,
			Model:            resp.Model,
			Input:            input,
			Output:           resp.Content,
			Start:            start,
			End:              time.Now(),
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			Err:              err,
		})
	}
	return resp, err
}
