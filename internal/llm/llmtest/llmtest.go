// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"hsmt-backend/internal/llm"
)

// Reply produces the content for one request.
type Reply func(req llm.Request) (string, error)

// Static always returns content.
func Static(content string) Reply {
	return func(llm.Request) (string, error) { return content, nil }
}

// Fail always returns err.
func Fail(err error) Reply {
	return func(llm.Request) (string, error) { return "", err }
}

// Sequence returns contents in order, repeating the last one.
func Sequence(contents ...string) Reply {
	var mu sync.Mutex
	i := 0
	return func(llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := contents[min(i, len(contents)-1)]
		i++
		return c, nil
	}
}

// Router answers by prompt name and records every request.
type Router struct {
	mu      sync.Mutex
	replies map[string]Reply
	calls   []llm.Request
}

// NewRouter returns a router with the given replies.
func NewRouter(replies map[string]Reply) *Router {
	if replies == nil {
		replies = map[string]Reply{}
	}
	return &Router{replies: replies}
}

// Set replaces the reply for name.
func (r *Router) Set(name string, reply Reply) {
	r.mu.Lock()
	r.replies[name] = reply
	r.mu.Unlock()
}

func (r *Router) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	reply, ok := r.replies[req.Name]
	r.mu.Unlock()
	if !ok {
		return llm.Response{}, fmt.Errorf("llmtest: no reply for %q", req.Name)
	}
	content, err := reply(req)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Content: content, Model: "llmtest"}, nil
}

// Calls returns the requests made for name, or all requests when name is empty.
func (r *Router) Calls(name string) []llm.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []llm.Request
	for _, c := range r.calls {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// UserText returns the last message content of req.
func UserText(req llm.Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

// Contains reports whether any request for name had text in its user message.
func (r *Router) Contains(name, text string) bool {
	for _, c := range r.Calls(name) {
		if strings.Contains(UserText(c), text) {
			return true
		}
	}
	return false
}

// Vision is a scripted llm.VisionClient.
type Vision struct {
	mu    sync.Mutex
	Text  string
	Err   error
	Count int
}

func (v *Vision) Transcribe(ctx context.Context, prompt string, png []byte) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Count++
	return v.Text, v.Err
}

var (
	_ llm.Client       = (*Router)(nil)
	_ llm.VisionClient = (*Vision)(nil)
)
