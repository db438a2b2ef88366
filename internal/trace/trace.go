// Package trace ships stage runs and LLM generations to a Langfuse-compatible
// ingestion endpoint. A client without keys records nothing.
package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hsmt-backend/internal/shared/telemetry"
)

// Client posts ingestion batches.
type Client struct {
	baseURL    string
	publicKey  string
	secretKey  string
	httpClient *http.Client
	now        func() time.Time
}

// New returns a client; it is disabled when either key is empty.
func New(baseURL, publicKey, secretKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKey:  strings.TrimSpace(publicKey),
		secretKey:  strings.TrimSpace(secretKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Enabled reports whether events are shipped.
func (c *Client) Enabled() bool {
	return c != nil && c.publicKey != "" && c.secretKey != "" && c.baseURL != ""
}

type event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Body      map[string]any `json:"body"`
}

// Trace groups the generations of one stage run. A nil Trace is a no-op.
type Trace struct {
	client *Client
	id     string
	name   string
	hsID   string
	input  any
	start  time.Time

	mu     sync.Mutex
	events []event
}

// Start opens a trace for one stage run of hsID.
func (c *Client) Start(name, hsID string, input any) *Trace {
	if !c.Enabled() {
		return nil
	}
	return &Trace{
		client: c,
		id:     uuid.NewString(),
		name:   name,
		hsID:   hsID,
		input:  input,
		start:  c.now().UTC(),
	}
}

// ID returns the trace id, empty for a nil trace.
func (t *Trace) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

// Generation describes one model call.
type Generation struct {
	Name             string
	Model            string
	Input            any
	Output           any
	Start            time.Time
	End              time.Time
	PromptTokens     int
	CompletionTokens int
	Err              error
}

// Generation records a model call under the trace.
func (t *Trace) Generation(g Generation) {
	if t == nil {
		return
	}
	body := map[string]any{
		"id":        uuid.NewString(),
		"traceId":   t.id,
		"name":      g.Name,
		"model":     g.Model,
		"input":     g.Input,
		"output":    g.Output,
		"startTime": g.Start.UTC().Format(time.RFC3339Nano),
		"endTime":   g.End.UTC().Format(time.RFC3339Nano),
		"usage": map[string]int{
			"input":  g.PromptTokens,
			"output": g.CompletionTokens,
			"total":  g.PromptTokens + g.CompletionTokens,
		},
	}
	if g.Err != nil {
		body["level"] = "ERROR"
		body["statusMessage"] = g.Err.Error()
	}
	t.append("generation-create", body)
}

// End closes the trace and ships every buffered event. Failures are logged.
func (t *Trace) End(ctx context.Context, output any, err error) {
	if t == nil {
		return
	}
	body := map[string]any{
		"id":        t.id,
		"name":      t.name,
		"sessionId": t.hsID,
		"input":     t.input,
		"output":    output,
		"timestamp": t.start.Format(time.RFC3339Nano),
		"metadata": map[string]any{
			"hs_id":       t.hsID,
			"duration_ms": t.client.now().Sub(t.start).Milliseconds(),
		},
	}
	if err != nil {
		body["tags"] = []string{"error"}
		body["metadata"].(map[string]any)["error"] = err.Error()
	}
	t.mu.Lock()
	batch := append([]event{t.newEvent("trace-create", body)}, t.events...)
	t.events = nil
	t.mu.Unlock()

	if sendErr := t.client.send(ctx, batch); sendErr != nil {
		telemetry.Warn("trace.ingest.failed", map[string]any{
			"hs_id":    t.hsID,
			"trace_id": t.id,
			"events":   len(batch),
			"error":    sendErr,
		})
	}
}

func (t *Trace) append(kind string, body map[string]any) {
	t.mu.Lock()
	t.events = append(t.events, t.newEvent(kind, body))
	t.mu.Unlock()
}

func (t *Trace) newEvent(kind string, body map[string]any) event {
	return event{
		ID:        uuid.NewString(),
		Type:      kind,
		Timestamp: t.client.now().UTC().Format(time.RFC3339Nano),
		Body:      body,
	}
}

func (c *Client) send(ctx context.Context, batch []event) error {
	payload, err := json.Marshal(map[string]any{"batch": batch})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/public/ingestion", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.publicKey, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingestion http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type ctxKey struct{}

// WithTrace attaches t to ctx.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the trace attached to ctx, or nil.
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(ctxKey{}).(*Trace)
	return t
}
