package trace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hsmt-backend/internal/llm"
)

func TestDisabledClientIsNoop(t *testing.T) {
	c := New("https://cloud.langfuse.com", "", "")
	tr := c.Start("classify", "hs-1", nil)
	if tr != nil {
		t.Fatalf("expected nil trace for disabled client")
	}
	tr.Generation(Generation{Name: "x"})
	tr.End(context.Background(), nil, nil)
	if tr.ID() != "" {
		t.Fatalf("expected empty id")
	}
}

func TestEndShipsBatch(t *testing.T) {
	var got struct {
		Batch []event `json:"batch"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/public/ingestion" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "pk" || pass != "sk" {
			t.Errorf("unexpected basic auth %q %q", user, pass)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusMultiStatus)
	}))
	defer server.Close()

	c := New(server.URL, "pk", "sk")
	tr := c.Start("extraction", "hs-9", map[string]any{"files": 2})
	ctx := WithTrace(context.Background(), tr)

	base := llm.ClientFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "{}", Model: "gpt-4o-mini", Usage: llm.Usage{PromptTokens: 4, CompletionTokens: 1}}, nil
	})
	if _, err := WrapLLM(base).Complete(ctx, llm.Request{Name: "extract_hr", Messages: []llm.Message{{Role: "user", Content: "u"}}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	tr.End(ctx, "ok", errors.New("partial"))

	if len(got.Batch) != 2 {
		t.Fatalf("expected trace and generation events, got %d", len(got.Batch))
	}
	if got.Batch[0].Type != "trace-create" || got.Batch[1].Type != "generation-create" {
		t.Fatalf("unexpected event types %s, %s", got.Batch[0].Type, got.Batch[1].Type)
	}
	if got.Batch[1].Body["traceId"] != tr.ID() || got.Batch[1].Body["name"] != "extract_hr" {
		t.Fatalf("generation not linked to trace: %v", got.Batch[1].Body)
	}
	if got.Batch[0].Body["sessionId"] != "hs-9" {
		t.Fatalf("expected session id hs-9, got %v", got.Batch[0].Body["sessionId"])
	}
}

func TestEndSwallowsSinkErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := New(server.URL, "pk", "sk").Start("send_mail", "hs-2", nil)
	tr.End(context.Background(), nil, nil)
}
