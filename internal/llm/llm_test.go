package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type scripted struct {
	replies []string
	errs    []error
	calls   []Request
}

func (s *scripted) Complete(ctx context.Context, req Request) (Response, error) {
	i := len(s.calls)
	s.calls = append(s.calls, req)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return Response{}, err
	}
	if i >= len(s.replies) {
		return Response{}, errors.New("no scripted reply")
	}
	return Response{Content: s.replies[i]}, nil
}

type finance struct {
	Requirements []struct {
		Requirement string `json:"requirement"`
	} `json:"requirements"`
}

func (f finance) Validate() error {
	for i, r := range f.Requirements {
		if strings.TrimSpace(r.Requirement) == "" {
			return fmt.Errorf("requirements[%d]: empty requirement", i)
		}
	}
	return nil
}

func TestDefaultCatalogRendersEveryPrompt(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	data := map[string]any{
		"Markdown": "md", "Raw": "{", "Error": "e", "A": "[]", "B": "[]",
		"Requirements": "r", "Transcript": "t", "Schema": "s",
	}
	for _, name := range []string{
		"fix_json", "ocr_page", "summary_hsmt", "extract_notice", "extract_finance",
		"extract_experience", "extract_hr", "extract_technology", "merge_hr",
		"sql_supervisor", "sql_expert", "sql_summarizer",
	} {
		msgs, err := cat.Render(name, data)
		if err != nil {
			t.Fatalf("Render(%s): %v", name, err)
		}
		if msgs[len(msgs)-1].Role != "user" || msgs[len(msgs)-1].Content == "" {
			t.Fatalf("%s: expected trailing user message", name)
		}
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	cat, err := ParseCatalog([]byte("p:\n  user: \"{{.Markdown}}\"\n"))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if _, err := cat.Render("p", map[string]any{}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := cat.Render("nope", nil); err == nil {
		t.Fatalf("expected unknown prompt error")
	}
}

func TestCompleteJSONStripsFences(t *testing.T) {
	client := &scripted{replies: []string{"```json\n{\"requirements\":[{\"requirement\":\"Doanh thu\"}]}\n```"}}
	caller, err := NewCaller(client)
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}
	var out finance
	if err := caller.CompleteJSON(context.Background(), "extract_finance", map[string]any{"Markdown": "x"}, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if len(out.Requirements) != 1 || out.Requirements[0].Requirement != "Doanh thu" {
		t.Fatalf("unexpected output %+v", out)
	}
	if !client.calls[0].JSON || client.calls[0].Name != "extract_finance" {
		t.Fatalf("unexpected request %+v", client.calls[0])
	}
}

func TestCompleteJSONRepairsOnce(t *testing.T) {
	client := &scripted{replies: []string{`{"requirements": [`, `{"requirements": []}`}}
	caller, _ := NewCaller(client)
	var out finance
	if err := caller.CompleteJSON(context.Background(), "extract_finance", map[string]any{"Markdown": "x"}, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if len(client.calls) != 2 || client.calls[1].Name != "fix_json" {
		t.Fatalf("expected a fix_json call, got %d calls", len(client.calls))
	}
}

func TestCompleteJSONInvalidAfterRepair(t *testing.T) {
	client := &scripted{replies: []string{"not json", "still not json"}}
	caller, _ := NewCaller(client)
	var out finance
	err := caller.CompleteJSON(context.Background(), "extract_finance", map[string]any{"Markdown": "x"}, &out)
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
}

func TestCompleteJSONSchemaViolation(t *testing.T) {
	client := &scripted{replies: []string{`{"requirements":[{"requirement":" "}]}`}}
	caller, _ := NewCaller(client)
	var out finance
	err := caller.CompleteJSON(context.Background(), "extract_finance", map[string]any{"Markdown": "x"}, &out)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestRetryOnceOnTransientError(t *testing.T) {
	client := &scripted{
		errs:    []error{errors.New("openai http status 502: bad gateway")},
		replies: []string{"", "{}"},
	}
	resp, err := WithRetry(client, "hs-1").Complete(context.Background(), Request{Name: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "{}" || len(client.calls) != 2 {
		t.Fatalf("expected retry, got %d calls", len(client.calls))
	}
}

func TestNoRetryOnPermanentError(t *testing.T) {
	client := &scripted{errs: []error{errors.New("openai http status 400: bad request")}}
	if _, err := WithRetry(client, "hs-1").Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error")
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(client.calls))
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                "{\"a\":1}",
		"```\n{\"a\":1}\n```":      "{\"a\":1}",
		"Here it is: {\"a\":1} ok": "{\"a\":1}",
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Fatalf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
