package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type state struct {
	mu  sync.Mutex
	log []string
}

func (s *state) add(v string) {
	s.mu.Lock()
	s.log = append(s.log, v)
	s.mu.Unlock()
}

func step(name string) StepFunc[*state] {
	return func(ctx context.Context, s *state) error {
		s.add(name)
		return nil
	}
}

func TestLayersFollowDependencies(t *testing.T) {
	g := New[*state]("test").
		MustAdd("prepare", step("prepare")).
		MustAdd("classify", step("classify"), "prepare").
		MustAdd("a", step("a"), "classify").
		MustAdd("b", step("b"), "classify").
		MustAdd("join", step("join"), "a", "b")

	layers := g.Layers()
	if len(layers) != 4 || len(layers[2]) != 2 {
		t.Fatalf("unexpected layers %v", layers)
	}

	s := &state{}
	report, err := g.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.log) != 5 || s.log[0] != "prepare" || s.log[1] != "classify" || s.log[4] != "join" {
		t.Fatalf("unexpected order %v", s.log)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors %v", report.Errors)
	}
}

func TestNodeFailureDoesNotStopGraph(t *testing.T) {
	boom := errors.New("model output invalid")
	g := New[*state]("test").
		MustAdd("a", func(ctx context.Context, s *state) error { return boom }).
		MustAdd("b", func(ctx context.Context, s *state) error { panic("bad") }).
		MustAdd("join", step("join"), "a", "b")

	s := &state{}
	report, err := g.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.log) != 1 || s.log[0] != "join" {
		t.Fatalf("expected join to run, got %v", s.log)
	}
	if !report.Failed("a") || !report.Failed("b") || report.Failed("join") {
		t.Fatalf("unexpected errors %v", report.Errors)
	}
}

func TestAddRejectsUnknownAndDuplicate(t *testing.T) {
	g := New[*state]("test")
	if err := g.Add("a", step("a"), "missing"); err == nil {
		t.Fatalf("expected unknown dependency error")
	}
	_ = g.Add("a", step("a"))
	if err := g.Add("a", step("a")); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New[*state]("test").
		MustAdd("a", func(ctx context.Context, s *state) error { cancel(); return nil }).
		MustAdd("b", step("b"), "a")

	s := &state{}
	if _, err := g.Run(ctx, s); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(s.log) != 0 {
		t.Fatalf("expected b not to run, got %v", s.log)
	}
}
