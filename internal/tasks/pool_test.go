package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasksToCompletion(t *testing.T) {
	p := NewPool(2)
	okID, err := p.Submit("classify", func(ctx context.Context, r Reporter) error {
		r.Report(map[string]any{"files": 3})
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failID, _ := p.Submit("classify", func(ctx context.Context, r Reporter) error {
		return errors.New("no HSMT")
	})
	panicID, _ := p.Submit("classify", func(ctx context.Context, r Reporter) error {
		panic("boom")
	})
	p.Wait()

	info, ok := p.Status(okID)
	if !ok || info.State != Success || info.Meta["files"] != 3 {
		t.Fatalf("unexpected ok task %+v", info)
	}
	if info, _ := p.Status(failID); info.State != Failure || info.Err != "no HSMT" {
		t.Fatalf("unexpected failed task %+v", info)
	}
	if info, _ := p.Status(panicID); info.State != Failure {
		t.Fatalf("expected panic to fail task, got %+v", info)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak atomic.Int32
	for i := 0; i < 6; i++ {
		_, _ = p.Submit("split", func(ctx context.Context, r Reporter) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	p.Wait()
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestShutdownDrainsAndRejects(t *testing.T) {
	p := NewPool(1)
	var done atomic.Bool
	_, _ = p.Submit("slow", func(ctx context.Context, r Reporter) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	})
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !done.Load() {
		t.Fatalf("expected in-flight task to finish before shutdown returns")
	}
	if _, err := p.Submit("late", func(ctx context.Context, r Reporter) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestShutdownTimeoutCancelsTasks(t *testing.T) {
	p := NewPool(1)
	_, _ = p.Submit("stuck", func(ctx context.Context, r Reporter) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestReportProgressThroughContext(t *testing.T) {
	p := NewPool(1)
	reported := make(chan struct{})
	release := make(chan struct{})
	id, err := p.Submit("split", func(ctx context.Context, r Reporter) error {
		ReportProgress(WithReporter(ctx, r), map[string]any{"step": "ocr", "batch": 1, "batches": 3})
		close(reported)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-reported
	info, _ := p.Status(id)
	if info.State != Progress || info.Meta["batch"] != 1 || info.Meta["batches"] != 3 {
		t.Fatalf("mid-run task = %+v", info)
	}
	close(release)
	p.Wait()
	if info, _ := p.Status(id); info.State != Success || info.Meta["step"] != "ocr" {
		t.Fatalf("finished task = %+v", info)
	}

	// Without a reporter the call is a no-op.
	ReportProgress(context.Background(), map[string]any{"batch": 2})
	ReportProgress(WithReporter(context.Background(), nil), map[string]any{"batch": 2})
}
