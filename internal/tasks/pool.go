// Package tasks runs stage work in the background on a bounded pool so the
// consumer can acknowledge early. Each task reports a named state.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hsmt-backend/internal/shared/telemetry"
)

// State is the lifecycle of a task.
type State string

const (
	Pending  State = "PENDING"
	Started  State = "STARTED"
	Progress State = "PROGRESS"
	Success  State = "SUCCESS"
	Failure  State = "FAILURE"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("task pool closed")

const maxFinished = 512

// Info is a snapshot of one task.
type Info struct {
	ID       string
	Name     string
	State    State
	Meta     map[string]any
	Err      string
	Created  time.Time
	Updated  time.Time
	finished bool
}

// Reporter lets a task publish progress metadata.
type Reporter interface {
	Report(meta map[string]any)
}

type reporterKey struct{}

// WithReporter returns ctx carrying r, for code that only sees a context.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	if r == nil {
		return ctx
	}
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReportProgress publishes meta on the task running under ctx, if any.
func ReportProgress(ctx context.Context, meta map[string]any) {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok {
		r.Report(meta)
	}
}

// Func is the body of a task.
type Func func(ctx context.Context, r Reporter) error

// Pool runs at most Concurrency tasks at a time.
type Pool struct {
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	tasks  map[string]*Info
	now    func() time.Time
}

// NewPool returns a pool with the given concurrency (minimum 1).
func NewPool(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    make(chan struct{}, concurrency),
		ctx:    ctx,
		cancel: cancel,
		tasks:  map[string]*Info{},
		now:    time.Now,
	}
}

// Submit queues fn and returns its task id.
func (p *Pool) Submit(name string, fn Func) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrClosed
	}
	id := uuid.NewString()
	now := p.now()
	p.tasks[id] = &Info{ID: id, Name: name, State: Pending, Created: now, Updated: now}
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(id, name, fn)
	return id, nil
}

func (p *Pool) run(id, name string, fn Func) {
	defer p.wg.Done()
	select {
	case p.sem <- struct{}{}:
	case <-p.ctx.Done():
		p.finish(id, p.ctx.Err())
		return
	}
	defer func() { <-p.sem }()

	p.set(id, Started, nil)
	telemetry.Info("task.started", map[string]any{"task_id": id, "task": name})
	err := safeCall(p.ctx, fn, reporter{pool: p, id: id})
	p.finish(id, err)
	if err != nil {
		telemetry.Error("task.failed", map[string]any{"task_id": id, "task": name, "error": err})
		return
	}
	telemetry.Info("task.succeeded", map[string]any{"task_id": id, "task": name})
}

func safeCall(ctx context.Context, fn Func, r Reporter) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return fn(ctx, r)
}

type reporter struct {
	pool *Pool
	id   string
}

func (r reporter) Report(meta map[string]any) { r.pool.set(r.id, Progress, meta) }

func (p *Pool) set(id string, state State, meta map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.tasks[id]
	if !ok {
		return
	}
	info.State = state
	info.Updated = p.now()
	if meta != nil {
		info.Meta = telemetry.Merge(info.Meta, meta)
	}
}

func (p *Pool) finish(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.tasks[id]
	if !ok {
		return
	}
	info.State = Success
	if err != nil {
		info.State = Failure
		info.Err = err.Error()
	}
	info.Updated = p.now()
	info.finished = true
	p.pruneLocked()
}

func (p *Pool) pruneLocked() {
	var done []*Info
	for _, info := range p.tasks {
		if info.finished {
			done = append(done, info)
		}
	}
	if len(done) <= maxFinished {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Updated.Before(done[j].Updated) })
	for _, info := range done[:len(done)-maxFinished] {
		delete(p.tasks, info.ID)
	}
}

// Status returns a copy of the task's current info.
func (p *Pool) Status(id string) (Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.tasks[id]
	if !ok {
		return Info{}, false
	}
	out := *info
	out.Meta = telemetry.Merge(info.Meta, nil)
	return out, true
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() { p.wg.Wait() }

// Shutdown stops accepting tasks and drains in-flight ones. When ctx ends
// first, running tasks are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
