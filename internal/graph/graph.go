// Package graph runs a small DAG of named steps over shared state.
// Steps run layer by layer; steps in one layer run concurrently and the
// next layer starts only when the whole layer has finished.
package graph

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hsmt-backend/internal/shared/telemetry"
)

// StepFunc is one node body. A returned error is recorded, not propagated.
type StepFunc[S any] func(ctx context.Context, state S) error

// NodeError records one failed node.
type NodeError struct {
	Node string
	Err  error
}

func (e NodeError) Error() string { return e.Node + ": " + e.Err.Error() }

// Report summarizes a run.
type Report struct {
	Order    []string
	Errors   []NodeError
	Duration map[string]time.Duration
}

// Failed reports whether node recorded an error.
func (r *Report) Failed(node string) bool {
	for _, e := range r.Errors {
		if e.Node == node {
			return true
		}
	}
	return false
}

type node[S any] struct {
	name  string
	deps  []string
	run   StepFunc[S]
	layer int
}

// Graph is built once and may be run many times.
type Graph[S any] struct {
	name  string
	nodes []*node[S]
	index map[string]*node[S]
	limit int
}

// New returns an empty graph.
func New[S any](name string) *Graph[S] {
	return &Graph[S]{name: name, index: map[string]*node[S]{}}
}

// SetLimit bounds concurrent steps within a layer. Zero means unbounded.
func (g *Graph[S]) SetLimit(n int) *Graph[S] {
	g.limit = n
	return g
}

// Add registers a step. Dependencies must already be registered, so the graph
// cannot contain cycles.
func (g *Graph[S]) Add(name string, run StepFunc[S], deps ...string) error {
	if _, dup := g.index[name]; dup {
		return fmt.Errorf("graph %s: duplicate node %q", g.name, name)
	}
	layer := 0
	for _, d := range deps {
		dep, ok := g.index[d]
		if !ok {
			return fmt.Errorf("graph %s: node %q depends on unknown %q", g.name, name, d)
		}
		layer = max(layer, dep.layer+1)
	}
	n := &node[S]{name: name, deps: deps, run: run, layer: layer}
	g.nodes = append(g.nodes, n)
	g.index[name] = n
	return nil
}

// MustAdd is Add for static wiring.
func (g *Graph[S]) MustAdd(name string, run StepFunc[S], deps ...string) *Graph[S] {
	if err := g.Add(name, run, deps...); err != nil {
		panic(err)
	}
	return g
}

// Layers returns node names grouped by execution layer.
func (g *Graph[S]) Layers() [][]string {
	var layers [][]string
	for _, n := range g.nodes {
		for len(layers) <= n.layer {
			layers = append(layers, nil)
		}
		layers[n.layer] = append(layers[n.layer], n.name)
	}
	return layers
}

// Run executes every node once. It returns an error only when ctx ends;
// node failures are collected in the report.
func (g *Graph[S]) Run(ctx context.Context, state S) (*Report, error) {
	report := &Report{Duration: map[string]time.Duration{}}
	var mu sync.Mutex

	for _, layer := range g.Layers() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var eg errgroup.Group
		if g.limit > 0 {
			eg.SetLimit(g.limit)
		}
		for _, name := range layer {
			n := g.index[name]
			eg.Go(func() error {
				start := time.Now()
				err := safeRun(ctx, n, state)
				elapsed := time.Since(start)

				mu.Lock()
				report.Order = append(report.Order, n.name)
				report.Duration[n.name] = elapsed
				if err != nil {
					report.Errors = append(report.Errors, NodeError{Node: n.name, Err: err})
				}
				mu.Unlock()

				if err != nil {
					telemetry.Warn("graph.node.failed", map[string]any{
						"graph": g.name,
						"node":  n.name,
						"error": err,
					})
				}
				return nil
			})
		}
		_ = eg.Wait()
	}
	return report, ctx.Err()
}

func safeRun[S any](ctx context.Context, n *node[S], state S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return n.run(ctx, state)
}
