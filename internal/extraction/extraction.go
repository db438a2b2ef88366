// Package extraction turns the Markdown renditions of one document set into
// a proposal with its finance, experience, HR and technical requirements.
package extraction

import (
	"context"
	"errors"
	"time"

	"hsmt-backend/internal/graph"
	"hsmt-backend/internal/llm"
	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/telemetry"
)

// Node names.
const (
	NodePrepare    = "prepare_data"
	NodeClassify   = "classify"
	NodeSummary    = "summary_hsmt"
	NodeHR         = "extract_hr"
	NodeFinance    = "extract_finance"
	NodeExperience = "extract_experience"
	NodeTechnology = "extract_technology"
	NodeNotice     = "extract_notice_bid"
	NodePost       = "post_extraction"
)

var (
	// ErrNoInput is returned when none of the Markdown artifacts could be read.
	ErrNoInput = errors.New("no markdown input could be loaded")
	// ErrNothingExtracted is returned when every branch came back empty.
	ErrNothingExtracted = errors.New("extraction yielded nothing")
)

// Input identifies one extraction run.
type Input struct {
	HSID           string
	EmailContentID int64
	Files          []queue.MarkdownFile
}

// Result is what the driver needs to route the next stage.
type Result struct {
	ProposalID  int64
	HasFinance  bool
	HasMarkdown map[Source]bool
	Errors      []string
	Duration    time.Duration
}

// Extractor owns the graph and its collaborators.
type Extractor struct {
	Store         object.Store
	DefaultBucket string
	LLM           *llm.Caller
	Proposals     proposals.Repo
	AgentName     string
	AgentCode     string
	// MaxInputRunes bounds the Markdown handed to one prompt.
	MaxInputRunes int

	graph *graph.Graph[*State]
}

// New wires the extraction graph.
func New(store object.Store, bucket string, caller *llm.Caller, repo proposals.Repo) *Extractor {
	e := &Extractor{
		Store:         store,
		DefaultBucket: bucket,
		LLM:           caller,
		Proposals:     repo,
		MaxInputRunes: 150000,
	}
	e.graph = graph.New[*State]("extraction").
		MustAdd(NodePrepare, e.prepareData).
		MustAdd(NodeClassify, e.classify, NodePrepare).
		MustAdd(NodeSummary, track(NodeSummary, e.summary), NodeClassify).
		MustAdd(NodeHR, track(NodeHR, e.extractHR), NodeSummary).
		MustAdd(NodeFinance, track(NodeFinance, e.extractFinance), NodeSummary).
		MustAdd(NodeExperience, track(NodeExperience, e.extractExperience), NodeSummary).
		MustAdd(NodeTechnology, track(NodeTechnology, e.extractTechnology), NodeSummary).
		MustAdd(NodeNotice, track(NodeNotice, e.extractNotice), NodeSummary).
		MustAdd(NodePost, e.postExtraction, NodeHR, NodeFinance, NodeExperience, NodeTechnology, NodeNotice)
	return e
}

// track records a branch failure in the state so it travels with the result.
func track(name string, step graph.StepFunc[*State]) graph.StepFunc[*State] {
	return func(ctx context.Context, s *State) error {
		err := step(ctx, s)
		if err != nil {
			s.addError(name, err)
		}
		return err
	}
}

// Run executes the graph. Branch failures are logged and leave their slot
// empty; only prepare and post failures fail the run.
func (e *Extractor) Run(ctx context.Context, in Input) (Result, error) {
	start := time.Now()
	state := newState(in)
	report, err := e.graph.Run(ctx, state)
	res := Result{
		ProposalID:  state.ProposalID,
		HasFinance:  len(state.Finance) > 0,
		HasMarkdown: map[Source]bool{},
		Errors:      state.Errors(),
		Duration:    time.Since(start),
	}
	for _, src := range []Source{SourceHSMT, SourceTBMT, SourceHSKT, SourceTCDG} {
		res.HasMarkdown[src] = state.Has(src)
	}
	if err != nil {
		return res, err
	}

	for _, nodeErr := range report.Errors {
		telemetry.Warn("extraction.node.failed", map[string]any{
			"hs_id": in.HSID,
			"node":  nodeErr.Node,
			"error": nodeErr.Err,
		})
	}
	for _, nodeErr := range report.Errors {
		if nodeErr.Node == NodePrepare || nodeErr.Node == NodePost {
			return res, nodeErr.Err
		}
	}
	telemetry.Info("extraction.completed", map[string]any{
		"hs_id":       in.HSID,
		"proposal_id": res.ProposalID,
		"finance":     len(state.Finance),
		"experience":  len(state.Experience),
		"hr":          len(state.MergedHR),
		"technical":   proposals.CountTechnical(state.Technology),
		"errors":      len(res.Errors),
		"duration_ms": res.Duration.Milliseconds(),
	})
	return res, nil
}
