// Package sqlanswer decides finance compliance for a proposal by letting a
// supervisor alternate between an SQL expert and a read-only executor.
package sqlanswer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hsmt-backend/internal/llm"
	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/shared/telemetry"
)

// Supervisor decisions.
const (
	NextExpert   = "Expert"
	NextExecutor = "Executor"
	NextFinish   = "FINISH"
)

// DefaultMaxTurns bounds the supervisor loop.
const DefaultMaxTurns = 10

// Schema is the table description handed to the expert.
const Schema = `financial_results(
  id BIGINT,
  agentai_code TEXT,
  financial_year_from DATE,
  financial_year_to DATE,
  total_assets NUMERIC,            -- tổng tài sản (VND)
  total_liabilities NUMERIC,       -- tổng nợ phải trả (VND)
  short_term_assets NUMERIC,       -- tài sản ngắn hạn (VND)
  short_term_liabilities NUMERIC,  -- nợ ngắn hạn (VND)
  net_asset_value NUMERIC,         -- giá trị tài sản ròng (VND)
  revenue NUMERIC,                 -- doanh thu (VND)
  profit_before_tax NUMERIC,
  profit_after_tax NUMERIC,
  tax_obligation_fulfilled BOOLEAN,
  tax_obligation_url TEXT,
  financial_declared BOOLEAN,
  financial_declaration_url TEXT
)`

// ErrNoVerdicts is returned when the summarizer produced nothing usable.
var ErrNoVerdicts = errors.New("no verdict produced")

// Result summarizes one Answer call.
type Result struct {
	Verdicts  []proposals.Verdict
	Turns     int
	Corrected int
	Skipped   bool
	Duration  time.Duration
}

// Answerer runs the loop for one proposal and persists the verdicts.
type Answerer struct {
	LLM       *llm.Caller
	DB        Querier
	Proposals proposals.Repo
	MaxTurns  int
}

// New returns an Answerer with the default turn limit.
func New(caller *llm.Caller, db Querier, repo proposals.Repo) *Answerer {
	return &Answerer{LLM: caller, DB: db, Proposals: repo, MaxTurns: DefaultMaxTurns}
}

type supervisorOutput struct {
	Next   string `json:"next"`
	Reason string `json:"reason"`
}

func (o *supervisorOutput) Validate() error {
	switch o.Next {
	case NextExpert, NextExecutor, NextFinish:
		return nil
	}
	return fmt.Errorf("next must be Expert, Executor or FINISH, got %q", o.Next)
}

type expertOutput struct {
	Queries []Query `json:"queries"`
}

func (o *expertOutput) Validate() error {
	if len(o.Queries) == 0 {
		return errors.New("queries is empty")
	}
	for i, q := range o.Queries {
		if q.FinanceRequirementID <= 0 || strings.TrimSpace(q.SQL) == "" {
			return fmt.Errorf("queries[%d] needs finance_requirement_id and sql", i)
		}
	}
	return nil
}

type summarizerOutput struct {
	Verdicts []proposals.Verdict `json:"verdicts"`
}

func (o *summarizerOutput) Validate() error {
	if len(o.Verdicts) == 0 {
		return errors.New("verdicts is empty")
	}
	return nil
}

type requirementView struct {
	ID           int64  `json:"finance_requirement_id"`
	Requirement  string `json:"requirement"`
	Description  string `json:"description,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	ClosingTime  string `json:"closing_time,omitempty"`
}

// session is the mutable state of one loop.
type session struct {
	requirements string
	transcript   strings.Builder
	pending      []Query
	executed     int
}

func (s *session) note(speaker, text string) {
	fmt.Fprintf(&s.transcript, "[%s]\n%s\n\n", speaker, text)
}

func (s *session) data() map[string]any {
	t := s.transcript.String()
	if t == "" {
		t = "(chưa có)"
	}
	return map[string]any{"Requirements": s.requirements, "Transcript": t, "Schema": Schema}
}

// Answer loads the finance requirements of proposalID, runs the loop and
// stores one verdict per answered requirement. A proposal without finance
// requirements is skipped.
func (a *Answerer) Answer(ctx context.Context, proposalID int64) (Result, error) {
	start := time.Now()
	rows, err := a.Proposals.ListFinance(ctx, proposalID)
	if err != nil {
		return Result{}, fmt.Errorf("list finance: %w", err)
	}
	if len(rows) == 0 {
		telemetry.Info("sqlanswer.skipped", map[string]any{"proposal_id": proposalID})
		return Result{Skipped: true, Duration: time.Since(start)}, nil
	}

	closing := ""
	if p, err := a.Proposals.Get(ctx, proposalID); err == nil {
		closing = p.ClosingTime
	}
	byID := make(map[int64]proposals.FinanceRequirement, len(rows))
	views := make([]requirementView, 0, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
		views = append(views, requirementView{
			ID: r.ID, Requirement: r.Requirement, Description: r.Description,
			DocumentName: r.DocumentName, ClosingTime: closing,
		})
	}
	reqJSON, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return Result{}, err
	}
	s := &session{requirements: string(reqJSON)}

	turns, err := a.loop(ctx, s)
	if err != nil {
		return Result{}, err
	}

	var out summarizerOutput
	if err := a.LLM.CompleteJSON(ctx, "sql_summarizer", s.data(), &out); err != nil {
		return Result{}, fmt.Errorf("summarizer: %w", err)
	}

	res := Result{Turns: turns}
	for _, v := range out.Verdicts {
		req, ok := byID[v.FinanceRequirementID]
		if !ok {
			telemetry.Warn("sqlanswer.verdict.unknown_id", map[string]any{
				"proposal_id": proposalID, "finance_requirement_id": v.FinanceRequirementID,
			})
			continue
		}
		v, changed := ValidateVerdict(v)
		if changed {
			res.Corrected++
			telemetry.Info("sqlanswer.verdict.corrected", map[string]any{
				"proposal_id": proposalID, "finance_requirement_id": v.FinanceRequirementID,
				"compliance_confirmation": v.ComplianceConfirmation,
			})
		}
		v.Question = req.Requirement
		if err := v.Validate(); err != nil {
			telemetry.Warn("sqlanswer.verdict.invalid", map[string]any{
				"proposal_id": proposalID, "error": err.Error(),
			})
			continue
		}
		if err := a.Proposals.UpdateFinanceVerdict(ctx, v); err != nil {
			return res, fmt.Errorf("store verdict %d: %w", v.FinanceRequirementID, err)
		}
		res.Verdicts = append(res.Verdicts, v)
	}
	res.Duration = time.Since(start)
	if len(res.Verdicts) == 0 {
		return res, ErrNoVerdicts
	}
	telemetry.Info("sqlanswer.done", map[string]any{
		"proposal_id": proposalID, "verdicts": len(res.Verdicts),
		"corrected": res.Corrected, "turns": res.Turns, "duration_ms": res.Duration.Milliseconds(),
	})
	return res, nil
}

// loop drives the supervisor until FINISH or the turn limit.
func (a *Answerer) loop(ctx context.Context, s *session) (int, error) {
	limit := a.MaxTurns
	if limit <= 0 {
		limit = DefaultMaxTurns
	}
	turn := 0
	for turn < limit {
		if err := ctx.Err(); err != nil {
			return turn, err
		}
		turn++
		var dec supervisorOutput
		if err := a.LLM.CompleteJSON(ctx, "sql_supervisor", s.data(), &dec); err != nil {
			return turn, fmt.Errorf("supervisor: %w", err)
		}
		next := dec.Next
		// Executing before any query exists means asking the expert first.
		if next == NextExecutor && len(s.pending) == 0 {
			next = NextExpert
		}
		if next == NextFinish && s.executed == 0 {
			next = nextStep(s)
		}
		telemetry.Debug("sqlanswer.turn", map[string]any{"turn": turn, "next": next, "reason": dec.Reason})

		switch next {
		case NextFinish:
			return turn, nil
		case NextExpert:
			var q expertOutput
			if err := a.LLM.CompleteJSON(ctx, "sql_expert", s.data(), &q); err != nil {
				return turn, fmt.Errorf("expert: %w", err)
			}
			s.pending = q.Queries
			b, _ := json.Marshal(q.Queries)
			s.note(NextExpert, string(b))
		case NextExecutor:
			execs := Execute(ctx, a.DB, s.pending)
			s.pending = nil
			s.executed += len(execs)
			b, _ := json.Marshal(execs)
			s.note(NextExecutor, string(b))
		}
	}
	telemetry.Warn("sqlanswer.turn_limit", map[string]any{"turns": turn})
	return turn, nil
}

// nextStep is used when the supervisor wants to stop before any query ran.
func nextStep(s *session) string {
	if len(s.pending) == 0 {
		return NextExpert
	}
	return NextExecutor
}
