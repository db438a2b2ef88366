package sqlanswer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"hsmt-backend/internal/llm"
	"hsmt-backend/internal/llm/llmtest"
	"hsmt-backend/internal/proposals"
)

const revenueSQL = "SELECT AVG(revenue) AS avg_revenue FROM financial_results WHERE financial_year_from >= '2021-01-01'"

func seedFinance(t *testing.T) (*proposals.MemoryRepo, int64, int64) {
	t.Helper()
	ctx := context.Background()
	repo := proposals.NewMemoryRepo()
	p := proposals.Proposal{ProposalName: "Gói thầu số 1", ClosingTime: "09:00 15/03/2025"}
	if err := repo.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}
	err := repo.InsertFinance(ctx, p.ID, []proposals.FinanceRequirement{{
		Requirement: "Doanh thu bình quân hằng năm",
		Description: "Doanh thu bình quân 3 năm gần nhất tối thiểu 2.808.300.000 VND",
	}})
	if err != nil {
		t.Fatal(err)
	}
	rows, _ := repo.ListFinance(ctx, p.ID)
	return repo, p.ID, rows[0].ID
}

func newAnswerer(t *testing.T, router *llmtest.Router, repo proposals.Repo) *Answerer {
	t.Helper()
	caller, err := llm.NewCaller(router)
	if err != nil {
		t.Fatal(err)
	}
	db := stubQuerier{revenueSQL: {{"avg_revenue": "2808300000001"}}}
	return New(caller, db, repo)
}

func scriptedRouter(reqID int64, label, answer string) *llmtest.Router {
	return llmtest.NewRouter(map[string]llmtest.Reply{
		"sql_supervisor": llmtest.Sequence(
			`{"next":"Expert"}`, `{"next":"Executor"}`, `{"next":"FINISH"}`,
		),
		"sql_expert": llmtest.Static(fmt.Sprintf(`{"queries":[{"finance_requirement_id":%d,"sql":%q}]}`, reqID, revenueSQL)),
		"sql_summarizer": llmtest.Static(fmt.Sprintf(
			`{"verdicts":[{"finance_requirement_id":%d,"sql_answer":%q,"compliance_confirmation":%q,"reason":"","link":"financial_results"}]}`,
			reqID, answer, label)),
	})
}

func TestAnswerCompliant(t *testing.T) {
	repo, proposalID, reqID := seedFinance(t)
	router := scriptedRouter(reqID, proposals.Compliant,
		"Doanh thu bình quân 3 năm là 2.808.300.000.001 VND, yêu cầu tối thiểu 2.808.300.000 VND")
	a := newAnswerer(t, router, repo)

	res, err := a.Answer(context.Background(), proposalID)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Turns != 3 || res.Corrected != 0 || len(res.Verdicts) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !router.Contains("sql_summarizer", "2808300000001") {
		t.Fatal("executor output did not reach the summarizer")
	}
	if !router.Contains("sql_supervisor", "09:00 15/03/2025") {
		t.Fatal("closing time missing from requirements")
	}

	rows, _ := repo.ListFinance(context.Background(), proposalID)
	got := rows[0]
	if got.ComplianceConfirmation.String != proposals.Compliant {
		t.Fatalf("stored label = %q", got.ComplianceConfirmation.String)
	}
	if !strings.Contains(got.Reason.String, "2.808.300.000.001") || !strings.Contains(got.Reason.String, "2.808.300.000 ") {
		t.Fatalf("reason = %q", got.Reason.String)
	}
	if got.Question.String != "Doanh thu bình quân hằng năm" {
		t.Fatalf("question = %q", got.Question.String)
	}
}

func TestAnswerValidatorOverridesModel(t *testing.T) {
	repo, proposalID, reqID := seedFinance(t)
	router := scriptedRouter(reqID, proposals.Compliant,
		"Doanh thu bình quân 3 năm là 2.500.000.000 VND, yêu cầu tối thiểu 2.808.300.000 VND")
	a := newAnswerer(t, router, repo)

	res, err := a.Answer(context.Background(), proposalID)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Corrected != 1 {
		t.Fatalf("corrected = %d", res.Corrected)
	}
	rows, _ := repo.ListFinance(context.Background(), proposalID)
	if rows[0].ComplianceConfirmation.String != proposals.NonCompliant {
		t.Fatalf("stored label = %q", rows[0].ComplianceConfirmation.String)
	}
}

func TestAnswerSkipsWithoutFinance(t *testing.T) {
	repo := proposals.NewMemoryRepo()
	p := proposals.Proposal{ProposalName: "x"}
	_ = repo.Create(context.Background(), &p)
	router := llmtest.NewRouter(nil)
	a := newAnswerer(t, router, repo)

	res, err := a.Answer(context.Background(), p.ID)
	if err != nil || !res.Skipped {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(router.Calls("")) != 0 {
		t.Fatal("no model call expected")
	}
}

func TestAnswerStopsAtTurnLimit(t *testing.T) {
	repo, proposalID, reqID := seedFinance(t)
	router := scriptedRouter(reqID, proposals.Compliant, "2.808.300.000.001 và 2.808.300.000")
	router.Set("sql_supervisor", llmtest.Static(`{"next":"Expert"}`))
	a := newAnswerer(t, router, repo)
	a.MaxTurns = 4

	res, err := a.Answer(context.Background(), proposalID)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Turns != 4 || len(router.Calls("sql_supervisor")) != 4 {
		t.Fatalf("turns = %d", res.Turns)
	}
	if len(router.Calls("sql_summarizer")) != 1 {
		t.Fatal("summarizer must still run")
	}
}

func TestAnswerEarlyFinishRunsQueriesFirst(t *testing.T) {
	repo, proposalID, reqID := seedFinance(t)
	router := scriptedRouter(reqID, proposals.Compliant, "2.808.300.000.001 và 2.808.300.000")
	router.Set("sql_supervisor", llmtest.Sequence(`{"next":"FINISH"}`, `{"next":"FINISH"}`, `{"next":"FINISH"}`))
	a := newAnswerer(t, router, repo)

	if _, err := a.Answer(context.Background(), proposalID); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(router.Calls("sql_expert")) != 1 || !router.Contains("sql_summarizer", "[Executor]") {
		t.Fatal("expected one expert round and one execution before finishing")
	}
}

func TestAnswerSupervisorFailure(t *testing.T) {
	repo, proposalID, _ := seedFinance(t)
	boom := errors.New("upstream down")
	router := llmtest.NewRouter(map[string]llmtest.Reply{"sql_supervisor": llmtest.Fail(boom)})
	a := newAnswerer(t, router, repo)

	if _, err := a.Answer(context.Background(), proposalID); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
