package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hsmt-backend/internal/llm"
	"hsmt-backend/internal/llm/llmtest"
	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/storage/object/local"
)

const (
	summaryJSON = `{"summary_markdown":"# Tóm tắt\n- Gói thầu xây lắp","overview":{"investor_name":"Ban QLDA Hà Nội","proposal_name":"Gói thầu số 01","closing_time":"01/01/2025"}}`
	financeJSON = `{"requirements":[{"requirement":"Doanh thu bình quân","description":"Tối thiểu 2.808.300.000 VND","document_name":"Báo cáo tài chính"},{"requirement":"Tình hình tài chính","description":"Giá trị tài sản ròng dương","document_name":"BCTC 3 năm"}]}`
	expJSON     = `{"requirements":[{"requirement":"Hợp đồng tương tự","description":"1 hợp đồng","document_name":"Hợp đồng"}]}`
	hrJSON      = `{"positions":[{"position":"Chỉ huy trưởng","quantity":1,"document_name":"Bằng cấp","requirements":[{"name":"Trình độ","description":"Đại học"}]}]}`
	techJSON    = `{"items":[{"level":"1","name":"Vật liệu","children":[{"level":"1.1","name":"Xi măng","details":["PCB40"]}]}],"positions":[{"position":"chỉ huy trưởng","quantity":"2","requirements":[{"name":"Kinh nghiệm","description":"5 năm"}]},{"position":"Kỹ sư","quantity":1}]}`
	noticeJSON  = `{"closing_time":"09:00 15/01/2025","selection_method":"Đấu thầu rộng rãi"}`
)

type fixture struct {
	store  *local.Store
	router *llmtest.Router
	repo   *proposals.MemoryRepo
	ex     *Extractor
	files  []queue.MarkdownFile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := local.New(t.TempDir())
	put := func(key, body string) {
		if err := object.PutBytes(ctx, store, "markdown", key, []byte(body)); err != nil {
			t.Fatalf("PutBytes: %v", err)
		}
	}
	put("hs-1/hsmt.md", "HSMT-CONTENT hồ sơ mời thầu")
	put("hs-1/hsmt_chuong_3.md", "TCDG-CONTENT tiêu chuẩn đánh giá")
	put("hs-1/tbmt.md", "TBMT-CONTENT thông báo mời thầu")

	router := llmtest.NewRouter(map[string]llmtest.Reply{
		"summary_hsmt":       llmtest.Static(summaryJSON),
		"extract_finance":    llmtest.Static(financeJSON),
		"extract_experience": llmtest.Static(expJSON),
		"extract_hr":         llmtest.Static(hrJSON),
		"extract_technology": llmtest.Static(techJSON),
		"extract_notice":     llmtest.Static(noticeJSON),
		"merge_hr":           llmtest.Fail(errors.New("model unavailable")),
	})
	caller, err := llm.NewCaller(router)
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}
	repo := proposals.NewMemoryRepo()
	ex := New(store, "hsmt", caller, repo)
	ex.AgentCode = "AGENT01"
	return &fixture{
		store:  store,
		router: router,
		repo:   repo,
		ex:     ex,
		files: []queue.MarkdownFile{
			{Bucket: "hsmt", FileName: "hsmt.pdf", FileType: "HSMT", MarkdownLink: "markdown/hs-1/hsmt.md"},
			{Bucket: "hsmt", FileName: "hsmt_chuong_3.pdf", FileType: "TCDG", MarkdownLink: "markdown/hs-1/hsmt_chuong_3.md", DocumentDetailID: 7},
			{Bucket: "hsmt", FileName: "tbmt.pdf", FileType: "TBMT", MarkdownLink: "markdown/hs-1/tbmt.md"},
		},
	}
}

func TestRunPersistsProposalAndRequirements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.ex.Run(ctx, Input{HSID: "hs-1", EmailContentID: 11, Files: f.files})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ProposalID == 0 || !res.HasFinance {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.HasMarkdown[SourceHSMT] || !res.HasMarkdown[SourceTBMT] || res.HasMarkdown[SourceHSKT] {
		t.Fatalf("unexpected markdown flags %v", res.HasMarkdown)
	}

	p, err := f.repo.Get(ctx, res.ProposalID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.InvestorName != "Ban QLDA Hà Nội" || p.ClosingTime != "09:00 15/01/2025" || p.SelectionMethod != "Đấu thầu rộng rãi" {
		t.Fatalf("unexpected proposal fields %+v", p)
	}
	if p.EmailContentID != 11 || p.AgentAICode != "AGENT01" || p.Status != proposals.StatusExtracted {
		t.Fatalf("unexpected proposal linkage %+v", p)
	}

	finance, _ := f.repo.ListFinance(ctx, p.ID)
	if len(finance) != 2 || finance[0].DocumentName != "Báo cáo tài chính" {
		t.Fatalf("unexpected finance rows %+v", finance)
	}
	hr, _ := f.repo.ListHR(ctx, p.ID)
	if len(hr) != 2 {
		t.Fatalf("expected merged HR positions, got %+v", hr)
	}
	if hr[0].Quantity != "2" || len(hr[0].Details) != 2 {
		t.Fatalf("expected merged quantity and criteria, got %+v", hr[0])
	}
	tech, _ := f.repo.ListTechnical(ctx, p.ID)
	if len(tech) != 2 {
		t.Fatalf("expected 2 technical rows, got %d", len(tech))
	}
	if raw := f.repo.TechnicalJSON(p.ID); !strings.Contains(string(raw), "Xi măng") {
		t.Fatalf("expected raw technical json, got %s", raw)
	}

	if !f.router.Contains("extract_finance", "TCDG-CONTENT") {
		t.Fatalf("finance branch should read the evaluation chapter")
	}
	if !f.router.Contains("extract_technology", "HSMT-CONTENT") {
		t.Fatalf("technology branch should fall back to HSMT")
	}
	if !f.router.Contains("extract_notice", "TBMT-CONTENT") {
		t.Fatalf("notice branch should read TBMT")
	}
	if len(f.router.Calls("merge_hr")) != 1 {
		t.Fatalf("expected one merge_hr attempt")
	}
}

func TestBranchFailureLeavesSlotEmpty(t *testing.T) {
	f := newFixture(t)
	f.router.Set("extract_finance", llmtest.Static("không phải JSON"))
	f.router.Set("fix_json", llmtest.Static("vẫn không phải JSON"))

	res, err := f.ex.Run(context.Background(), Input{HSID: "hs-1", EmailContentID: 11, Files: f.files})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HasFinance {
		t.Fatalf("expected finance slot to be empty")
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], NodeFinance) {
		t.Fatalf("expected one finance error, got %v", res.Errors)
	}
	exp, _ := f.repo.ListExperience(context.Background(), res.ProposalID)
	if len(exp) != 1 {
		t.Fatalf("other branches should still persist, got %d experience rows", len(exp))
	}
}

func TestRunNothingExtracted(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"summary_hsmt", "extract_finance", "extract_experience", "extract_hr", "extract_technology", "extract_notice"} {
		f.router.Set(name, llmtest.Fail(errors.New("openai http status 400")))
	}
	_, err := f.ex.Run(context.Background(), Input{HSID: "hs-1", EmailContentID: 11, Files: f.files})
	if !errors.Is(err, ErrNothingExtracted) {
		t.Fatalf("expected ErrNothingExtracted, got %v", err)
	}
	if f.repo.Count() != 0 {
		t.Fatalf("expected no proposal row")
	}
}

func TestRunWithoutReadableInput(t *testing.T) {
	f := newFixture(t)
	files := []queue.MarkdownFile{{Bucket: "hsmt", FileName: "x.pdf", FileType: "HSMT", MarkdownLink: "markdown/hs-1/missing.md"}}
	_, err := f.ex.Run(context.Background(), Input{HSID: "hs-1", Files: files})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if len(f.router.Calls("")) != 0 {
		t.Fatalf("expected no LLM calls without input")
	}
}

func TestMergePositions(t *testing.T) {
	a := []Position{{Position: "Chỉ huy trưởng", Quantity: "1", Requirements: []HRItem{{Name: "Trình độ", Description: "Đại học"}}}}
	b := []Position{
		{Position: "  CHỈ HUY   TRƯỞNG ", Quantity: "3", Requirements: []HRItem{{Name: "trình độ", Description: "đại học"}, {Name: "Chứng chỉ"}}},
		{Position: "Kỹ sư giám sát", Quantity: "2"},
		{Position: " "},
	}
	got := MergePositions(a, b)
	if len(got) != 2 {
		t.Fatalf("expected 2 positions, got %+v", got)
	}
	if got[0].Position != "Chỉ huy trưởng" || got[0].Quantity != "3" || len(got[0].Requirements) != 2 {
		t.Fatalf("unexpected merge %+v", got[0])
	}
}

func TestQuantityAcceptsNumberOrString(t *testing.T) {
	var out hrOutput
	caller, _ := llm.NewCaller(llmtest.NewRouter(map[string]llmtest.Reply{
		"extract_hr": llmtest.Static(`{"positions":[{"position":"A","quantity":2},{"position":"B","quantity":"01 người"},{"position":"C","quantity":null}]}`),
	}))
	if err := caller.CompleteJSON(context.Background(), "extract_hr", markdownData{"x"}, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Positions[0].Quantity.Int() != 2 || out.Positions[1].Quantity.Int() != 1 || out.Positions[2].Quantity != "" {
		t.Fatalf("unexpected quantities %+v", out.Positions)
	}
}

// flakyRepo fails the first experience insert.
type flakyRepo struct {
	*proposals.MemoryRepo
	failed bool
}

func (r *flakyRepo) InsertExperience(ctx context.Context, proposalID int64, rows []proposals.ExperienceRequirement) error {
	if !r.failed {
		r.failed = true
		return errors.New("connection reset by peer")
	}
	return r.MemoryRepo.InsertExperience(ctx, proposalID, rows)
}

func TestRunDiscardsPartialProposalAndRetriesCleanly(t *testing.T) {
	f := newFixture(t)
	repo := &flakyRepo{MemoryRepo: f.repo}
	f.ex.Proposals = repo
	ctx := context.Background()
	in := Input{HSID: "hs-1", EmailContentID: 11, Files: f.files}

	if _, err := f.ex.Run(ctx, in); err == nil || !strings.Contains(err.Error(), "insert experience") {
		t.Fatalf("expected insert experience error, got %v", err)
	}
	if f.repo.Count() != 0 {
		t.Fatalf("partial proposal left behind: %d rows", f.repo.Count())
	}

	res, err := f.ex.Run(ctx, in)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if f.repo.Count() != 1 {
		t.Fatalf("proposal rows = %d, want 1", f.repo.Count())
	}
	finance, _ := f.repo.ListFinance(ctx, res.ProposalID)
	exp, _ := f.repo.ListExperience(ctx, res.ProposalID)
	if len(finance) != 2 || len(exp) != 1 {
		t.Fatalf("finance=%d experience=%d", len(finance), len(exp))
	}
}

func TestRunKeepsExistingProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := Input{HSID: "hs-1", EmailContentID: 11, Files: f.files}

	first, err := f.ex.Run(ctx, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := f.ex.Run(ctx, in)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.ProposalID != first.ProposalID || f.repo.Count() != 1 {
		t.Fatalf("proposal ids %d/%d, rows = %d", first.ProposalID, second.ProposalID, f.repo.Count())
	}
	finance, _ := f.repo.ListFinance(ctx, first.ProposalID)
	if len(finance) != 2 {
		t.Fatalf("finance rows = %d, want 2", len(finance))
	}
}
