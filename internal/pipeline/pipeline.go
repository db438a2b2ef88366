// Package pipeline implements the five queue stages that take an inbound
// bidding email from classification to the compliance reply.
package pipeline

import (
	"context"
	"strings"
	"time"

	"hsmt-backend/internal/chapters"
	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/extraction"
	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/mail"
	"hsmt-backend/internal/pdfdoc"
	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/sqlanswer"
	"hsmt-backend/internal/trace"
)

// Stage names, as used for HSMT_STAGE, metrics and logs.
const (
	StageClassify        = "classify"
	StageChapterSplitter = "chapter_splitter"
	StageExtraction      = "extraction"
	StageSQLAnswer       = "sql_answer"
	StageSendMail        = "send_mail"
)

// User-visible failure texts mailed back to the sender.
const (
	MsgNoFiles     = "Không tìm thấy file đính kèm nào của bộ hồ sơ. Vui lòng gửi lại email kèm file PDF."
	MsgNoHSMT      = "Bộ hồ sơ gửi đến không có file Hồ sơ mời thầu (HSMT). Vui lòng kiểm tra và gửi lại."
	MsgNoChapter   = "Không tìm thấy chương \"Tiêu chuẩn đánh giá\" trong Hồ sơ mời thầu. Hệ thống không thể trích xuất yêu cầu."
	MsgNoExtracted = "Hệ thống không trích xuất được yêu cầu nào từ Hồ sơ mời thầu. Vui lòng kiểm tra lại nội dung file."
)

// Transcriber turns a scanned PDF into Markdown.
type Transcriber interface {
	ToMarkdown(ctx context.Context, hsID string, pdf []byte) (string, error)
}

// Answerer decides finance compliance for a proposal.
type Answerer interface {
	Answer(ctx context.Context, proposalID int64) (sqlanswer.Result, error)
}

// Extractor runs the extraction graph.
type Extractor interface {
	Run(ctx context.Context, in extraction.Input) (extraction.Result, error)
}

// Templates holds the report templates.
type Templates struct {
	Checklist []byte
	Technical []byte
}

// Pipeline holds the collaborators shared by every stage.
type Pipeline struct {
	Emails    emails.Repo
	Proposals proposals.Repo
	Histories histories.Repo

	Store          object.Store
	Bucket         string
	MarkdownBucket string

	Bus       queue.Publisher
	QueueName func(base string) string

	Mail             *mail.Gateway
	NotifyRecipients []string

	OCR       Transcriber
	Extractor Extractor
	Answerer  Answerer
	Templates Templates
	Trace     *trace.Client

	TmpDir string
	Now    func() time.Time

	// ReadPDF parses PDF bytes; SegmentPDF splits a parsed HSMT file.
	ReadPDF    func(data []byte) (*pdfdoc.Document, error)
	SegmentPDF func(ctx context.Context, doc *pdfdoc.Document, src, dir, stem, keyword string) (chapters.Result, error)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pipeline) queue(base string) string {
	if p.QueueName != nil {
		return p.QueueName(base)
	}
	return base
}

func (p *Pipeline) readPDF(data []byte) (*pdfdoc.Document, error) {
	if p.ReadPDF != nil {
		return p.ReadPDF(data)
	}
	return pdfdoc.Read(data)
}

func (p *Pipeline) segmentPDF(ctx context.Context, doc *pdfdoc.Document, src, dir, stem string) (chapters.Result, error) {
	if p.SegmentPDF != nil {
		return p.SegmentPDF(ctx, doc, src, dir, stem, chapters.EvaluationKeyword)
	}
	return chapters.SegmentPDF(ctx, doc, src, dir, stem, chapters.EvaluationKeyword)
}

func (p *Pipeline) publish(ctx context.Context, base string, v any) error {
	return queue.PublishJSON(ctx, p.Bus, p.queue(base), v)
}

// Fail marks every open row of hsID as XU_LY_LOI and queues a reply to the
// sender carrying userMessage.
func (p *Pipeline) Fail(ctx context.Context, hsID, userMessage string) error {
	fields := map[string]any{"hs_id": hsID}
	if err := p.MarkFailed(ctx, hsID); err != nil {
		telemetry.Warn("pipeline.fail.status_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
	}
	rows, err := p.Emails.ListByHSID(ctx, hsID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		telemetry.Warn("pipeline.fail.no_sender", fields)
		return nil
	}
	first := rows[0]
	msg := queue.SendMailMessage{
		EmailContentID: first.ID,
		Subject:        mail.ReplySubject(first.Subject),
		Body:           failureBody(userMessage),
		Recipient:      first.Sender,
	}
	telemetry.Info("pipeline.fail.notify", telemetry.Merge(fields, map[string]any{"email_content_id": first.ID}))
	return p.publish(ctx, queue.SendMail, msg)
}

// MarkFailed moves every open row of hsID to XU_LY_LOI.
func (p *Pipeline) MarkFailed(ctx context.Context, hsID string) error {
	return p.Emails.UpdateStatusByHSID(ctx, hsID, emails.StatusFailed)
}

func failureBody(userMessage string) string {
	return "Kính gửi Quý khách,\n\n" + strings.TrimSpace(userMessage) +
		"\n\nTrân trọng,\nHệ thống phân tích Hồ sơ mời thầu"
}
