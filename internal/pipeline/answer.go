package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/mail"
	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/sqlanswer"
	"hsmt-backend/internal/workerproc"
)

// AnswerStage consumes sql_answer_queue.
func (p *Pipeline) AnswerStage() Stage {
	return Stage{
		Name:  StageSQLAnswer,
		Queue: p.queue(queue.SQLAnswer),
		Step:  histories.StepSQLAnswer,
		Parse: func(body []byte) (Job, error) {
			var msg queue.SQLAnswerMessage
			if _, err := workerproc.ParseMessage(body, &msg); err != nil {
				return Job{}, err
			}
			return Job{
				HSID: msg.HSID,
				Fields: map[string]any{
					"proposal_id": msg.ProposalID, "email_content_id": msg.EmailContentID,
					"has_finance": msg.IsDataExtractedFinance,
				},
				Input: msg,
				Run:   func(ctx context.Context) error { return p.Answer(ctx, msg) },
			}, nil
		},
	}
}

// Answer decides finance compliance, renders the report files and queues the
// reply. A failed compliance loop leaves the verdict columns empty and the
// report is still sent.
func (p *Pipeline) Answer(ctx context.Context, msg queue.SQLAnswerMessage) error {
	hsID := msg.HSID
	fields := map[string]any{"hs_id": hsID, "proposal_id": msg.ProposalID}
	if msg.ProposalID <= 0 {
		return workerproc.Data(hsID, MsgNoExtracted, errors.New("missing proposal id"))
	}

	var answered sqlanswer.Result
	if msg.IsDataExtractedFinance && p.Answerer != nil {
		res, err := p.Answerer.Answer(ctx, msg.ProposalID)
		if err != nil {
			telemetry.Warn("pipeline.sql_answer.failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		} else {
			answered = res
			telemetry.Info("pipeline.sql_answer.done", telemetry.Merge(fields, map[string]any{
				"verdicts": len(res.Verdicts), "turns": res.Turns, "corrected": res.Corrected,
			}))
		}
	}

	rep, err := p.Report(ctx, hsID, msg.ProposalID)
	if err != nil {
		return err
	}

	row, err := p.Emails.Get(ctx, msg.EmailContentID)
	if err != nil {
		return workerproc.Upstream(hsID, fmt.Errorf("load email content %d: %w", msg.EmailContentID, err))
	}
	out := queue.SendMailMessage{
		EmailContentID:  row.ID,
		ProposalID:      msg.ProposalID,
		Subject:         mail.ReplySubject(row.Subject),
		Body:            reportBody(rep, answered),
		Recipient:       row.Sender,
		AttachmentPaths: rep.Links,
	}
	if err := p.publish(ctx, queue.SendMail, out); err != nil {
		return workerproc.Upstream(hsID, err)
	}
	return nil
}

func reportBody(rep Report, answered sqlanswer.Result) string {
	var b strings.Builder
	b.WriteString("Kính gửi Quý khách,\n\n")
	name := strings.TrimSpace(rep.Proposal.ProposalName)
	if name == "" {
		name = "bộ hồ sơ"
	}
	fmt.Fprintf(&b, "Hệ thống đã hoàn tất phân tích Hồ sơ mời thầu %q.\n", name)
	if inv := strings.TrimSpace(rep.Proposal.InvestorName); inv != "" {
		fmt.Fprintf(&b, "Chủ đầu tư: %s\n", inv)
	}
	if ct := strings.TrimSpace(rep.Proposal.ClosingTime); ct != "" {
		fmt.Fprintf(&b, "Thời điểm đóng thầu: %s\n", ct)
	}
	fmt.Fprintf(&b, "\nYêu cầu tài chính: %d", rep.Finance)
	if rep.Finance > 0 {
		compliant := 0
		for _, v := range answered.Verdicts {
			if v.ComplianceConfirmation == proposals.Compliant {
				compliant++
			}
		}
		fmt.Fprintf(&b, " (đáp ứng %d/%d)", compliant, rep.Finance)
	}
	fmt.Fprintf(&b, "\nYêu cầu kinh nghiệm: %d\nYêu cầu nhân sự: %d\nYêu cầu kỹ thuật: %d\n",
		rep.Experience, rep.HR, rep.Technical)
	b.WriteString("\nChi tiết xem trong các file đính kèm.\n\nTrân trọng,\nHệ thống phân tích Hồ sơ mời thầu")
	return b.String()
}
