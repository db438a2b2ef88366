package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/mail"
	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/workerproc"
)

// SendMailStage consumes send_mail_queue.
func (p *Pipeline) SendMailStage() Stage {
	return Stage{
		Name:     StageSendMail,
		Queue:    p.queue(queue.SendMail),
		Step:     histories.StepSendMail,
		MarkOnly: true,
		Parse: func(body []byte) (Job, error) {
			var msg queue.SendMailMessage
			if _, err := workerproc.ParseMessage(body, &msg); err != nil {
				return Job{}, err
			}
			return Job{
				Fields: map[string]any{
					"email_content_id": msg.EmailContentID, "proposal_id": msg.ProposalID,
					"attachments": len(msg.AttachmentPaths),
				},
				Input: msg,
				Run:   func(ctx context.Context) error { return p.SendMail(ctx, msg) },
				Lookup: func(ctx context.Context) string {
					row, err := p.Emails.Get(ctx, msg.EmailContentID)
					if err != nil {
						return ""
					}
					return row.HSID
				},
			}, nil
		},
	}
}

// SendMail delivers a reply in the thread of the original email. A report
// reply (ProposalID > 0) closes the set: every row moves to DA_XU_LY and the
// proposal to EXPORTED. Once the mail is out, nothing that fails may cause
// it to be sent again.
func (p *Pipeline) SendMail(ctx context.Context, msg queue.SendMailMessage) error {
	row, err := p.Emails.Get(ctx, msg.EmailContentID)
	if err != nil {
		if errors.Is(err, emails.ErrNotFound) {
			return workerproc.ErrProcess{Kind: workerproc.KindValidation, Err: err}
		}
		return workerproc.Upstream("", err)
	}
	hsID := row.HSID
	fields := map[string]any{"hs_id": hsID, "email_content_id": row.ID, "proposal_id": msg.ProposalID}

	req := mail.ReplyRequest{
		OriginalMessageID: row.OriginalMessageID,
		To:                msg.Recipient,
		Subject:           msg.Subject,
		Body:              msg.Body,
		CC:                p.NotifyRecipients,
	}
	known := mail.Envelope{MessageID: row.OriginalMessageID, From: row.Sender, Subject: row.Subject}

	if len(msg.AttachmentPaths) > 0 {
		dir, err := os.MkdirTemp(p.TmpDir, "mail-")
		if err != nil {
			return workerproc.Upstream(hsID, err)
		}
		defer os.RemoveAll(dir)
		for _, link := range msg.AttachmentPaths {
			bucket, key := object.SplitLink(link)
			if bucket == "" {
				bucket = p.Bucket
			}
			local, err := object.Download(ctx, p.Store, bucket, key, dir)
			if err != nil {
				if errors.Is(err, object.ErrNotFound) {
					telemetry.Warn("pipeline.send_mail.attachment_missing", telemetry.Merge(fields, map[string]any{"link": link}))
					continue
				}
				return workerproc.Upstream(hsID, err)
			}
			req.Attachments = append(req.Attachments, mail.OutgoingAttachment{
				Path:        local,
				FileName:    path.Base(key),
				ContentType: object.ContentType(key, nil),
			})
		}
	}

	res, err := p.Mail.ReplyKnown(ctx, req, known)
	if err != nil {
		return workerproc.Upstream(hsID, err)
	}
	telemetry.Info("pipeline.send_mail.sent", telemetry.Merge(fields, map[string]any{
		"message_id": res.MessageID, "thread_id": res.ThreadID, "attachments": len(req.Attachments),
	}))

	if msg.ProposalID <= 0 {
		return nil
	}
	if err := p.Emails.UpdateStatusByHSID(ctx, hsID, emails.StatusDone); err != nil {
		return workerproc.Settled(hsID, fmt.Errorf("mark set done after send: %w", err))
	}
	if err := p.Proposals.UpdateStatus(ctx, msg.ProposalID, proposals.StatusExported); err != nil {
		return workerproc.Settled(hsID, fmt.Errorf("mark proposal exported after send: %w", err))
	}
	return nil
}
