package pipeline

import (
	"context"
	"errors"

	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/extraction"
	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/workerproc"
)

// ExtractionStage consumes markdown_queue. Extraction is expensive, so the
// delivery is acknowledged only after the proposal is persisted.
func (p *Pipeline) ExtractionStage() Stage {
	return Stage{
		Name:  StageExtraction,
		Queue: p.queue(queue.Markdown),
		Step:  histories.StepExtraction,
		Parse: func(body []byte) (Job, error) {
			var msg queue.MarkdownMessage
			if _, err := workerproc.ParseMessage(body, &msg); err != nil {
				return Job{}, err
			}
			return Job{
				HSID:   msg.ID,
				Fields: map[string]any{"files": len(msg.Files)},
				Input:  msg,
				Run:    func(ctx context.Context) error { return p.Extract(ctx, msg) },
			}, nil
		},
	}
}

// Extract runs the extraction graph and queues compliance answering.
func (p *Pipeline) Extract(ctx context.Context, msg queue.MarkdownMessage) error {
	hsID := msg.ID
	rows, err := p.Emails.ListByHSID(ctx, hsID)
	if err != nil {
		return workerproc.Upstream(hsID, err)
	}
	var emailContentID int64
	for _, row := range rows {
		if row.Type == emails.TypeHSMT {
			emailContentID = row.ID
			break
		}
	}
	if emailContentID == 0 {
		return workerproc.Data(hsID, MsgNoHSMT, nil)
	}

	res, err := p.Extractor.Run(ctx, extraction.Input{HSID: hsID, EmailContentID: emailContentID, Files: msg.Files})
	if err != nil {
		if errors.Is(err, extraction.ErrNothingExtracted) || errors.Is(err, extraction.ErrNoInput) {
			return workerproc.Data(hsID, MsgNoExtracted, err)
		}
		return err
	}
	telemetry.Info("pipeline.extraction.done", map[string]any{
		"hs_id": hsID, "proposal_id": res.ProposalID, "has_finance": res.HasFinance,
		"branch_errors": len(res.Errors), "duration_ms": res.Duration.Milliseconds(),
	})

	out := queue.SQLAnswerMessage{
		HSID:                   hsID,
		ProposalID:             res.ProposalID,
		EmailContentID:         emailContentID,
		IsDataExtractedFinance: res.HasFinance,
		HasMarkdownHSKT:        res.HasMarkdown[extraction.SourceHSKT],
		HasMarkdownTBMT:        res.HasMarkdown[extraction.SourceTBMT],
		HasMarkdownHSMT:        res.HasMarkdown[extraction.SourceHSMT],
	}
	if err := p.publish(ctx, queue.SQLAnswer, out); err != nil {
		return workerproc.Upstream(hsID, err)
	}
	return nil
}
