package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"hsmt-backend/internal/classify"
	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/shared/util"
	"hsmt-backend/internal/tasks"
	"hsmt-backend/internal/workerproc"
)

// ClassifyStage consumes classify_queue.
func (p *Pipeline) ClassifyStage() Stage {
	return Stage{
		Name:     StageClassify,
		Queue:    p.queue(queue.Classify),
		Step:     histories.StepClassify,
		AckEarly: true,
		Parse: func(body []byte) (Job, error) {
			var msg queue.ClassifyMessage
			if _, err := workerproc.ParseMessage(body, &msg); err != nil {
				return Job{}, err
			}
			return Job{
				HSID:   msg.ID,
				Fields: map[string]any{"email": msg.Email},
				Input:  msg,
				Run:    func(ctx context.Context) error { return p.Classify(ctx, msg) },
			}, nil
		},
	}
}

// Classify labels every file of the set, stores a Markdown rendition of each
// and hands the recognised files to the chapter splitter.
func (p *Pipeline) Classify(ctx context.Context, msg queue.ClassifyMessage) error {
	hsID := msg.ID
	rows, err := p.Emails.ListByHSID(ctx, hsID)
	if err != nil {
		return workerproc.Upstream(hsID, err)
	}
	if len(rows) == 0 {
		return workerproc.Data(hsID, MsgNoFiles, nil)
	}

	var files []queue.SplitterFile
	hasHSMT := false
	for i, row := range rows {
		tasks.ReportProgress(ctx, map[string]any{"step": "classify", "file": i + 1, "files": len(rows)})
		if row.Status == emails.StatusDone || row.Status == emails.StatusFailed {
			continue
		}
		fields := map[string]any{"hs_id": hsID, "email_content_id": row.ID, "file_name": row.FileName}
		file, ok, err := p.classifyRow(ctx, hsID, row)
		if err != nil {
			return err
		}
		if !ok {
			telemetry.Warn("pipeline.classify.skipped", fields)
			continue
		}
		telemetry.Info("pipeline.classify.file", telemetry.Merge(fields, map[string]any{
			"type": file.FileType, "classify_type": file.ClassifyType,
		}))
		if file.FileType == string(emails.TypeHSMT) {
			hasHSMT = true
		}
		files = append(files, file)
	}
	if !hasHSMT {
		return workerproc.Data(hsID, MsgNoHSMT, nil)
	}

	out := queue.ChapterSplitterMessage{ID: hsID, Bucket: p.Bucket, Files: files}
	if err := p.publish(ctx, queue.ChapterSplitter, out); err != nil {
		return workerproc.Upstream(hsID, err)
	}
	return nil
}

// classifyRow returns ok=false when the file is unreadable or unrecognised;
// the row is then marked XU_LY_LOI and dropped from the set.
func (p *Pipeline) classifyRow(ctx context.Context, hsID string, row emails.EmailContent) (queue.SplitterFile, bool, error) {
	if err := p.Emails.UpdateStatus(ctx, row.ID, emails.StatusProcessing); err != nil {
		if errors.Is(err, emails.ErrStatusRegression) {
			return queue.SplitterFile{}, false, nil
		}
		return queue.SplitterFile{}, false, workerproc.Upstream(hsID, err)
	}

	bucket, key := object.SplitLink(row.Link)
	if bucket == "" {
		bucket = p.Bucket
	}
	data, err := object.ReadAll(ctx, p.Store, bucket, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return queue.SplitterFile{}, false, p.markFailed(ctx, hsID, row.ID)
		}
		return queue.SplitterFile{}, false, workerproc.Upstream(hsID, err)
	}
	doc, err := p.readPDF(data)
	if err != nil {
		telemetry.Warn("pipeline.classify.unreadable", map[string]any{"hs_id": hsID, "email_content_id": row.ID, "error": err.Error()})
		return queue.SplitterFile{}, false, p.markFailed(ctx, hsID, row.ID)
	}

	res := classify.Document(doc)
	var markdown string
	if res.Rendering == emails.RenderingImage {
		if p.OCR == nil {
			return queue.SplitterFile{}, false, workerproc.Upstream(hsID, errors.New("ocr is not configured"))
		}
		markdown, err = p.OCR.ToMarkdown(ctx, hsID, data)
		if err != nil {
			return queue.SplitterFile{}, false, workerproc.Upstream(hsID, fmt.Errorf("ocr %s: %w", row.FileName, err))
		}
		res.Type = classify.DocType(markdown)
	} else {
		markdown = doc.Markdown()
	}

	stem := util.FileStem(strings.TrimSuffix(row.FileName, filepath.Ext(row.FileName)))
	mdKey := hsID + "/" + stem + ".md"
	if err := object.PutBytes(ctx, p.Store, p.MarkdownBucket, mdKey, []byte(markdown)); err != nil {
		return queue.SplitterFile{}, false, workerproc.Upstream(hsID, err)
	}
	mdLink := object.JoinLink(p.MarkdownBucket, mdKey)
	if err := p.Emails.UpdateClassification(ctx, row.ID, res.Type, res.Rendering, mdLink); err != nil {
		return queue.SplitterFile{}, false, workerproc.Upstream(hsID, err)
	}
	if res.Type == emails.TypeUnknown {
		return queue.SplitterFile{}, false, p.markFailed(ctx, hsID, row.ID)
	}

	return queue.SplitterFile{
		ID:           row.ID,
		FileName:     row.FileName,
		FilePath:     object.JoinLink(bucket, key),
		FileType:     string(res.Type),
		ClassifyType: string(res.Rendering),
		MarkdownLink: mdLink,
	}, true, nil
}

func (p *Pipeline) markFailed(ctx context.Context, hsID string, id int64) error {
	if err := p.Emails.UpdateStatus(ctx, id, emails.StatusFailed); err != nil && !errors.Is(err, emails.ErrStatusRegression) {
		return workerproc.Upstream(hsID, err)
	}
	return nil
}
