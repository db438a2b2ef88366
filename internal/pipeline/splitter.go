package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"hsmt-backend/internal/chapters"
	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/pdfdoc"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/shared/util"
	"hsmt-backend/internal/tasks"
	"hsmt-backend/internal/workerproc"
)

// FileTypeEvaluation marks a split "Tiêu chuẩn đánh giá" chapter in MarkdownMessage.
const FileTypeEvaluation = "TCDG"

const uploadConcurrency = 4

// SplitterStage consumes chapter_splitter_queue.
func (p *Pipeline) SplitterStage() Stage {
	return Stage{
		Name:     StageChapterSplitter,
		Queue:    p.queue(queue.ChapterSplitter),
		Step:     histories.StepChapterSplitter,
		AckEarly: true,
		Parse: func(body []byte) (Job, error) {
			var msg queue.ChapterSplitterMessage
			if _, err := workerproc.ParseMessage(body, &msg); err != nil {
				return Job{}, err
			}
			return Job{
				HSID:   msg.ID,
				Fields: map[string]any{"files": len(msg.Files)},
				Input:  msg,
				Run:    func(ctx context.Context) error { return p.SplitChapters(ctx, msg) },
			}, nil
		},
	}
}

// SplitChapters cuts the evaluation chapter out of every HSMT file, records
// each part as a document detail and queues extraction over all Markdown.
// A message whose HSMT files already have details is a replay and does
// nothing.
func (p *Pipeline) SplitChapters(ctx context.Context, msg queue.ChapterSplitterMessage) error {
	hsID := msg.ID
	bucket := msg.Bucket
	if bucket == "" {
		bucket = p.Bucket
	}

	done, err := p.alreadySplit(ctx, msg)
	if err != nil {
		return workerproc.Upstream(hsID, err)
	}
	if done {
		telemetry.Info("pipeline.splitter.replayed", map[string]any{"hs_id": hsID, "files": len(msg.Files)})
		return nil
	}

	dir, err := os.MkdirTemp(p.TmpDir, "split-")
	if err != nil {
		return workerproc.Upstream(hsID, err)
	}
	defer os.RemoveAll(dir)

	var files []queue.MarkdownFile
	hasHSMT := false
	for i, f := range msg.Files {
		tasks.ReportProgress(ctx, map[string]any{"step": "split", "file": i + 1, "files": len(msg.Files)})
		files = append(files, queue.MarkdownFile{
			Bucket:       bucket,
			FileName:     f.FileName,
			FileType:     f.FileType,
			FilePath:     f.FilePath,
			MarkdownLink: f.MarkdownLink,
		})
		if f.FileType != string(emails.TypeHSMT) {
			continue
		}
		hasHSMT = true
		parts, err := p.splitFile(ctx, hsID, bucket, dir, f)
		if err != nil {
			return err
		}
		files = append(files, parts...)
	}
	if !hasHSMT {
		return workerproc.Data(hsID, MsgNoHSMT, nil)
	}

	out := queue.MarkdownMessage{ID: hsID, Files: files}
	if err := p.publish(ctx, queue.Markdown, out); err != nil {
		return workerproc.Upstream(hsID, err)
	}
	return nil
}

// alreadySplit reports whether every HSMT file of msg has detail rows.
func (p *Pipeline) alreadySplit(ctx context.Context, msg queue.ChapterSplitterMessage) (bool, error) {
	seen := 0
	for _, f := range msg.Files {
		if f.FileType != string(emails.TypeHSMT) {
			continue
		}
		details, err := p.Emails.ListDetails(ctx, f.ID)
		if err != nil {
			return false, err
		}
		if len(details) == 0 {
			return false, nil
		}
		seen++
	}
	return seen > 0, nil
}

// artifact is one uploaded chapter part.
type artifact struct {
	part   chapters.Part
	link   string
	linkMD string
}

func (p *Pipeline) splitFile(ctx context.Context, hsID, bucket, dir string, f queue.SplitterFile) ([]queue.MarkdownFile, error) {
	fields := map[string]any{"hs_id": hsID, "email_content_id": f.ID, "file_name": f.FileName, "classify_type": f.ClassifyType}
	stem := util.FileStem(strings.TrimSuffix(f.FileName, filepath.Ext(f.FileName)))
	fileDir := filepath.Join(dir, stem)
	if err := os.MkdirAll(fileDir, 0o755); err != nil {
		return nil, workerproc.Upstream(hsID, err)
	}

	var (
		res  chapters.Result
		doc  *pdfdoc.Document
		err  error
		text = f.ClassifyType == string(emails.RenderingText)
	)
	if text {
		srcBucket, srcKey := object.SplitLink(f.FilePath)
		if srcBucket == "" {
			srcBucket = bucket
		}
		src, derr := object.Download(ctx, p.Store, srcBucket, srcKey, fileDir)
		if derr != nil {
			return nil, workerproc.Upstream(hsID, derr)
		}
		data, rerr := os.ReadFile(src)
		if rerr != nil {
			return nil, workerproc.Upstream(hsID, rerr)
		}
		if doc, err = p.readPDF(data); err != nil {
			return nil, workerproc.Data(hsID, MsgNoChapter, err)
		}
		res, err = p.segmentPDF(ctx, doc, src, fileDir, stem)
	} else {
		mdBucket, mdKey := object.SplitLink(f.MarkdownLink)
		if mdBucket == "" {
			mdBucket = p.MarkdownBucket
		}
		data, rerr := object.ReadAll(ctx, p.Store, mdBucket, mdKey)
		if rerr != nil {
			return nil, workerproc.Upstream(hsID, rerr)
		}
		res, err = chapters.SegmentMarkdown(ctx, string(data), fileDir, stem, chapters.EvaluationKeyword)
	}
	if err != nil {
		if errors.Is(err, chapters.ErrNoChapters) || errors.Is(err, chapters.ErrNoEvaluationChapter) {
			telemetry.Warn("pipeline.splitter.no_chapter", telemetry.Merge(fields, map[string]any{
				"error": err.Error(), "chapters": len(res.Chapters),
			}))
			return nil, workerproc.Data(hsID, MsgNoChapter, err)
		}
		return nil, workerproc.Upstream(hsID, err)
	}
	telemetry.Info("pipeline.splitter.segmented", telemetry.Merge(fields, map[string]any{
		"chapters": len(res.Chapters), "selected": len(res.Selected), "parts": len(res.Parts),
	}))

	arts := make([]artifact, len(res.Parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, part := range res.Parts {
		g.Go(func() error {
			a, err := p.uploadPart(gctx, hsID, part, doc)
			if err != nil {
				return err
			}
			arts[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, workerproc.Upstream(hsID, err)
	}

	out := make([]queue.MarkdownFile, 0, len(arts))
	for _, a := range arts {
		detail := emails.DocumentDetail{
			EmailContentID: f.ID,
			FileName:       a.part.Name,
			Link:           a.link,
			LinkMD:         a.linkMD,
		}
		inserted, err := p.Emails.InsertDetailIfAbsent(ctx, &detail)
		if err != nil {
			return nil, workerproc.Upstream(hsID, err)
		}
		if !inserted {
			telemetry.Debug("pipeline.splitter.detail_exists", telemetry.Merge(fields, map[string]any{"part": a.part.Name}))
		}
		out = append(out, queue.MarkdownFile{
			Bucket:           p.MarkdownBucket,
			FileName:         a.part.Name + ".md",
			FileType:         FileTypeEvaluation,
			FilePath:         a.link,
			MarkdownLink:     a.linkMD,
			DocumentDetailID: detail.ID,
		})
	}
	return out, nil
}

// uploadPart stores one chapter part. PDF parts go to the source bucket with
// their Markdown beside them in the Markdown bucket; Markdown parts only
// have the latter.
func (p *Pipeline) uploadPart(ctx context.Context, hsID string, part chapters.Part, doc *pdfdoc.Document) (artifact, error) {
	mdKey := hsID + "/chapters/" + part.Name + ".md"
	a := artifact{part: part, linkMD: object.JoinLink(p.MarkdownBucket, mdKey)}

	if doc == nil {
		if err := object.PutFile(ctx, p.Store, p.MarkdownBucket, mdKey, part.Path); err != nil {
			return a, err
		}
		a.link = a.linkMD
		return a, nil
	}

	pdfKey := hsID + "/chapters/" + part.Name + ".pdf"
	if err := object.PutFile(ctx, p.Store, p.Bucket, pdfKey, part.Path); err != nil {
		return a, err
	}
	a.link = object.JoinLink(p.Bucket, pdfKey)
	md := partMarkdown(doc, part)
	if err := object.PutBytes(ctx, p.Store, p.MarkdownBucket, mdKey, []byte(md)); err != nil {
		return a, err
	}
	return a, nil
}

// partMarkdown renders the pages of doc that the part copied.
func partMarkdown(doc *pdfdoc.Document, part chapters.Part) string {
	count, err := pdfdoc.PageCount(part.Path)
	if err != nil || count <= 0 {
		count = len(doc.Pages)
	}
	sub := &pdfdoc.Document{}
	for _, pg := range doc.Pages {
		if pg.Number >= part.Start && pg.Number < part.Start+count {
			sub.Pages = append(sub.Pages, pg)
		}
	}
	return sub.Markdown()
}
