package chapters

import (
	"context"
	"errors"

	"hsmt-backend/internal/pdfdoc"
)

var (
	// ErrNoChapters is returned when no chapter heading was found.
	ErrNoChapters = errors.New("no chapters detected")
	// ErrNoEvaluationChapter is returned when no chapter title matches the keyword.
	ErrNoEvaluationChapter = errors.New("evaluation chapter not found")
)

// Result carries every intermediate product of a segmentation.
type Result struct {
	Chapters []Chapter
	Ranges   []Range
	Selected []Range
	Parts    []Part
}

// SegmentPDF detects chapters in doc, keeps those whose title contains
// keyword and copies their pages from src into dir.
func SegmentPDF(ctx context.Context, doc *pdfdoc.Document, src, dir, stem, keyword string) (Result, error) {
	var res Result
	res.Chapters = DetectPDF(doc.Pages)
	if len(res.Chapters) == 0 {
		return res, ErrNoChapters
	}
	res.Ranges = Ranges(res.Chapters, len(doc.Pages))
	res.Selected = FilterByKeyword(res.Ranges, keyword)
	if len(res.Selected) == 0 {
		return res, ErrNoEvaluationChapter
	}
	parts, err := SplitPDF(ctx, src, dir, stem, res.Selected)
	if err != nil {
		return res, err
	}
	res.Parts = parts
	return res, nil
}

// SegmentMarkdown is SegmentPDF for Markdown renditions; positions are lines.
func SegmentMarkdown(ctx context.Context, text, dir, stem, keyword string) (Result, error) {
	var res Result
	lines := SplitLines(text)
	res.Chapters = DetectMarkdown(lines)
	if len(res.Chapters) == 0 {
		return res, ErrNoChapters
	}
	res.Ranges = Ranges(res.Chapters, len(lines))
	res.Selected = FilterByKeyword(res.Ranges, keyword)
	if len(res.Selected) == 0 {
		return res, ErrNoEvaluationChapter
	}
	parts, err := SplitMarkdown(ctx, lines, dir, stem, res.Selected)
	if err != nil {
		return res, err
	}
	res.Parts = parts
	return res, nil
}
