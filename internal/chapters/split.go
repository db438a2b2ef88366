package chapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hsmt-backend/internal/pdfdoc"
	"hsmt-backend/internal/shared/util"
)

// Range is a half-open span [Start, End) of pages or lines.
type Range struct {
	Title  string
	Number int
	Start  int
	End    int
}

// Len returns the number of pages or lines covered.
func (r Range) Len() int { return r.End - r.Start }

// GetTitle lets Range satisfy the keyword filter.
func (r Range) GetTitle() string { return r.Title }

// Ranges turns ordered chapters into contiguous half-open ranges over
// [1, total]. The first range starts at 1 and the last ends at total+1, so
// the union covers every page exactly once.
func Ranges(chapters []Chapter, total int) []Range {
	if total <= 0 {
		return nil
	}
	var starts []Chapter
	last := 0
	for _, c := range chapters {
		if c.Position <= last || c.Position > total {
			continue
		}
		starts = append(starts, c)
		last = c.Position
	}
	if len(starts) == 0 {
		return nil
	}
	out := make([]Range, len(starts))
	for i, c := range starts {
		start := c.Position
		if i == 0 {
			start = 1
		}
		end := total + 1
		if i+1 < len(starts) {
			end = starts[i+1].Position
		}
		out[i] = Range{Title: c.Title, Number: c.Number, Start: start, End: end}
	}
	return out
}

// Part is one split chapter written to disk.
type Part struct {
	Name  string
	Title string
	Start int
	Path  string
}

// GetTitle lets Part satisfy the keyword filter.
func (p Part) GetTitle() string { return p.Title }

// PartName builds the artifact name for a chapter of a source file.
func PartName(stem string, r Range) string {
	return util.FileStem(stem, fmt.Sprintf("chuong_%d", r.Number))
}

// SplitPDF copies the pages of each range from src into new files under dir.
func SplitPDF(ctx context.Context, src, dir, stem string, ranges []Range) ([]Part, error) {
	parts := make([]Part, 0, len(ranges))
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Len() <= 0 {
			continue
		}
		name := PartName(stem, r)
		out := filepath.Join(dir, name+".pdf")
		if err := pdfdoc.ExtractPages(src, out, r.Start, r.End-1); err != nil {
			return nil, err
		}
		parts = append(parts, Part{Name: name, Title: r.Title, Start: r.Start, Path: out})
	}
	return parts, nil
}

// SplitMarkdown writes the lines of each range to new .md files under dir.
func SplitMarkdown(ctx context.Context, lines []string, dir, stem string, ranges []Range) ([]Part, error) {
	parts := make([]Part, 0, len(ranges))
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Len() <= 0 {
			continue
		}
		end := r.End - 1
		if end > len(lines) {
			end = len(lines)
		}
		name := PartName(stem, r)
		out := filepath.Join(dir, name+".md")
		body := strings.Join(lines[r.Start-1:end], "\n") + "\n"
		if err := os.WriteFile(out, []byte(body), 0o644); err != nil {
			return nil, fmt.Errorf("write chapter %s: %w", name, err)
		}
		parts = append(parts, Part{Name: name, Title: r.Title, Start: r.Start, Path: out})
	}
	return parts, nil
}
