package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"hsmt-backend/internal/llm"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/tasks"
)

const (
	// DefaultBatch pages are concatenated per vision call.
	DefaultBatch = 5
	// LargeBatch is used for documents over LargeDocPages pages.
	LargeBatch    = 3
	LargeDocPages = 20
	// MaxImageBytes caps one encoded batch.
	MaxImageBytes = 20 << 20

	minSide = 256
)

// ErrEmpty is returned when the vision model produced no text for any page.
var ErrEmpty = errors.New("ocr produced no text")

// BatchSize returns the pages per call for a document of total pages.
func BatchSize(total int) int {
	if total > LargeDocPages {
		return LargeBatch
	}
	return DefaultBatch
}

// Bridge converts image-only PDFs to Markdown through a vision model.
type Bridge struct {
	Vision   llm.VisionClient
	Prompt   string
	Open     func(data []byte) (Rasterizer, error)
	MaxBytes int
}

// NewBridge uses MuPDF rendering and the default size cap.
func NewBridge(vision llm.VisionClient, prompt string) *Bridge {
	return &Bridge{Vision: vision, Prompt: prompt, Open: OpenFitz, MaxBytes: MaxImageBytes}
}

// ToMarkdown renders every page, sends batches to the vision model and joins the results.
func (b *Bridge) ToMarkdown(ctx context.Context, hsID string, data []byte) (string, error) {
	doc, err := b.Open(data)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	total := doc.PageCount()
	size := BatchSize(total)
	batches := (total + size - 1) / size
	var parts []string
	for start := 0; start < total; start += size {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := min(start+size, total)
		pages := make([]image.Image, 0, end-start)
		for i := start; i < end; i++ {
			img, err := doc.Page(i)
			if err != nil {
				return "", err
			}
			pages = append(pages, Preprocess(img))
		}
		text, err := b.transcribe(ctx, pages)
		if err != nil {
			return "", fmt.Errorf("ocr pages %d-%d: %w", start+1, end, err)
		}
		telemetry.Info("ocr.batch.completed", map[string]any{
			"hs_id":      hsID,
			"page_start": start + 1,
			"page_end":   end,
			"chars":      len(text),
		})
		tasks.ReportProgress(ctx, map[string]any{
			"step": "ocr", "batch": start/size + 1, "batches": batches, "page_end": end, "pages": total,
		})
		if strings.TrimSpace(text) != "" {
			parts = append(parts, strings.TrimSpace(text))
		}
	}
	if len(parts) == 0 {
		return "", ErrEmpty
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

// transcribe sends pages as one image, halving the batch while the encoded
// image exceeds MaxBytes. A single page over the cap is downscaled.
func (b *Bridge) transcribe(ctx context.Context, pages []image.Image) (string, error) {
	payload, err := EncodePNG(Concat(pages))
	if err != nil {
		return "", err
	}
	if b.MaxBytes > 0 && len(payload) > b.MaxBytes {
		if len(pages) > 1 {
			mid := len(pages) / 2
			first, err := b.transcribe(ctx, pages[:mid])
			if err != nil {
				return "", err
			}
			second, err := b.transcribe(ctx, pages[mid:])
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(first) + "\n\n---\n\n" + strings.TrimSpace(second), nil
		}
		bounds := pages[0].Bounds()
		if bounds.Dx()/2 >= minSide && bounds.Dy()/2 >= minSide {
			half := imaging.Resize(pages[0], bounds.Dx()/2, 0, imaging.Lanczos)
			return b.transcribe(ctx, []image.Image{half})
		}
	}
	return b.Vision.Transcribe(ctx, b.Prompt, payload)
}
