package ocr

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// RenderDPI is a 3.5x zoom over the 72 dpi PDF user space.
const RenderDPI = 72 * 3.5

// Rasterizer renders PDF pages to images. Pages are 0-based.
type Rasterizer interface {
	PageCount() int
	Page(i int) (image.Image, error)
	Close() error
}

type fitzDoc struct {
	doc *fitz.Document
}

// OpenFitz opens an in-memory PDF with MuPDF.
func OpenFitz(data []byte) (Rasterizer, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rendering: %w", err)
	}
	return &fitzDoc{doc: doc}, nil
}

func (f *fitzDoc) PageCount() int { return f.doc.NumPage() }

func (f *fitzDoc) Page(i int) (image.Image, error) {
	img, err := f.doc.ImageDPI(i, RenderDPI)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", i+1, err)
	}
	return img, nil
}

func (f *fitzDoc) Close() error { return f.doc.Close() }
