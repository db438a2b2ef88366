// Package pdftest writes small text PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Run is one line of text placed at (X, Y) in points from the bottom-left.
type Run struct {
	Text string
	Size float64
	Bold bool
	X, Y float64
}

// Image declares an unpainted image XObject of the given pixel size.
type Image struct {
	Width, Height int
}

// Page describes one page.
type Page struct {
	Runs   []Run
	Images []Image
}

// Line places text centered horizontally on a Letter page.
func Line(text string, size float64, bold bool, y float64) Run {
	width := float64(len(text)) * glyphWidth / 1000 * size
	return Run{Text: text, Size: size, Bold: bold, X: (612 - width) / 2, Y: y}
}

const glyphWidth = 556

// Build returns the bytes of a PDF with one page per entry of pages.
func Build(pages []Page) []byte {
	var objects []string
	add := func(body string) int {
		objects = append(objects, body)
		return len(objects)
	}

	widths := strings.TrimSpace(strings.Repeat(fmt.Sprintf("%d ", glyphWidth), 95))
	catalog := add("") // placeholder, filled below
	pagesRoot := add("")
	regular := add(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths))
	bold := add(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths))

	var kids []string
	for _, p := range pages {
		var content bytes.Buffer
		for _, r := range p.Runs {
			font := "F1"
			if r.Bold {
				font = "F2"
			}
			fmt.Fprintf(&content, "BT /%s %.1f Tf 1 0 0 1 %.2f %.2f Tm (%s) Tj ET\n", font, r.Size, r.X, r.Y, escape(r.Text))
		}
		contentID := add(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()))

		var xobjects []string
		for i, img := range p.Images {
			data := strings.Repeat("\x00", img.Width*img.Height)
			id := add(fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Length %d >>\nstream\n%s\nendstream",
				img.Width, img.Height, len(data), data))
			xobjects = append(xobjects, fmt.Sprintf("/Im%d %d 0 R", i+1, id))
		}
		resources := fmt.Sprintf("/Font << /F1 %d 0 R /F2 %d 0 R >>", regular, bold)
		if len(xobjects) > 0 {
			resources += fmt.Sprintf(" /XObject << %s >>", strings.Join(xobjects, " "))
		}
		pageID := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << %s >> /Contents %d 0 R >>",
			pagesRoot, resources, contentID))
		kids = append(kids, fmt.Sprintf("%d 0 R", pageID))
	}
	objects[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesRoot)
	objects[pagesRoot-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, catalog, xref)
	return out.Bytes()
}

// Write builds the PDF and stores it at path.
func Write(path string, pages []Page) error {
	return os.WriteFile(path, Build(pages), 0o644)
}

// TextPages returns n pages, each with a single body line.
func TextPages(n int, body func(page int) string) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Runs: []Run{{Text: body(i + 1), Size: 11, X: 72, Y: 700}}}
	}
	return pages
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
