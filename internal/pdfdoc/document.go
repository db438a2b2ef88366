package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Default page size in points when MediaBox cannot be resolved (US Letter).
const (
	defaultWidth  = 612.0
	defaultHeight = 792.0
)

// Line is one visual text line with its dominant formatting.
type Line struct {
	Text  string
	Size  float64
	Bold  bool
	MinX  float64
	MaxX  float64
	Y     float64
	Fonts []string
}

// CenterX returns the horizontal midpoint of the line.
func (l Line) CenterX() float64 {
	return (l.MinX + l.MaxX) / 2
}

// Page is one PDF page with its text lines and raster coverage.
type Page struct {
	Number    int
	Width     float64
	Height    float64
	Lines     []Line
	Text      string
	ImageArea float64
}

// ImageRatio is the share of the page covered by raster images, capped at 1.
func (p Page) ImageRatio() float64 {
	area := p.Width * p.Height
	if area <= 0 {
		return 0
	}
	return math.Min(1, p.ImageArea/area)
}

// Document is the parsed form of one PDF.
type Document struct {
	Pages []Page
}

// Text joins every page's text with form feeds.
func (d *Document) Text() string {
	parts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\f")
}

// ReadFile parses the PDF at path.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Read(data)
}

// Read parses an in-memory PDF into pages with line layout.
func Read(data []byte) (doc *Document, err error) {
	if len(data) == 0 {
		return nil, errors.New("empty pdf data")
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	total := reader.NumPage()
	doc = &Document{Pages: make([]Page, 0, total)}
	for i := 1; i <= total; i++ {
		doc.Pages = append(doc.Pages, readPage(reader.Page(i), i))
	}
	return doc, nil
}

// PlainText returns the concatenated text layer of an in-memory PDF.
func PlainText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func readPage(p pdf.Page, number int) Page {
	page := Page{Number: number, Width: defaultWidth, Height: defaultHeight}
	if p.V.IsNull() {
		return page
	}
	if w, h, ok := mediaBox(p.V); ok {
		page.Width, page.Height = w, h
	}
	page.ImageArea = imageArea(p)
	page.Lines = pageLines(p)

	texts := make([]string, 0, len(page.Lines))
	for _, l := range page.Lines {
		texts = append(texts, l.Text)
	}
	page.Text = strings.Join(texts, "\n")
	if strings.TrimSpace(page.Text) == "" {
		if plain, err := p.GetPlainText(nil); err == nil {
			page.Text = strings.TrimSpace(plain)
		}
	}
	return page
}

func mediaBox(v pdf.Value) (float64, float64, bool) {
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h, true
			}
		}
		v = v.Key("Parent")
	}
	return 0, 0, false
}

// imageArea sums the pixel footprint of image XObjects, treating one pixel
// as one point.
func imageArea(p pdf.Page) float64 {
	xobjects := p.Resources().Key("XObject")
	if xobjects.IsNull() {
		return 0
	}
	var total float64
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		total += obj.Key("Width").Float64() * obj.Key("Height").Float64()
	}
	return total
}

func pageLines(p pdf.Page) (lines []Line) {
	defer func() {
		if r := recover(); r != nil {
			lines = nil
		}
	}()
	return GroupLines(p.Content().Text)
}

// GroupLines clusters positioned glyph runs into visual lines, top to bottom.
func GroupLines(texts []pdf.Text) []Line {
	if len(texts) == 0 {
		return nil
	}
	sorted := append([]pdf.Text(nil), texts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > lineTolerance(sorted[i], sorted[j]) {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var out []Line
	var group []pdf.Text
	flush := func() {
		if len(group) > 0 {
			out = append(out, buildLine(group))
			group = group[:0]
		}
	}
	for _, t := range sorted {
		if len(group) > 0 && math.Abs(group[0].Y-t.Y) > lineTolerance(group[0], t) {
			flush()
		}
		group = append(group, t)
	}
	flush()

	kept := out[:0]
	for _, l := range out {
		if strings.TrimSpace(l.Text) != "" {
			kept = append(kept, l)
		}
	}
	return kept
}

func lineTolerance(a, b pdf.Text) float64 {
	size := math.Max(a.FontSize, b.FontSize)
	if size <= 0 {
		return 2
	}
	return size * 0.4
}

func buildLine(group []pdf.Text) Line {
	sort.SliceStable(group, func(i, j int) bool { return group[i].X < group[j].X })
	var sb strings.Builder
	line := Line{MinX: group[0].X, Y: group[0].Y}
	seenFont := map[string]bool{}
	boldChars, totalChars := 0, 0
	prevEnd := group[0].X
	for i, t := range group {
		if i > 0 && t.X-prevEnd > math.Max(t.FontSize, 1)*0.25 && !strings.HasSuffix(sb.String(), " ") {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.S)
		prevEnd = t.X + t.W
		if t.FontSize > line.Size {
			line.Size = t.FontSize
		}
		if end := t.X + t.W; end > line.MaxX {
			line.MaxX = end
		}
		n := len([]rune(strings.TrimSpace(t.S)))
		totalChars += n
		if IsBoldFont(t.Font) {
			boldChars += n
		}
		if t.Font != "" && !seenFont[t.Font] {
			seenFont[t.Font] = true
			line.Fonts = append(line.Fonts, t.Font)
		}
	}
	line.Text = strings.Join(strings.Fields(sb.String()), " ")
	line.Bold = totalChars > 0 && boldChars*2 >= totalChars
	return line
}

// IsBoldFont reports whether a font name denotes a bold face.
func IsBoldFont(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "bold") || strings.Contains(lower, "black") || strings.Contains(lower, "heavy")
}
