package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
)

// El builds an element; attrs are name/value pairs.
func El(name string, attrs []string, children ...*Node) *Node {
	n := &Node{Name: xml.Name{Local: name}, Children: children}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
	}
	return n
}

// Val builds an element with a single w:val attribute.
func Val(name, val string) *Node {
	return El(name, []string{"w:val", val})
}

// Text builds a w:t that keeps surrounding spaces.
func Text(s string) *Node {
	return El("w:t", []string{"xml:space", "preserve"}, &Node{IsText: true, Text: s})
}

// RunStyle is inline formatting for a run.
type RunStyle struct {
	Bold       bool
	Italic     bool
	Underline  bool
	Code       bool
	SizeHalfPt int
}

// Run builds a w:r with style; line breaks in s become w:br.
func Run(s string, st RunStyle) *Node {
	var props []*Node
	if st.Code {
		props = append(props, El("w:rFonts", []string{"w:ascii", "Consolas", "w:hAnsi", "Consolas"}))
	}
	if st.Bold {
		props = append(props, El("w:b", nil))
	}
	if st.Italic {
		props = append(props, El("w:i", nil))
	}
	if st.Underline {
		props = append(props, Val("w:u", "single"))
	}
	if st.SizeHalfPt > 0 {
		props = append(props, Val("w:sz", strconv.Itoa(st.SizeHalfPt)))
	}
	r := El("w:r", nil)
	if len(props) > 0 {
		r.Children = append(r.Children, El("w:rPr", nil, props...))
	}
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			r.Children = append(r.Children, El("w:br", nil))
		}
		r.Children = append(r.Children, Text(line))
	}
	return r
}

// ParaProps configures a paragraph.
type ParaProps struct {
	Style    string
	Align    string
	IndentTw int
	NumID    int
	NumLevel int
}

// Paragraph builds a w:p from runs.
func Paragraph(pp ParaProps, runs ...*Node) *Node {
	var props []*Node
	if pp.Style != "" {
		props = append(props, Val("w:pStyle", pp.Style))
	}
	if pp.NumID > 0 {
		props = append(props, El("w:numPr", nil, Val("w:ilvl", strconv.Itoa(pp.NumLevel)), Val("w:numId", strconv.Itoa(pp.NumID))))
	}
	if pp.IndentTw > 0 {
		props = append(props, El("w:ind", []string{"w:left", strconv.Itoa(pp.IndentTw)}))
	}
	if pp.Align != "" {
		props = append(props, Val("w:jc", pp.Align))
	}
	p := El("w:p", nil)
	if len(props) > 0 {
		p.Children = append(p.Children, El("w:pPr", nil, props...))
	}
	p.Children = append(p.Children, runs...)
	return p
}

// Borders returns thin single borders for the given container
// (w:tblBorders or w:tcBorders).
func Borders(container string, inner bool) *Node {
	sides := []string{"w:top", "w:left", "w:bottom", "w:right"}
	if inner {
		sides = append(sides, "w:insideH", "w:insideV")
	}
	b := El(container, nil)
	for _, s := range sides {
		b.Children = append(b.Children, El(s, []string{"w:val", "single", "w:sz", "4", "w:space", "0", "w:color", "000000"}))
	}
	return b
}

// CellOptions configures a table cell.
type CellOptions struct {
	WidthTw int
	VMerge  string // "restart", "continue" or empty
	Center  bool
}

// Cell builds a bordered w:tc holding paragraphs.
func Cell(opt CellOptions, paras ...*Node) *Node {
	props := El("w:tcPr", nil)
	if opt.WidthTw > 0 {
		props.Children = append(props.Children, El("w:tcW", []string{"w:w", strconv.Itoa(opt.WidthTw), "w:type", "dxa"}))
	}
	props.Children = append(props.Children, Borders("w:tcBorders", false))
	switch opt.VMerge {
	case "restart":
		props.Children = append(props.Children, Val("w:vMerge", "restart"))
	case "continue":
		props.Children = append(props.Children, El("w:vMerge", nil))
	}
	if opt.Center {
		props.Children = append(props.Children, Val("w:vAlign", "center"))
	}
	if len(paras) == 0 {
		paras = []*Node{Paragraph(ParaProps{})}
	}
	return El("w:tc", nil, append([]*Node{props}, paras...)...)
}

// Table builds a bordered w:tbl from rows of cells.
func Table(gridTw []int, rows ...*Node) *Node {
	grid := El("w:tblGrid", nil)
	for _, w := range gridTw {
		grid.Children = append(grid.Children, El("w:gridCol", []string{"w:w", strconv.Itoa(w)}))
	}
	props := El("w:tblPr", nil,
		El("w:tblW", []string{"w:w", "0", "w:type", "auto"}),
		Borders("w:tblBorders", true),
	)
	return El("w:tbl", nil, append([]*Node{props, grid}, rows...)...)
}

// Row builds a w:tr.
func Row(cells ...*Node) *Node {
	return El("w:tr", nil, cells...)
}

const documentRoot = `<w:document xmlns:w="` + WMLNamespace + `" xmlns:r="` + RelNamespace + `">`

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/numbering.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.numbering+xml"/>
</Types>`

const packageRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/numbering" Target="numbering.xml"/>
</Relationships>`

// Numbering ids defined by the blank package.
const (
	BulletNumID  = 1
	DecimalNumID = 2
)

func numberingXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:numbering xmlns:w="` + WMLNamespace + `">`)
	for _, def := range []struct {
		id     int
		format string
	}{{BulletNumID, "bullet"}, {DecimalNumID, "decimal"}} {
		id, format := def.id, def.format
		b.WriteString(`<w:abstractNum w:abstractNumId="` + strconv.Itoa(id) + `">`)
		for lvl := 0; lvl < 9; lvl++ {
			text := "•"
			if format == "decimal" {
				text = "%" + strconv.Itoa(lvl+1) + "."
			}
			indent := strconv.Itoa(720 * (lvl + 1))
			b.WriteString(`<w:lvl w:ilvl="` + strconv.Itoa(lvl) + `"><w:start w:val="1"/><w:numFmt w:val="` + format +
				`"/><w:lvlText w:val="` + text + `"/><w:lvlJc w:val="left"/><w:pPr><w:ind w:left="` + indent +
				`" w:hanging="360"/></w:pPr></w:lvl>`)
		}
		b.WriteString(`</w:abstractNum>`)
	}
	for _, id := range []int{BulletNumID, DecimalNumID} {
		b.WriteString(`<w:num w:numId="` + strconv.Itoa(id) + `"><w:abstractNumId w:val="` + strconv.Itoa(id) + `"/></w:num>`)
	}
	b.WriteString(`</w:numbering>`)
	return b.String()
}

// NewDocument zips a minimal package whose body holds blocks.
func NewDocument(blocks ...*Node) ([]byte, error) {
	body := El("w:body", nil, blocks...)
	body.Children = append(body.Children, El("w:sectPr", nil,
		El("w:pgSz", []string{"w:w", "11906", "w:h", "16838"}),
		El("w:pgMar", []string{"w:top", "1134", "w:right", "1134", "w:bottom", "1134", "w:left", "1418", "w:header", "709", "w:footer", "709", "w:gutter", "0"}),
	))
	part := &Part{
		Root:      &Node{Name: xml.Name{Local: "w:document"}, Children: []*Node{body}},
		header:    `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`,
		rootStart: documentRoot,
		rootEnd:   `</w:document>`,
	}
	doc, err := part.Bytes()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	w := zip.NewWriter(&out)
	files := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypes)},
		{"_rels/.rels", []byte(packageRels)},
		{"word/_rels/document.xml.rels", []byte(documentRels)},
		{"word/numbering.xml", []byte(numberingXML())},
		{DocumentPart, doc},
	}
	for _, f := range files {
		dst, err := w.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := dst.Write(f.data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
