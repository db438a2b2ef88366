// Package word fills the technical response template from a requirement tree.
package word

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/render/docx"
	"hsmt-backend/internal/shared/util"
)

// ErrNoTable is returned when the template has no table to fill.
var ErrNoTable = errors.New("template has no table")

// Row is one filled table row.
type Row struct {
	Level       string
	Name        string
	Description string
	// Continued rows share the left columns with the row above.
	Continued bool
}

// Rows flattens roots depth-first; a node with several details yields one
// row per detail.
func Rows(roots []proposals.TechnicalNode) []Row {
	var out []Row
	for _, n := range proposals.WalkTechnical(roots) {
		details := n.Details
		if len(details) == 0 {
			details = []string{""}
		}
		for i, d := range details {
			out = append(out, Row{Level: n.Level, Name: n.Name, Description: strings.TrimSpace(d), Continued: i > 0})
		}
	}
	return out
}

// RenderTechnical returns template with its first table replaced by rows for roots.
func RenderTechnical(template []byte, roots []proposals.TechnicalNode) ([]byte, error) {
	pkg, err := docx.Open(template)
	if err != nil {
		return nil, err
	}
	part, err := pkg.Document()
	if err != nil {
		return nil, err
	}
	tbl := docx.Find(part.Root, "w:tbl")
	if tbl == nil {
		return nil, ErrNoTable
	}

	widths := gridWidths(tbl)
	kept := tbl.Children[:0]
	header := false
	for _, c := range tbl.Children {
		if c.Is("w:tr") {
			if header {
				continue
			}
			header = true
		}
		kept = append(kept, c)
	}
	tbl.Children = kept
	applyTableBorders(tbl)

	for _, r := range Rows(roots) {
		tbl.Children = append(tbl.Children, buildRow(r, widths))
	}

	if err := pkg.SetPart(docx.DocumentPart, part); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return pkg.Bytes()
}

func buildRow(r Row, widths []int) *docx.Node {
	merge := "restart"
	level, name := r.Level, r.Name
	if r.Continued {
		merge, level, name = "continue", "", ""
	}
	cell := func(i int, text, vMerge string) *docx.Node {
		opt := docx.CellOptions{VMerge: vMerge, Center: true}
		if i < len(widths) {
			opt.WidthTw = widths[i]
		}
		var runs []*docx.Node
		if text != "" {
			runs = append(runs, docx.Run(text, docx.RunStyle{}))
		}
		align := "center"
		if i == 2 {
			align = "both"
		}
		return docx.Cell(opt, docx.Paragraph(docx.ParaProps{Align: align}, runs...))
	}
	return docx.Row(
		cell(0, level, merge),
		cell(1, name, merge),
		cell(2, r.Description, ""),
	)
}

func gridWidths(tbl *docx.Node) []int {
	grid := tbl.Child("w:tblGrid")
	if grid == nil {
		return nil
	}
	var out []int
	for _, c := range grid.Children {
		if !c.Is("w:gridCol") {
			continue
		}
		w := 0
		for _, a := range c.Attr {
			if a.Name.Local == "w:w" {
				w, _ = strconv.Atoi(a.Value)
			}
		}
		out = append(out, w)
	}
	return out
}

// applyTableBorders replaces any table-level borders with thin single lines.
func applyTableBorders(tbl *docx.Node) {
	props := tbl.Child("w:tblPr")
	if props == nil {
		props = docx.El("w:tblPr", nil)
		tbl.Children = append([]*docx.Node{props}, tbl.Children...)
	}
	kept := props.Children[:0]
	for _, c := range props.Children {
		if !c.Is("w:tblBorders") {
			kept = append(kept, c)
		}
	}
	props.Children = append(kept, docx.Borders("w:tblBorders", true))
}

// FileName is TBDU_Kythuat_<investor>_<proposal>_<stamp>.docx.
func FileName(p proposals.Proposal, stamp string) string {
	return "TBDU_Kythuat_" + util.FileStem(p.InvestorName, p.ProposalName) + "_" + stamp + ".docx"
}
