// Package excel fills the HSMT checklist workbook.
package excel

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/shared/util"
)

// Section headers looked up in the template, in sheet order.
const (
	HeaderFinance    = "Năng lực tài chính"
	HeaderExperience = "Năng lực kinh nghiệm"
	HeaderHR         = "Nhân sự"
)

// Columns written for each requirement row.
const (
	colSTT = iota + 1
	colName
	colDescription
	colCompliance
	colDocument
)

// ErrHeaderNotFound is returned when a section header is missing from the template.
var ErrHeaderNotFound = errors.New("checklist header not found")

// Checklist is everything the workbook shows for one proposal.
type Checklist struct {
	Proposal   proposals.Proposal
	Finance    []proposals.FinanceRequirement
	Experience []proposals.ExperienceRequirement
	HR         []proposals.HRRequirement
}

// Line is one requirement row.
type Line struct {
	Name        string
	Description string
	Compliant   bool
	Document    string
}

// RowHeight grows with the number of lines in the tallest cell.
func RowHeight(texts ...string) float64 {
	n := 0
	for _, t := range texts {
		n = max(n, strings.Count(t, "\n"))
	}
	return max(100, float64(15*n+35))
}

// FinanceLines maps finance requirements; answered rows carry the verdict reason.
func FinanceLines(rows []proposals.FinanceRequirement) []Line {
	out := make([]Line, 0, len(rows))
	for _, r := range rows {
		desc := r.Description
		if r.Reason.Valid && strings.TrimSpace(r.Reason.String) != "" {
			desc = strings.TrimSpace(desc + "\n" + r.Reason.String)
		}
		out = append(out, Line{
			Name:        r.Requirement,
			Description: desc,
			Compliant:   r.ComplianceConfirmation.Valid && r.ComplianceConfirmation.String == proposals.Compliant,
			Document:    r.DocumentName,
		})
	}
	return out
}

// ExperienceLines maps experience requirements.
func ExperienceLines(rows []proposals.ExperienceRequirement) []Line {
	out := make([]Line, 0, len(rows))
	for _, r := range rows {
		out = append(out, Line{Name: r.Requirement, Description: r.Description, Document: r.DocumentName})
	}
	return out
}

// HRLines merges rows by position; each detail becomes one bullet line.
func HRLines(rows []proposals.HRRequirement) []Line {
	index := map[string]int{}
	var out []Line
	var bullets [][]string
	for _, r := range rows {
		key := strings.ToLower(strings.Join(strings.Fields(r.Position), " "))
		i, ok := index[key]
		if !ok {
			name := r.Position
			if q := strings.TrimSpace(r.Quantity); q != "" && q != "0" {
				name += " (SL: " + q + ")"
			}
			i = len(out)
			index[key] = i
			out = append(out, Line{Name: name, Document: r.DocumentName})
			bullets = append(bullets, nil)
		}
		for _, d := range r.Details {
			b := "- " + strings.TrimSpace(d.Name)
			if desc := strings.TrimSpace(d.Description); desc != "" {
				b += ": " + desc
			}
			bullets[i] = append(bullets[i], b)
		}
	}
	for i := range out {
		out[i].Description = strings.Join(bullets[i], "\n")
	}
	return out
}

// headerFields maps a lowercased column-A label prefix to its value.
func headerFields(p proposals.Proposal) []struct{ key, value string } {
	return []struct{ key, value string }{
		{"hình thức lựa chọn", p.SelectionMethod},
		{"tên gói thầu", p.ProposalName},
		{"bên mời thầu", p.InvestorName},
		{"chủ đầu tư", p.InvestorName},
		{"ngày phát hành", p.ReleaseDate},
		{"tên dự án", p.Project},
		{"thời điểm đóng thầu", p.ClosingTime},
	}
}

// Render fills template with c and returns the workbook bytes.
func Render(template []byte, c Checklist) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(template))
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	style, err := f.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	sections := []struct {
		header string
		lines  []Line
	}{
		{HeaderFinance, FinanceLines(c.Finance)},
		{HeaderExperience, ExperienceLines(c.Experience)},
		{HeaderHR, HRLines(c.HR)},
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	at := make([]int, len(sections))
	for i, s := range sections {
		if at[i], err = findHeader(rows, s.header); err != nil {
			return nil, err
		}
	}
	// Bottom-up so inserted rows never shift a header still to be filled.
	order := []int{0, 1, 2}
	sort.Slice(order, func(a, b int) bool { return at[order[a]] > at[order[b]] })
	for _, i := range order {
		if err := fillSection(f, sheet, style, i+1, at[i], sections[i].lines); err != nil {
			return nil, err
		}
	}
	if err := patchHeader(f, sheet, c.Proposal); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// findHeader returns the 1-based row whose column A contains header.
func findHeader(rows [][]string, header string) (int, error) {
	want := strings.ToLower(header)
	for r, row := range rows {
		if len(row) > 0 && strings.Contains(strings.ToLower(strings.TrimSpace(row[0])), want) {
			return r + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrHeaderNotFound, header)
}

func fillSection(f *excelize.File, sheet string, style, section, row int, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	if err := f.InsertRows(sheet, row+1, len(lines)); err != nil {
		return err
	}
	for i, l := range lines {
		r := row + 1 + i
		marker := ""
		if l.Compliant {
			marker = "x"
		}
		values := map[int]string{
			colSTT:         strconv.Itoa(section) + "." + strconv.Itoa(i+1),
			colName:        l.Name,
			colDescription: l.Description,
			colCompliance:  marker,
			colDocument:    l.Document,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col, r)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		first, _ := excelize.CoordinatesToCellName(colSTT, r)
		last, _ := excelize.CoordinatesToCellName(colDocument, r)
		if err := f.SetCellStyle(sheet, first, last, style); err != nil {
			return err
		}
		if err := f.SetRowHeight(sheet, r, RowHeight(l.Name, l.Description)); err != nil {
			return err
		}
	}
	return nil
}

func patchHeader(f *excelize.File, sheet string, p proposals.Proposal) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	fields := headerFields(p)
	for r, row := range rows {
		if len(row) == 0 {
			continue
		}
		label := strings.TrimSpace(row[0])
		lower := strings.ToLower(label)
		for _, fd := range fields {
			if !strings.HasPrefix(lower, fd.key) || strings.TrimSpace(fd.value) == "" {
				continue
			}
			if i := strings.Index(label, ":"); i >= 0 {
				label = label[:i]
			}
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			if err := f.SetCellValue(sheet, cell, label+": "+fd.value); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// FileName is Checklist_HSMT_<investor>_<proposal>_<stamp>.xlsx.
func FileName(p proposals.Proposal, stamp string) string {
	return "Checklist_HSMT_" + util.FileStem(p.InvestorName, p.ProposalName) + "_" + stamp + ".xlsx"
}
