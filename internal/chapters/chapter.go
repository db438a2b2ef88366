// Package chapters locates chapter headings in PDFs and Markdown and splits
// documents into per-chapter artifacts.
package chapters

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Method names the signal that produced a candidate.
type Method string

const (
	MethodPattern    Method = "pattern"
	MethodFormatting Method = "formatting"
	MethodHeading    Method = "heading"
	MethodInline     Method = "inline"
)

// Chapter is one detected heading. Position is a 1-based page number for
// PDFs and a 1-based line number for Markdown.
type Chapter struct {
	Title      string
	Position   int
	Confidence float64
	Method     Method
	Number     int

	centered bool
	bold     bool
	large    bool
	// standalone marks a Markdown line that begins with the chapter word.
	standalone bool
}

// EvaluationKeyword selects the evaluation-criteria chapter.
const EvaluationKeyword = "tiêu chuẩn đánh giá"

var (
	// "chuong" without diacritics shows up in OCR output and ASCII-only fonts.
	chapterPattern = regexp.MustCompile(`(?i)ch[ưu][ơo]ng\s+(\d+|[IVXLC]+)\s*[\.:\-]\s*\S+`)
	chapterNumber  = regexp.MustCompile(`(?i)ch[ưu][ơo]ng\s+(\d+|[IVXLC]+)\b`)
	keywordPattern = regexp.MustCompile(`(?i)\bch[ưu][ơo]ng\b`)
)

// normalize folds text to NFC so composed and decomposed Vietnamese compare equal.
func normalize(s string) string {
	return norm.NFC.String(s)
}

// ParseNumber extracts the chapter number from a heading such as
// "Chương III" or "CHƯƠNG 2". It returns 0 when none is present.
func ParseNumber(title string) int {
	m := chapterNumber.FindStringSubmatch(normalize(title))
	if m == nil {
		return 0
	}
	if n, err := strconv.Atoi(m[1]); err == nil {
		return n
	}
	return romanToInt(m[1])
}

func romanToInt(s string) int {
	values := map[byte]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100}
	s = strings.ToUpper(s)
	total := 0
	for i := 0; i < len(s); i++ {
		v, ok := values[s[i]]
		if !ok {
			return 0
		}
		if i+1 < len(s) && values[s[i+1]] > v {
			total -= v
		} else {
			total += v
		}
	}
	return total
}

// SequenceFilter keeps candidates that parse to a chapter number, in
// position order, dropping repeats of a number already seen. The earlier
// position wins a tie.
func SequenceFilter(candidates []Chapter) []Chapter {
	seen := map[int]bool{}
	lastPos := 0
	var out []Chapter
	for _, c := range candidates {
		n := c.Number
		if n == 0 {
			n = ParseNumber(c.Title)
		}
		if n <= 0 || seen[n] || c.Position <= lastPos {
			continue
		}
		seen[n] = true
		c.Number = n
		lastPos = c.Position
		out = append(out, c)
	}
	return out
}

// FilterByKeyword returns the chapters whose title contains keyword,
// ignoring case and Unicode normalization form.
func FilterByKeyword[T interface{ GetTitle() string }](items []T, keyword string) []T {
	needle := strings.ToLower(normalize(keyword))
	var out []T
	for _, it := range items {
		if strings.Contains(strings.ToLower(normalize(it.GetTitle())), needle) {
			out = append(out, it)
		}
	}
	return out
}

// GetTitle lets Chapter satisfy the keyword filter.
func (c Chapter) GetTitle() string { return c.Title }
