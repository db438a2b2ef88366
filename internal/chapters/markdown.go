package chapters

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Markdown scoring weights.
const (
	mdHeadingBase = 0.8
	mdInlineBase  = 0.5
	mdH1Bonus     = 0.1
	mdH2Bonus     = 0.05
	mdCapsBonus   = 0.1
	mdIndentBonus = 0.1
	// mdStrongScore accepts a candidate on its signals alone. Weaker lines
	// count only when they start with the chapter word.
	mdStrongScore = 0.7
)

var (
	mdHeading       = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	mdInlinePattern = regexp.MustCompile(`(?i)ch[ưu][ơo]ng\s+(\d+|[IVXLC]+)\b\s*[\.:\-]?\s*.*`)
	mdChapterStart  = regexp.MustCompile(`(?i)^ch[ưu][ơo]ng\s`)
	mdChapterNumber = regexp.MustCompile(`(?i)^ch[ưu][ơo]ng\s+(\d+|[IVXLC]+)\b`)
	mdEmphasis      = strings.NewReplacer("**", "", "__", "", "*", "", "`", "")
	// mdTOCEntry matches a table-of-contents line: dot leaders or a trailing page number.
	mdTOCEntry = regexp.MustCompile(`(\.{3,}|…)|\s\d{1,4}\s*$`)
)

// CandidatesMarkdown scores every line that mentions a chapter.
func CandidatesMarkdown(lines []string) []Chapter {
	var out []Chapter
	for i, raw := range lines {
		if c, ok := scoreMarkdownLine(raw, i+1); ok {
			out = append(out, c)
		}
	}
	return out
}

// DetectMarkdown returns chapter headings ordered by line number. Lines
// with heading markers, caps or indentation are accepted outright; plain
// lines only when they start with the chapter word and do not look like a
// table-of-contents entry. For each chapter number the strongest line wins,
// the earlier one on a tie.
func DetectMarkdown(lines []string) []Chapter {
	best := map[int]Chapter{}
	for _, c := range CandidatesMarkdown(lines) {
		if c.Confidence+1e-9 < mdStrongScore && (!c.standalone || looksLikeTOC(c.Title)) {
			continue
		}
		if c.Number <= 0 {
			continue
		}
		if prev, ok := best[c.Number]; ok && prev.Confidence+1e-9 >= c.Confidence {
			continue
		}
		best[c.Number] = c
	}
	kept := make([]Chapter, 0, len(best))
	for _, c := range best {
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Position < kept[j].Position })
	return SequenceFilter(kept)
}

// SplitLines splits Markdown text into lines without trailing CRs.
func SplitLines(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func scoreMarkdownLine(raw string, lineNo int) (Chapter, bool) {
	line := normalize(raw)
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Chapter{}, false
	}

	var c Chapter
	if m := mdHeading.FindStringSubmatch(trimmed); m != nil {
		body := strings.TrimSpace(mdEmphasis.Replace(m[2]))
		if !mdChapterStart.MatchString(body) || !mdInlinePattern.MatchString(body) {
			return Chapter{}, false
		}
		c = Chapter{Title: body, Confidence: mdHeadingBase, Method: MethodHeading}
		switch len(m[1]) {
		case 1:
			c.Confidence += mdH1Bonus
		case 2:
			c.Confidence += mdH2Bonus
		}
	} else {
		body := strings.TrimSpace(mdEmphasis.Replace(trimmed))
		loc := mdInlinePattern.FindStringIndex(body)
		if loc == nil {
			return Chapter{}, false
		}
		c = Chapter{Title: strings.TrimSpace(body[loc[0]:]), Confidence: mdInlineBase, Method: MethodInline, standalone: loc[0] == 0}
	}

	if isAllCaps(c.Title) {
		c.Confidence += mdCapsBonus
	}
	if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
		c.Confidence += mdIndentBonus
	}
	c.Confidence = math.Min(1, c.Confidence)
	c.Position = lineNo
	c.Number = ParseNumber(c.Title)
	return c, true
}

// looksLikeTOC checks the text after "Chương N" so a bare "Chương 2" still counts.
func looksLikeTOC(title string) bool {
	rest := title
	if loc := mdChapterNumber.FindStringIndex(title); loc != nil {
		rest = title[loc[1]:]
	}
	return mdTOCEntry.MatchString(rest)
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return letters > 0
}
