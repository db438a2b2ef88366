package chapters

import (
	"math"
	"strings"

	"hsmt-backend/internal/pdfdoc"
)

// PDF scoring weights.
const (
	patternBase     = 0.7
	keywordBase     = 0.5
	largeFontSize   = 14.0
	largeBonus      = 0.2
	boldBonus       = 0.1
	centerBonus     = 0.2
	topThirdBonus   = 0.1
	midThirdBonus   = 0.05
	centerTolerance = 0.25
	passScore       = 3
)

// DetectPDF scores every line of every page and returns the best candidate
// per page that passes the formatting gate and the sequence filter.
func DetectPDF(pages []pdfdoc.Page) []Chapter {
	var best []Chapter
	for _, page := range pages {
		c, ok := bestOnPage(page)
		if !ok {
			continue
		}
		if gateScore(c) >= passScore {
			best = append(best, c)
		}
	}
	return SequenceFilter(best)
}

// CandidatesPDF returns the highest-confidence candidate of each page
// without gating.
func CandidatesPDF(pages []pdfdoc.Page) []Chapter {
	var out []Chapter
	for _, page := range pages {
		if c, ok := bestOnPage(page); ok {
			out = append(out, c)
		}
	}
	return out
}

func gateScore(c Chapter) int {
	score := 0
	if c.centered {
		score++
	}
	if c.bold || c.large || c.Method == MethodFormatting {
		score += 2
	}
	return score
}

func bestOnPage(page pdfdoc.Page) (Chapter, bool) {
	var best Chapter
	found := false
	for i, line := range page.Lines {
		c, ok := scoreLine(page, i, line)
		if !ok {
			continue
		}
		if !found || c.Confidence > best.Confidence {
			best = c
			found = true
		}
	}
	return best, found
}

func scoreLine(page pdfdoc.Page, idx int, line pdfdoc.Line) (Chapter, bool) {
	text := normalize(strings.TrimSpace(line.Text))
	if text == "" {
		return Chapter{}, false
	}
	large := line.Size >= largeFontSize
	formatted := large || line.Bold

	var c Chapter
	switch {
	case chapterPattern.MatchString(text):
		c = Chapter{Title: text, Confidence: patternBase, Method: MethodPattern}
	case formatted && keywordPattern.MatchString(text):
		c = Chapter{Title: joinTitle(page.Lines, idx), Confidence: keywordBase, Method: MethodFormatting}
	default:
		return Chapter{}, false
	}

	c.Position = page.Number
	c.large = large
	c.bold = line.Bold
	if large {
		c.Confidence += largeBonus
	}
	if line.Bold {
		c.Confidence += boldBonus
	}
	if page.Width > 0 && math.Abs(line.CenterX()-page.Width/2) <= page.Width*centerTolerance {
		c.centered = true
		c.Confidence += centerBonus
	}
	if page.Height > 0 {
		// PDF y grows upward.
		switch fromTop := page.Height - line.Y; {
		case fromTop <= page.Height/3:
			c.Confidence += topThirdBonus
		case fromTop <= 2*page.Height/3:
			c.Confidence += midThirdBonus
		}
	}
	c.Confidence = math.Min(1, c.Confidence)
	c.Number = ParseNumber(c.Title)
	return c, true
}

// joinTitle appends the following formatted line when the heading line
// carries only the chapter marker, e.g. "CHƯƠNG III" / "TIÊU CHUẨN ĐÁNH GIÁ".
func joinTitle(lines []pdfdoc.Line, idx int) string {
	title := normalize(strings.TrimSpace(lines[idx].Text))
	if idx+1 >= len(lines) {
		return title
	}
	next := lines[idx+1]
	if next.Bold || next.Size >= largeFontSize {
		if extra := normalize(strings.TrimSpace(next.Text)); extra != "" {
			return title + ". " + extra
		}
	}
	return title
}
