// Package classify decides the kind of a bidding document and whether its
// PDF carries a usable text layer.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/pdfdoc"
)

const (
	minPageChars       = 100
	maxImageRatio      = 0.30
	imagePageThreshold = 0.5
)

var (
	hsmtPhrase  = "hồ sơ mời thầu"
	tbmtPhrase  = "thông báo mời thầu"
	hsktPattern = regexp.MustCompile(`k[ỹĩ] thuật|yêu cầu về k[ỹĩ] thuật`)
)

// Result is the classifier outcome for one file.
type Result struct {
	Type      emails.DocType
	Rendering emails.Rendering
	// ImagePages counts pages judged to be scans.
	ImagePages int
	Pages      int
}

// IsImagePage reports whether a page has too little text or too much raster.
func IsImagePage(p pdfdoc.Page) bool {
	return utf8.RuneCountInString(strings.TrimSpace(p.Text)) < minPageChars || p.ImageRatio() > maxImageRatio
}

// Rendering returns IMAGE when more than half of the pages look scanned.
func Rendering(pages []pdfdoc.Page) (emails.Rendering, int) {
	if len(pages) == 0 {
		return emails.RenderingImage, 0
	}
	scanned := 0
	for _, p := range pages {
		if IsImagePage(p) {
			scanned++
		}
	}
	if float64(scanned)/float64(len(pages)) > imagePageThreshold {
		return emails.RenderingImage, scanned
	}
	return emails.RenderingText, scanned
}

// DocType scans lowercased text for the phrases that name each kind.
func DocType(text string) emails.DocType {
	lower := strings.ToLower(norm.NFC.String(text))
	switch {
	case strings.Contains(lower, hsmtPhrase):
		return emails.TypeHSMT
	case strings.Contains(lower, tbmtPhrase):
		return emails.TypeTBMT
	case hsktPattern.MatchString(lower):
		return emails.TypeHSKT
	default:
		return emails.TypeUnknown
	}
}

// Document classifies a parsed PDF using its own text layer.
func Document(doc *pdfdoc.Document) Result {
	rendering, scanned := Rendering(doc.Pages)
	return Result{
		Type:       DocType(doc.Text()),
		Rendering:  rendering,
		ImagePages: scanned,
		Pages:      len(doc.Pages),
	}
}
