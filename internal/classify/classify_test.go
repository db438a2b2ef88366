package classify

import (
	"strings"
	"testing"

	"golang.org/x/text/unicode/norm"

	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/pdfdoc"
	"hsmt-backend/internal/pdfdoc/pdftest"
)

func textPage(chars int) pdfdoc.Page {
	return pdfdoc.Page{Width: 612, Height: 792, Text: strings.Repeat("a", chars)}
}

func TestRendering(t *testing.T) {
	cases := []struct {
		name  string
		pages []pdfdoc.Page
		want  emails.Rendering
	}{
		{"all text", []pdfdoc.Page{textPage(500), textPage(300)}, emails.RenderingText},
		{"all short", []pdfdoc.Page{textPage(20), textPage(99), textPage(0)}, emails.RenderingImage},
		{"exactly half short", []pdfdoc.Page{textPage(20), textPage(200)}, emails.RenderingText},
		{"raster heavy", []pdfdoc.Page{
			{Width: 612, Height: 792, Text: strings.Repeat("a", 400), ImageArea: 612 * 792 * 0.5},
			{Width: 612, Height: 792, Text: strings.Repeat("a", 400), ImageArea: 612 * 792 * 0.31},
			textPage(400),
		}, emails.RenderingImage},
		{"no pages", nil, emails.RenderingImage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, _ := Rendering(tc.pages); got != tc.want {
				t.Fatalf("Rendering = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDocType(t *testing.T) {
	cases := map[string]emails.DocType{
		"HỒ SƠ MỜI THẦU Gói thầu số 01":           emails.TypeHSMT,
		norm.NFD.String("Hồ sơ mời thầu xây lắp"): emails.TypeHSMT,
		"THÔNG BÁO MỜI THẦU":                      emails.TypeTBMT,
		"Chương V. Yêu cầu về kỹ thuật":           emails.TypeHSKT,
		"thuyết minh kĩ thuật":                    emails.TypeHSKT,
		"Biên bản bàn giao":                       emails.TypeUnknown,
		"thông báo mời thầu kèm hồ sơ mời thầu":   emails.TypeHSMT,
	}
	for text, want := range cases {
		if got := DocType(text); got != want {
			t.Errorf("DocType(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestDocumentOnScannedPDF(t *testing.T) {
	data := pdftest.Build([]pdftest.Page{
		{Runs: []pdftest.Run{{Text: "scan", Size: 10, X: 72, Y: 700}}},
		{Runs: []pdftest.Run{{Text: "scan", Size: 10, X: 72, Y: 700}}},
	})
	doc, err := pdfdoc.Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	res := Document(doc)
	if res.Rendering != emails.RenderingImage || res.ImagePages != 2 || res.Type != emails.TypeUnknown {
		t.Fatalf("result = %+v", res)
	}
}
