package chapters

import (
	"context"
	"os"
	"strings"
	"testing"
)

const sampleMarkdown = `# HỒ SƠ MỜI THẦU
Mục lục: Chương III. Tiêu chuẩn đánh giá trang 20
# Chương I. Chỉ dẫn nhà thầu
nội dung chương một
## Chương II: Bảng dữ liệu đấu thầu
nội dung chương hai
   CHƯƠNG III. TIÊU CHUẨN ĐÁNH GIÁ HỒ SƠ DỰ THẦU
1. Năng lực tài chính
2. Kinh nghiệm
`

func TestDetectMarkdownSignals(t *testing.T) {
	lines := SplitLines(sampleMarkdown)
	candidates := CandidatesMarkdown(lines)
	if len(candidates) != 4 {
		t.Fatalf("candidates = %+v", candidates)
	}
	if c := candidates[0]; c.Method != MethodInline || c.Confidence != mdInlineBase {
		t.Fatalf("toc candidate = %+v", c)
	}
	if c := candidates[1]; c.Method != MethodHeading || c.Confidence < 0.89 || c.Position != 3 {
		t.Fatalf("h1 candidate = %+v", c)
	}
	if c := candidates[2]; c.Confidence < 0.84 || c.Confidence > 0.86 {
		t.Fatalf("h2 candidate = %+v", c)
	}
	// inline 0.5 + caps 0.1 + indent 0.1
	if c := candidates[3]; c.Confidence < 0.69 || c.Position != 7 {
		t.Fatalf("indented caps candidate = %+v", c)
	}

	got := DetectMarkdown(lines)
	if len(got) != 3 || got[0].Position != 3 || got[2].Number != 3 {
		t.Fatalf("detected = %+v", got)
	}
}

func TestSegmentMarkdownWritesChapterLines(t *testing.T) {
	dir := t.TempDir()
	res, err := SegmentMarkdown(context.Background(), sampleMarkdown, dir, "hsmt", EvaluationKeyword)
	if err != nil {
		t.Fatalf("SegmentMarkdown: %v", err)
	}
	if len(res.Parts) != 1 {
		t.Fatalf("parts = %+v", res.Parts)
	}
	data, err := os.ReadFile(res.Parts[0].Path)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(strings.TrimSpace(text), "CHƯƠNG III") || !strings.Contains(text, "2. Kinh nghiệm") {
		t.Fatalf("part text = %q", text)
	}
	if strings.Contains(text, "chương hai") {
		t.Fatalf("part leaked previous chapter: %q", text)
	}
}

const plainMarkdown = `HỒ SƠ MỜI THẦU
MỤC LỤC
Chương I. Chỉ dẫn nhà thầu ........ 3
Chương II. Bảng dữ liệu đấu thầu ........ 10
Chương III. Tiêu chuẩn đánh giá 20
Chương I. Chỉ dẫn nhà thầu
nội dung chương một
CHƯƠNG II. BẢNG DỮ LIỆU ĐẤU THẦU
nội dung chương hai
Chương III. Tiêu chuẩn đánh giá hồ sơ dự thầu
1. Năng lực tài chính
`

func TestDetectMarkdownAcceptsPlainChapterLines(t *testing.T) {
	got := DetectMarkdown(SplitLines(plainMarkdown))
	if len(got) != 3 {
		t.Fatalf("detected = %+v", got)
	}
	for i, want := range []int{6, 8, 10} {
		if got[i].Position != want || got[i].Number != i+1 {
			t.Fatalf("chapter %d = %+v, want line %d", i+1, got[i], want)
		}
	}

	res, err := SegmentMarkdown(context.Background(), plainMarkdown, t.TempDir(), "hsmt", EvaluationKeyword)
	if err != nil {
		t.Fatalf("SegmentMarkdown: %v", err)
	}
	if len(res.Parts) != 1 {
		t.Fatalf("parts = %+v", res.Parts)
	}
	data, _ := os.ReadFile(res.Parts[0].Path)
	if !strings.HasPrefix(string(data), "Chương III. Tiêu chuẩn đánh giá hồ sơ dự thầu") {
		t.Fatalf("part text = %q", data)
	}
}

func TestDetectMarkdownPrefersMarkedHeadingOverPlainRepeat(t *testing.T) {
	lines := SplitLines(`Chương I. Chỉ dẫn nhà thầu
# Chương I. Chỉ dẫn nhà thầu
nội dung
Chương 2
nội dung
Trong câu có nhắc Chương 3. Tiêu chuẩn đánh giá
`)
	got := DetectMarkdown(lines)
	if len(got) != 2 || got[0].Position != 2 || got[1].Position != 4 || got[1].Number != 2 {
		t.Fatalf("detected = %+v", got)
	}
}
