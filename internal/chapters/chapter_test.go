package chapters

import (
	"math/rand"
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestParseNumber(t *testing.T) {
	cases := map[string]int{
		"Chương III. Tiêu chuẩn đánh giá": 3,
		"CHƯƠNG 12: Phụ lục":              12,
		"chương iv - Biểu mẫu":            4,
		"Chương XIV":                      14,
		"Mục 3. Không phải chương":        0,
	}
	for in, want := range cases {
		if got := ParseNumber(in); got != want {
			t.Errorf("ParseNumber(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSequenceFilterKeepsEarliestRepeat(t *testing.T) {
	in := []Chapter{
		{Title: "Chương I. Chỉ dẫn", Position: 3},
		{Title: "Không có số", Position: 4},
		{Title: "Chương II. Bảng dữ liệu", Position: 9},
		{Title: "Chương II. Bảng dữ liệu", Position: 10},
		{Title: "Chương III. Tiêu chuẩn đánh giá", Position: 20},
	}
	got := SequenceFilter(in)
	if len(got) != 3 {
		t.Fatalf("kept %d, want 3: %+v", len(got), got)
	}
	if got[1].Position != 9 || got[2].Number != 3 {
		t.Fatalf("unexpected selection: %+v", got)
	}
}

func TestRangesCoverEveryPageOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		total := 1 + rng.Intn(120)
		var chapters []Chapter
		pos := 0
		for pos < total {
			pos += 1 + rng.Intn(15)
			if pos > total {
				break
			}
			chapters = append(chapters, Chapter{Title: "c", Position: pos})
		}
		if len(chapters) == 0 {
			chapters = []Chapter{{Title: "c", Position: 1}}
		}

		ranges := Ranges(chapters, total)
		if len(ranges) != len(chapters) {
			t.Fatalf("trial %d: %d ranges for %d chapters", trial, len(ranges), len(chapters))
		}
		covered := make([]int, total+2)
		for _, r := range ranges {
			if r.Len() <= 0 {
				t.Fatalf("trial %d: empty range %+v", trial, r)
			}
			for p := r.Start; p < r.End; p++ {
				covered[p]++
			}
		}
		for p := 1; p <= total; p++ {
			if covered[p] != 1 {
				t.Fatalf("trial %d: page %d covered %d times (total %d, ranges %+v)", trial, p, covered[p], total, ranges)
			}
		}
		if covered[0] != 0 || covered[total+1] != 0 {
			t.Fatalf("trial %d: range spills outside [1..%d]", trial, total)
		}
	}
}

func TestRangesSkipsOutOfOrderAndOverflow(t *testing.T) {
	ranges := Ranges([]Chapter{{Position: 5}, {Position: 5}, {Position: 3}, {Position: 8}, {Position: 50}}, 10)
	if len(ranges) != 2 {
		t.Fatalf("ranges = %+v", ranges)
	}
	if ranges[0].Start != 1 || ranges[0].End != 8 || ranges[1].End != 11 {
		t.Fatalf("ranges = %+v", ranges)
	}
}

func TestFilterByKeywordIgnoresCaseAndNormalization(t *testing.T) {
	decomposed := norm.NFD.String("CHƯƠNG III. TIÊU CHUẨN ĐÁNH GIÁ HỒ SƠ DỰ THẦU")
	ranges := []Range{
		{Title: "Chương I. Chỉ dẫn nhà thầu"},
		{Title: decomposed},
	}
	got := FilterByKeyword(ranges, EvaluationKeyword)
	if len(got) != 1 || got[0].Title != decomposed {
		t.Fatalf("filtered = %+v", got)
	}
}
