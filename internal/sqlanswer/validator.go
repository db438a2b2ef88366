package sqlanswer

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"hsmt-backend/internal/proposals"
)

// Grouped numbers (1.234.567 or 1,234,567, optional decimals) or plain digits.
var numberPattern = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?`)

// ParseNumbers returns every recognizable number in s in order of appearance.
// Dot and comma are both accepted as thousands separators; when both appear
// the last one is the decimal mark.
func ParseNumbers(s string) []float64 {
	var out []float64
	for _, tok := range numberPattern.FindAllString(s, -1) {
		if v, ok := parseNumber(tok); ok {
			out = append(out, v)
		}
	}
	return out
}

func parseNumber(tok string) (float64, bool) {
	dots, commas := strings.Count(tok, "."), strings.Count(tok, ",")
	var clean string
	switch {
	case dots > 0 && commas > 0:
		last := max(strings.LastIndex(tok, "."), strings.LastIndex(tok, ","))
		intPart := strings.NewReplacer(".", "", ",", "").Replace(tok[:last])
		clean = intPart + "." + tok[last+1:]
	case dots+commas > 1:
		clean = strings.NewReplacer(".", "", ",", "").Replace(tok)
	case dots+commas == 1:
		sep := strings.IndexAny(tok, ".,")
		if len(tok)-sep-1 == 3 {
			clean = tok[:sep] + tok[sep+1:]
		} else {
			clean = tok[:sep] + "." + tok[sep+1:]
		}
	default:
		clean = tok
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatVND renders v with dot thousands and comma decimals.
func FormatVND(v float64) string {
	neg := v < 0
	v = math.Abs(v)
	whole := math.Floor(v)
	frac := v - whole
	digits := strconv.FormatFloat(whole, 'f', 0, 64)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac > 1e-9 {
		f := strconv.FormatFloat(frac, 'f', 2, 64)
		f = strings.TrimRight(strings.TrimPrefix(f, "0."), "0")
		if f != "" {
			b.WriteByte(',')
			b.WriteString(f)
		}
	}
	return b.String()
}

// Comparison is the pair the validator judged on.
type Comparison struct {
	Actual    float64
	Threshold float64
}

// Compare takes the two largest numbers of answer, in order of appearance,
// as (actual, threshold).
func Compare(answer string) (Comparison, bool) {
	nums := ParseNumbers(answer)
	if len(nums) < 2 {
		return Comparison{}, false
	}
	idx := make([]int, len(nums))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return nums[idx[a]] > nums[idx[b]] })
	first, second := idx[0], idx[1]
	if first > second {
		first, second = second, first
	}
	return Comparison{Actual: nums[first], Threshold: nums[second]}, true
}

// Label is the verdict implied by the comparison.
func (c Comparison) Label() string {
	if c.Actual >= c.Threshold {
		return proposals.Compliant
	}
	return proposals.NonCompliant
}

// Reason renders the canonical explanation.
func (c Comparison) Reason() string {
	if c.Actual >= c.Threshold {
		return "Giá trị thực tế của nhà thầu là " + FormatVND(c.Actual) +
			" VND, lớn hơn hoặc bằng mức yêu cầu " + FormatVND(c.Threshold) + " VND nên nhà thầu đáp ứng yêu cầu."
	}
	return "Giá trị thực tế của nhà thầu là " + FormatVND(c.Actual) +
		" VND, nhỏ hơn mức yêu cầu " + FormatVND(c.Threshold) + " VND nên nhà thầu không đáp ứng yêu cầu."
}

// ValidateVerdict overwrites the label and reason of v when the numbers in
// its sql_answer contradict it. It reports whether v was changed.
func ValidateVerdict(v proposals.Verdict) (proposals.Verdict, bool) {
	v.ComplianceConfirmation = normalizeLabel(v.ComplianceConfirmation)
	cmp, ok := Compare(v.SQLAnswer)
	if !ok {
		return v, false
	}
	want := cmp.Label()
	if v.ComplianceConfirmation == want {
		if strings.TrimSpace(v.Reason) == "" {
			v.Reason = cmp.Reason()
		}
		return v, false
	}
	v.ComplianceConfirmation = want
	v.Reason = cmp.Reason()
	return v, true
}

func normalizeLabel(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.HasPrefix(l, "không"):
		return proposals.NonCompliant
	case strings.HasPrefix(l, "đáp ứng"):
		return proposals.Compliant
	}
	return strings.TrimSpace(label)
}
