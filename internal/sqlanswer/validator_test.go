package sqlanswer

import (
	"strings"
	"testing"

	"hsmt-backend/internal/proposals"
)

func TestParseNumbers(t *testing.T) {
	cases := []struct {
		in   string
		want []float64
	}{
		{"2.808.300.000.001 VND", []float64{2808300000001}},
		{"2,808,300,000", []float64{2808300000}},
		{"1,5 lần", []float64{1.5}},
		{"1.234.567,89", []float64{1234567.89}},
		{"năm 2021 đến 2023", []float64{2021, 2023}},
		{"không có số", nil},
	}
	for _, tc := range cases {
		got := ParseNumbers(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("ParseNumbers(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("ParseNumbers(%q)[%d] = %v, want %v", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestFormatVND(t *testing.T) {
	if got := FormatVND(2808300000001); got != "2.808.300.000.001" {
		t.Fatalf("got %q", got)
	}
	if got := FormatVND(999); got != "999" {
		t.Fatalf("got %q", got)
	}
	if got := FormatVND(1234.5); got != "1.234,5" {
		t.Fatalf("got %q", got)
	}
}

// Two numbers a, b in an answer always decide the label, whatever the model said.
func TestValidateVerdictSoundness(t *testing.T) {
	cases := []struct {
		answer string
		label  string
		want   string
	}{
		{"Doanh thu 2.808.300.000.001 so với yêu cầu 2.808.300.000", proposals.NonCompliant, proposals.Compliant},
		{"Doanh thu 2.808.300.000.001 so với yêu cầu 2.808.300.000", proposals.Compliant, proposals.Compliant},
		{"Doanh thu 1.000.000 so với yêu cầu 5.000.000", proposals.Compliant, proposals.NonCompliant},
		{"Doanh thu 1.000.000 so với yêu cầu 5.000.000", proposals.NonCompliant, proposals.NonCompliant},
		{"Giá trị 5.000.000 bằng yêu cầu 5.000.000", proposals.NonCompliant, proposals.Compliant},
		{"Tài sản ròng 10,5 so với 10", "không đáp ứng", proposals.Compliant},
		{"Lợi nhuận 7 và 9", "đáp ứng", proposals.NonCompliant},
	}
	for _, tc := range cases {
		got, _ := ValidateVerdict(proposals.Verdict{
			FinanceRequirementID: 1, SQLAnswer: tc.answer, ComplianceConfirmation: tc.label,
		})
		if got.ComplianceConfirmation != tc.want {
			t.Errorf("%q labelled %q: got %q, want %q", tc.answer, tc.label, got.ComplianceConfirmation, tc.want)
		}
		if got.Reason == "" {
			t.Errorf("%q: reason not filled", tc.answer)
		}
	}
}

func TestValidateVerdictRewritesContradiction(t *testing.T) {
	v := proposals.Verdict{
		FinanceRequirementID:   3,
		SQLAnswer:              "Doanh thu bình quân 3 năm là 2.500.000.000 VND, yêu cầu tối thiểu 2.808.300.000 VND",
		ComplianceConfirmation: proposals.Compliant,
		Reason:                 "Nhà thầu đáp ứng",
	}
	got, changed := ValidateVerdict(v)
	if !changed {
		t.Fatal("expected the verdict to be rewritten")
	}
	if got.ComplianceConfirmation != proposals.NonCompliant {
		t.Fatalf("label = %q", got.ComplianceConfirmation)
	}
	if !strings.Contains(got.Reason, "2.500.000.000") || !strings.Contains(got.Reason, "2.808.300.000") {
		t.Fatalf("reason does not cite both numbers: %q", got.Reason)
	}
}

func TestValidateVerdictKeepsSingleNumber(t *testing.T) {
	v := proposals.Verdict{SQLAnswer: "Đã nộp 3 báo cáo", ComplianceConfirmation: " Đáp ứng ", Reason: "ok"}
	got, changed := ValidateVerdict(v)
	if changed || got.ComplianceConfirmation != proposals.Compliant || got.Reason != "ok" {
		t.Fatalf("unexpected %+v changed=%v", got, changed)
	}
}
