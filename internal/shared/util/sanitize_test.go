package util

import "testing"

func TestSanitizeFileName(t *testing.T) {
	if _, err := SanitizeFileName("../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	got, err := SanitizeFileName(" a/b\\c.pdf ")
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if got != "a_b_c.pdf" {
		t.Fatalf("got %q", got)
	}
}

func TestStripDiacritics(t *testing.T) {
	cases := map[string]string{
		"Hồ sơ mời thầu":          "Ho so moi thau",
		"Đáp ứng":                 "Dap ung",
		"Tiêu chuẩn đánh giá":     "Tieu chuan danh gia",
		"ASCII stays":             "ASCII stays",
		"Công ty Điện lực Hà Nội": "Cong ty Dien luc Ha Noi",
	}
	for in, want := range cases {
		if got := StripDiacritics(in); got != want {
			t.Fatalf("StripDiacritics(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFileStem(t *testing.T) {
	got := FileStem("Tổng công ty  Điện lực", "Gói thầu số 5/2024")
	if got != "Tong_cong_ty_Dien_luc_Goi_thau_so_52024" {
		t.Fatalf("got %q", got)
	}
	if FileStem("", "  ") != "" {
		t.Fatalf("expected empty stem")
	}
}
