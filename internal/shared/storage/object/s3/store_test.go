package s3

import "testing"

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "hs-1/hsmt.pdf", want: "hs-1/hsmt.pdf"},
		{name: "simple prefix", prefix: "root", key: "hs-1/hsmt.pdf", want: "root/hs-1/hsmt.pdf"},
		{name: "prefix trailing slash", prefix: "root/", key: "hs-1/hsmt.pdf", want: "root/hs-1/hsmt.pdf"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/hs-1/hsmt.pdf", want: "root/hs-1/hsmt.pdf"},
		{name: "nested prefix", prefix: "root/sub", key: "hs-1/hsmt.pdf", want: "root/sub/hs-1/hsmt.pdf"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}
