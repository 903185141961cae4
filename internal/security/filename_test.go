package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.csv", "report.csv"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\alice\report.pdf`, "report.pdf"},
		{"a\x00b\nc.txt", "abc.txt"},
		{"what?.txt", "what_.txt"},
		{"  spaced.txt  ", "spaced.txt"},
		{"..", ""},
		{"dir/", ""},
		{"", ""},
		{"€ rates.xlsx", "€ rates.xlsx"},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFileNameTruncates(t *testing.T) {
	long := strings.Repeat("é", 300) + ".pdf"
	got := SanitizeFileName(long)
	if len(got) > MaxFileNameLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxFileNameLength)
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Errorf("Extension lost: %q", got[len(got)-8:])
	}
	if !utf8.ValidString(got) {
		t.Error("Truncation split a rune")
	}
}
