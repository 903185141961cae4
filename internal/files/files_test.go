package files

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Rorqualx/proxydl/internal/types"
)

func sample() []*DownloadedFile {
	return []*DownloadedFile{
		{Seq: 1, FileName: "logo.png", URL: "https://example.com/logo.png"},
		{Seq: 2, FileName: "report-2024.CSV", URL: "https://example.com/export?id=1"},
		{Seq: 3, FileName: "report-2025.xlsx", URL: "https://example.com/export?id=2"},
	}
}

func TestFilters(t *testing.T) {
	regex, err := WithNameMatching(`^report-\d+\.`)
	if err != nil {
		t.Fatalf("WithNameMatching() error = %v", err)
	}
	glob, err := WithGlob("report-*.{csv,xlsx}")
	if err != nil {
		t.Fatalf("WithGlob() error = %v", err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"none", None(), []int64{1, 2, 3}},
		{"name", WithName("logo.png"), []int64{1}},
		{"name is exact", WithName("logo"), nil},
		{"regex", regex, []int64{2, 3}},
		{"extension case-insensitive", WithExtension("csv"), []int64{2}},
		{"extension with dot", WithExtension(".xlsx"), []int64{3}},
		{"glob is case-sensitive", glob, []int64{3}},
	}

	d := NewDownloads(sample())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Files(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("Files() returned %d files, want %d", len(got), len(tt.want))
			}
			for i, f := range got {
				if f.Seq != tt.want[i] {
					t.Errorf("Files()[%d].Seq = %d, want %d", i, f.Seq, tt.want[i])
				}
			}
		})
	}
}

func TestInvalidPatterns(t *testing.T) {
	if _, err := WithNameMatching("("); err == nil {
		t.Error("Expected error for invalid regex")
	}
	if _, err := WithGlob("[a-"); err == nil {
		t.Error("Expected error for invalid glob")
	}
}

func TestFirstDownloadedFile(t *testing.T) {
	d := NewDownloads(sample())

	f, err := d.FirstDownloadedFile("#export", time.Second, WithExtension("xlsx"))
	if err != nil {
		t.Fatalf("FirstDownloadedFile() error = %v", err)
	}
	if f.FileName != "report-2025.xlsx" {
		t.Errorf("FileName = %q", f.FileName)
	}

	f, err = d.FirstDownloadedFile("#export", time.Second, nil)
	if err != nil || f.Seq != 1 {
		t.Errorf("nil filter should return first arrival, got %v, %v", f, err)
	}
}

func TestFirstDownloadedFileNoMatch(t *testing.T) {
	d := NewDownloads(sample())

	_, err := d.FirstDownloadedFile("#export", 2*time.Second, WithExtension("pdf"))
	if !errors.Is(err, types.ErrNoFilesDownloaded) {
		t.Fatalf("error = %v, want ErrNoFilesDownloaded", err)
	}

	var nfe *types.NoFilesDownloadedError
	if !errors.As(err, &nfe) {
		t.Fatal("Expected *types.NoFilesDownloadedError")
	}
	if nfe.Label != "#export" || nfe.Timeout != 2*time.Second {
		t.Errorf("Unexpected context: %+v", nfe)
	}
	if !strings.Contains(nfe.Filter, "pdf") {
		t.Errorf("Filter description = %q, want it to mention pdf", nfe.Filter)
	}
	if len(nfe.Seen) != 3 {
		t.Errorf("Seen = %v, want 3 names", nfe.Seen)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	list := sample()
	d := NewDownloads(list)
	list[0] = &DownloadedFile{Seq: 99}

	if d.Size() != 3 {
		t.Errorf("Size() = %d, want 3", d.Size())
	}
	if d.All()[0].Seq != 1 {
		t.Error("Snapshot should not observe changes to the source slice")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		expr    string
		file    string
		match   bool
		wantErr bool
	}{
		{"", "anything.bin", true, false},
		{"name:a.txt", "a.txt", true, false},
		{"ext:pdf", "x.PDF", true, false},
		{"regex:^x", "y.pdf", false, false},
		{"glob:*.zip", "a.zip", true, false},
		{"size:10", "", false, true},
		{"pdf", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := f.Match(&DownloadedFile{FileName: tt.file}); got != tt.match {
				t.Errorf("Match(%q) = %v, want %v", tt.file, got, tt.match)
			}
		})
	}
}
