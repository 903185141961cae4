// Package files holds captured download records and the filters that select them.
package files

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rorqualx/proxydl/internal/types"
)

// DownloadedFile is an immutable record of a response classified as a file.
type DownloadedFile struct {
	ID          uuid.UUID   `json:"id"`
	Seq         int64       `json:"seq"`
	URL         string      `json:"url"`
	FileName    string      `json:"fileName"`
	ContentType string      `json:"contentType,omitempty"`
	Size        int64       `json:"size"`
	Path        string      `json:"path"`
	Headers     http.Header `json:"headers,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Extension returns the lower-cased file name extension without the dot.
func (f *DownloadedFile) Extension() string {
	ext := path.Ext(f.FileName)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// String returns a short description for diagnostics.
func (f *DownloadedFile) String() string {
	return fmt.Sprintf("%s (%d bytes, %s)", f.FileName, f.Size, f.URL)
}

// Downloads is a snapshot of captured files in arrival order.
// Later appends to the capturing filter do not affect an existing snapshot.
type Downloads struct {
	files []*DownloadedFile
}

// NewDownloads returns a snapshot over a copy of list.
func NewDownloads(list []*DownloadedFile) Downloads {
	cp := make([]*DownloadedFile, len(list))
	copy(cp, list)
	return Downloads{files: cp}
}

// Size returns the number of captured files.
func (d Downloads) Size() int {
	return len(d.files)
}

// All returns the captured files.
func (d Downloads) All() []*DownloadedFile {
	cp := make([]*DownloadedFile, len(d.files))
	copy(cp, d.files)
	return cp
}

// Files returns captured files matching filter, in arrival order.
func (d Downloads) Files(filter Filter) []*DownloadedFile {
	if filter == nil {
		filter = None()
	}
	var out []*DownloadedFile
	for _, f := range d.files {
		if filter.Match(f) {
			out = append(out, f)
		}
	}
	return out
}

// FirstDownloadedFile returns the earliest file matching filter.
// label and timeout only enrich the error when nothing matches.
func (d Downloads) FirstDownloadedFile(label string, timeout time.Duration, filter Filter) (*DownloadedFile, error) {
	if filter == nil {
		filter = None()
	}
	matched := d.Files(filter)
	if len(matched) > 0 {
		return matched[0], nil
	}

	seen := make([]string, 0, len(d.files))
	for _, f := range d.files {
		seen = append(seen, f.FileName)
	}
	return nil, &types.NoFilesDownloadedError{
		Label:   label,
		Timeout: timeout,
		Filter:  filter.Description(),
		Seen:    seen,
	}
}

// String implements fmt.Stringer.
func (d Downloads) String() string {
	names := make([]string, 0, len(d.files))
	for _, f := range d.files {
		names = append(names, f.FileName)
	}
	return fmt.Sprintf("downloads=%d [%s]", len(d.files), strings.Join(names, ", "))
}
