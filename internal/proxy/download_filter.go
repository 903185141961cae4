package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/classify"
	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/files"
	"github.com/Rorqualx/proxydl/internal/metrics"
	"github.com/Rorqualx/proxydl/internal/security"
)

// DownloadFilter records responses that look like file downloads.
//
// Records accumulate in arrival order while the filter is active. Reset
// clears them; a response that arrived before a Reset but finished spooling
// after it is dropped rather than leaking into the new baseline.
type DownloadFilter struct {
	Toggle

	folder       string
	maxBytes     int64
	maxResponses int
	rules        *classify.Manager

	mu         sync.Mutex
	generation uint64
	seq        int64
	files      []*files.DownloadedFile
	responses  []responseSummary
}

type responseSummary struct {
	method      string
	url         string
	status      int
	contentType string
	file        bool
}

// NewDownloadFilter returns an inactive DownloadFilter spooling into cfg.DownloadsFolder.
// A nil rules manager uses the embedded classification rules.
func NewDownloadFilter(cfg *config.Config, rules *classify.Manager) *DownloadFilter {
	if rules == nil {
		rules = classify.Static(classify.Default())
	}
	return &DownloadFilter{
		folder:       cfg.DownloadsFolder,
		maxBytes:     cfg.MaxDownloadBytes,
		maxResponses: cfg.MaxRecordedResponses,
		rules:        rules,
	}
}

// Reset clears captured files and response summaries.
// It takes the same lock as appends, so it is linearizable against them.
func (f *DownloadFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.files = nil
	f.responses = nil
}

// Downloads returns a snapshot of captured files.
func (f *DownloadFilter) Downloads() files.Downloads {
	f.mu.Lock()
	defer f.mu.Unlock()
	return files.NewDownloads(f.files)
}

// Size returns the number of captured files.
func (f *DownloadFilter) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// String describes the captured state for wait diagnostics.
func (f *DownloadFilter) String() string {
	return f.Downloads().String()
}

// ResponsesString lists intercepted responses since the last Reset.
func (f *DownloadFilter) ResponsesString() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.responses) == 0 {
		return "Intercepted 0 responses."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Intercepted %d responses:", len(f.responses))
	for i, r := range f.responses {
		fmt.Fprintf(&b, "\n  #%d  %s %s -> %d %s", i+1, r.method, r.url, r.status, r.contentType)
		if r.file {
			b.WriteString(" [file]")
		}
	}
	return b.String()
}

// Observe captures file responses. Request-phase exchanges are ignored.
func (f *DownloadFilter) Observe(ex *Exchange) {
	if ex.Phase != PhaseResponse || ex.Response == nil {
		return
	}
	resp := ex.Response
	req := ex.Request
	if req == nil {
		req = resp.Request
	}
	if req == nil || req.URL == nil {
		return
	}

	// Baseline as of arrival; a Reset from here on invalidates this capture.
	f.mu.Lock()
	gen := f.generation
	f.mu.Unlock()

	reqURL := req.URL
	isFile := req.Method != http.MethodHead &&
		f.rules.Get().IsFile(resp.StatusCode, resp.Header, reqURL.Path)
	f.recordResponse(gen, responseSummary{
		method:      req.Method,
		url:         security.RedactURL(reqURL.String()),
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		file:        isFile,
	})
	if !isFile || resp.Body == nil {
		return
	}

	file, err := f.capture(resp, reqURL)
	if err != nil {
		metrics.RecordDownloadDiscarded("error")
		log.Warn().
			Err(err).
			Str("url", security.RedactURL(reqURL.String())).
			Msg("Failed to capture download")
		return
	}
	if file == nil {
		return
	}

	f.mu.Lock()
	if f.generation != gen {
		f.mu.Unlock()
		metrics.RecordDownloadDiscarded("reset")
		os.RemoveAll(filepath.Dir(file.Path))
		log.Debug().Str("file", file.FileName).Msg("Discarded download captured before reset")
		return
	}
	f.seq++
	file.Seq = f.seq
	f.files = append(f.files, file)
	f.mu.Unlock()

	metrics.RecordDownloadCaptured()
	log.Info().
		Str("file", file.FileName).
		Int64("size", file.Size).
		Str("content_type", file.ContentType).
		Str("url", security.RedactURL(file.URL)).
		Msg("Download captured")
}

func (f *DownloadFilter) recordResponse(gen uint64, s responseSummary) {
	if f.maxResponses <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generation != gen {
		return
	}
	if len(f.responses) >= f.maxResponses {
		f.responses = f.responses[1:]
	}
	f.responses = append(f.responses, s)
}

// capture reads the body, hands the browser an identical stream and spools
// the decoded content to disk. It returns nil without error when the body is
// too large to capture.
func (f *DownloadFilter) capture(resp *http.Response, reqURL *url.URL) (*files.DownloadedFile, error) {
	rawURL := reqURL.String()
	original := resp.Body
	buf, err := io.ReadAll(io.LimitReader(original, f.maxBytes+1))
	if err != nil {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(buf), original), original}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(buf)) > f.maxBytes {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(buf), original), original}
		metrics.RecordDownloadDiscarded("too_large")
		log.Warn().
			Int64("max_bytes", f.maxBytes).
			Str("url", security.RedactURL(rawURL)).
			Msg("Download exceeds size limit, not captured")
		return nil, nil
	}
	resp.Body = readCloser{bytes.NewReader(buf), original}

	content, err := decodeBody(buf, resp.Header.Get("Content-Encoding"), f.maxBytes)
	if err != nil {
		return nil, err
	}

	contentType, ext := describeContent(resp.Header.Get("Content-Type"), content)
	name := fileName(resp, reqURL, ext)

	id := uuid.New()
	dir := filepath.Join(f.folder, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download folder: %w", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, content, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("write download: %w", err)
	}

	return &files.DownloadedFile{
		ID:          id,
		URL:         rawURL,
		FileName:    name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Path:        target,
		Headers:     security.RedactHeaders(resp.Header),
		Timestamp:   time.Now(),
	}, nil
}

// readCloser replays buffered bytes while closing the original body.
type readCloser struct {
	io.Reader
	io.Closer
}
