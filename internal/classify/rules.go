// Package classify decides which intercepted HTTP responses are downloaded files.
package classify

import (
	"embed"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed classify.yaml
var defaultRulesFS embed.FS

// Rules holds response classification patterns.
type Rules struct {
	FileContentTypes    []string `yaml:"file_content_types"`
	IgnoredContentTypes []string `yaml:"ignored_content_types"`
	IgnoredPaths        []string `yaml:"ignored_paths"`
}

var (
	instance *Rules
	once     sync.Once
	loadErr  error
)

// Default returns the embedded rules.
func Default() *Rules {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load classification rules, using defaults")
			instance = fallbackRules()
		}
	})
	return instance
}

func load() (*Rules, error) {
	data, err := defaultRulesFS.ReadFile("classify.yaml")
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("file_content_types", len(r.FileContentTypes)).
		Int("ignored_content_types", len(r.IgnoredContentTypes)).
		Int("ignored_paths", len(r.IgnoredPaths)).
		Msg("Classification rules loaded")

	return r, nil
}

// Parse decodes and validates rules from YAML.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the rules are usable.
func (r *Rules) Validate() error {
	if len(r.FileContentTypes) == 0 {
		return fmt.Errorf("rules must list at least one file content type")
	}
	for _, p := range r.IgnoredPaths {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid ignored path pattern %q", p)
		}
	}
	return nil
}

func fallbackRules() *Rules {
	return &Rules{
		FileContentTypes: []string{
			"application/octet-stream",
			"application/pdf",
			"application/zip",
			"text/csv",
		},
		IgnoredContentTypes: []string{"text/html", "application/json"},
	}
}

// IsFile reports whether a response should be captured as a downloaded file.
func (r *Rules) IsFile(status int, header http.Header, path string) bool {
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return false
	}
	// No body, or only part of one.
	if status == http.StatusNoContent || status == http.StatusPartialContent {
		return false
	}
	if IsAttachment(header.Get("Content-Disposition")) {
		return true
	}

	for _, p := range r.IgnoredPaths {
		if ok, _ := doublestar.Match(p, strings.TrimPrefix(path, "/")); ok {
			return false
		}
	}

	ct := mediaType(header.Get("Content-Type"))
	if ct == "" {
		return false
	}
	if hasPrefix(r.IgnoredContentTypes, ct) {
		return false
	}
	return hasPrefix(r.FileContentTypes, ct)
}

// IsAttachment reports whether a Content-Disposition value marks a download.
func IsAttachment(disposition string) bool {
	if disposition == "" {
		return false
	}
	kind, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		// Fall back to a loose check for malformed headers seen in the wild.
		lower := strings.ToLower(disposition)
		return strings.HasPrefix(lower, "attachment") || strings.Contains(lower, "filename")
	}
	if kind == "attachment" {
		return true
	}
	_, hasName := params["filename"]
	return hasName
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func hasPrefix(prefixes []string, s string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
