package files

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects downloaded files. Implementations are stateless.
type Filter interface {
	Match(f *DownloadedFile) bool
	Description() string
}

type funcFilter struct {
	match       func(*DownloadedFile) bool
	description string
}

func (f funcFilter) Match(file *DownloadedFile) bool { return f.match(file) }
func (f funcFilter) Description() string            { return f.description }

// None accepts every file.
func None() Filter {
	return funcFilter{
		match:       func(*DownloadedFile) bool { return true },
		description: "",
	}
}

// WithName accepts files with exactly this name.
func WithName(name string) Filter {
	return funcFilter{
		match:       func(f *DownloadedFile) bool { return f.FileName == name },
		description: fmt.Sprintf("with file name %q", name),
	}
}

// WithNameMatching accepts files whose name matches the regular expression.
func WithNameMatching(pattern string) (Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile file name pattern: %w", err)
	}
	return funcFilter{
		match:       func(f *DownloadedFile) bool { return re.MatchString(f.FileName) },
		description: fmt.Sprintf("with file name matching %q", pattern),
	}, nil
}

// WithExtension accepts files with the extension, compared case-insensitively.
// A leading dot is optional.
func WithExtension(ext string) Filter {
	want := strings.ToLower(strings.TrimPrefix(ext, "."))
	return funcFilter{
		match:       func(f *DownloadedFile) bool { return f.Extension() == want },
		description: fmt.Sprintf("with extension %q", want),
	}
}

// WithGlob accepts files whose name matches a doublestar glob such as "report-*.{csv,xlsx}".
func WithGlob(pattern string) (Filter, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	return funcFilter{
		match: func(f *DownloadedFile) bool {
			ok, _ := doublestar.Match(pattern, f.FileName)
			return ok
		},
		description: fmt.Sprintf("with file name like %q", pattern),
	}, nil
}

// Parse builds a filter from a "kind:value" expression used by the control API.
// Kinds are name, regex, ext and glob. An empty expression yields None.
func Parse(expr string) (Filter, error) {
	if expr == "" {
		return None(), nil
	}
	kind, value, ok := strings.Cut(expr, ":")
	if !ok {
		return nil, fmt.Errorf("file filter %q: expected kind:value", expr)
	}
	switch kind {
	case "name":
		return WithName(value), nil
	case "regex":
		return WithNameMatching(value)
	case "ext":
		return WithExtension(value), nil
	case "glob":
		return WithGlob(value)
	default:
		return nil, fmt.Errorf("file filter %q: unknown kind %q", expr, kind)
	}
}
