package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestConditionTimeoutErrorIs(t *testing.T) {
	err := fmt.Errorf("waiting: %w", &ConditionTimeoutError{
		Elapsed: 1500 * time.Millisecond,
		Timeout: time.Second,
		Polls:   4,
		Last:    "downloads=0",
	})

	if !errors.Is(err, ErrConditionTimedOut) {
		t.Error("Expected errors.Is to match ErrConditionTimedOut")
	}

	var cte *ConditionTimeoutError
	if !errors.As(err, &cte) {
		t.Fatal("Expected errors.As to find ConditionTimeoutError")
	}
	if cte.Polls != 4 {
		t.Errorf("Polls = %d, want 4", cte.Polls)
	}
	if !strings.Contains(err.Error(), "downloads=0") {
		t.Errorf("Error message should contain last state, got %q", err.Error())
	}
}

func TestNoFilesDownloadedErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *NoFilesDownloadedError
		contains []string
	}{
		{
			name:     "label and filter",
			err:      &NoFilesDownloadedError{Label: "#export", Timeout: 2 * time.Second, Filter: "with extension \"csv\""},
			contains: []string{"#export", "2s", "csv"},
		},
		{
			name:     "url label",
			err:      &NoFilesDownloadedError{Label: "https://example.com/r.csv", Timeout: time.Second},
			contains: []string{"triggered by https://example.com/r.csv"},
		},
		{
			name:     "with seen files",
			err:      &NoFilesDownloadedError{Timeout: time.Second, Seen: []string{"a.pdf", "b.txt"}},
			contains: []string{"a.pdf, b.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			if strings.Contains(msg, "clicking") {
				t.Errorf("Error() = %q, must not assume a click", msg)
			}
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
			if !errors.Is(tt.err, ErrNoFilesDownloaded) {
				t.Error("Expected errors.Is to match ErrNoFilesDownloaded")
			}
		})
	}
}

func TestNavigationErrorUnwrap(t *testing.T) {
	cause := errors.New("net::ERR_CONNECTION_REFUSED")
	err := &NavigationError{
		URL:     "https://example.com/home",
		BaseURL: "https://example.com",
		Remote:  "http://grid:4444",
		Err:     cause,
	}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to match the driver cause")
	}
	if !errors.Is(err, ErrNavigationFailed) {
		t.Error("Expected errors.Is to match ErrNavigationFailed")
	}

	msg := err.Error()
	for _, want := range []string{"https://example.com/home", "baseUrl=https://example.com", "remote=http://grid:4444"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestNavigationErrorWithoutRemote(t *testing.T) {
	err := &NavigationError{URL: "/a", BaseURL: "http://localhost:8080"}
	if strings.Contains(err.Error(), "remote=") {
		t.Errorf("Remote should be omitted when empty: %q", err.Error())
	}
}
