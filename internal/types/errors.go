// Package types provides shared types, interfaces, and errors for the application.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Proxy precondition errors
	ErrProxyNotEnabled          = errors.New("proxy server is not enabled")
	ErrProxyNotStarted          = errors.New("proxy server is not started")
	ErrProxyRequiredButDisabled = errors.New("proxy is disabled but file download mode requires it")
	ErrDownloadFilterNotActive  = errors.New("download filter is not activated")
	ErrDuplicateFilterName      = errors.New("filter name already registered")

	// Authentication errors
	ErrUnsupportedAuthWithoutProxy = errors.New("authentication scheme is not supported without proxy server")
	ErrUnsupportedAuthScheme       = errors.New("authentication scheme cannot be injected by proxy")

	// Wait outcomes
	ErrConditionTimedOut = errors.New("condition not met before timeout")
	ErrNoFilesDownloaded = errors.New("no files downloaded")

	// Driver errors
	ErrNavigationFailed = errors.New("navigation failed")
	ErrNoSuchWindow     = errors.New("no such window")
	ErrClickUnsupported = errors.New("driver does not support clicking elements")

	// Session errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrTooManySessions      = errors.New("maximum number of sessions reached")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
)

// ConditionTimeoutError reports a wait whose condition never became true.
// It is an expected outcome of polling, not a fault.
type ConditionTimeoutError struct {
	Elapsed time.Duration // Time spent waiting
	Timeout time.Duration // Configured budget
	Polls   int           // Number of condition evaluations
	Last    string        // Description of the last observed subject state
}

// Error implements the error interface.
func (e *ConditionTimeoutError) Error() string {
	msg := fmt.Sprintf("condition not met after %s (timeout %s, %d polls)", e.Elapsed.Round(time.Millisecond), e.Timeout, e.Polls)
	if e.Last != "" {
		msg += ": last state " + e.Last
	}
	return msg
}

// Unwrap returns ErrConditionTimedOut for errors.Is support.
func (e *ConditionTimeoutError) Unwrap() error {
	return ErrConditionTimedOut
}

// NoFilesDownloadedError reports that no captured download matched a filter.
type NoFilesDownloadedError struct {
	Label   string        // What triggered the download, e.g. the clicked element
	Timeout time.Duration // How long the orchestrator waited
	Filter  string        // Description of the applied file filter
	Seen    []string      // Names of files that were captured but did not match
}

// Error implements the error interface.
func (e *NoFilesDownloadedError) Error() string {
	var b strings.Builder
	b.WriteString("Failed to download file")
	if e.Filter != "" {
		b.WriteString(" ")
		b.WriteString(e.Filter)
	}
	if e.Label != "" {
		b.WriteString(" triggered by ")
		b.WriteString(e.Label)
	}
	fmt.Fprintf(&b, " in %s", e.Timeout)
	if len(e.Seen) > 0 {
		b.WriteString("; intercepted: ")
		b.WriteString(strings.Join(e.Seen, ", "))
	}
	return b.String()
}

// Unwrap returns ErrNoFilesDownloaded for errors.Is support.
func (e *NoFilesDownloadedError) Unwrap() error {
	return ErrNoFilesDownloaded
}

// NavigationError enriches a driver failure with navigation context.
// URL is expected to be redacted by the caller.
type NavigationError struct {
	URL     string
	BaseURL string
	Remote  string
	Err     error
}

// Error implements the error interface.
func (e *NavigationError) Error() string {
	msg := fmt.Sprintf("navigation to %s failed (baseUrl=%s", e.URL, e.BaseURL)
	if e.Remote != "" {
		msg += ", remote=" + e.Remote
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying driver error.
func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrNavigationFailed as well as the wrapped error.
func (e *NavigationError) Is(target error) bool {
	return target == ErrNavigationFailed
}
