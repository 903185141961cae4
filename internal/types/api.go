package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Request validation limits.
const (
	MaxCmdLength        = 64
	MaxURLLength        = 8192
	MaxSessionIDLength  = 128
	MaxTimeoutMs        = 600000 // 10 minutes in milliseconds
	MaxSelectorLength   = 1024
	MaxFilterLength     = 512
	MaxAuthFieldLength  = 4096
	MaxAuthDomainLength = 253
)

// Commands supported by the API.
const (
	CmdSessionsCreate  = "sessions.create"
	CmdSessionsList    = "sessions.list"
	CmdSessionsDestroy = "sessions.destroy"
	CmdPageOpen        = "page.open"
	CmdPageBack        = "page.back"
	CmdPageForward     = "page.forward"
	CmdPageRefresh     = "page.refresh"
	CmdFileDownload    = "file.download"
	CmdDownloadsList   = "downloads.list"
)

// Status values for API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents an incoming API request.
type Request struct {
	Cmd        string `json:"cmd"`
	Session    string `json:"session,omitempty"`
	URL        string `json:"url,omitempty"`
	Auth       *Auth  `json:"auth,omitempty"`
	Selector   string `json:"selector,omitempty"`   // Element clicked to start a download
	Filter     string `json:"filter,omitempty"`     // File filter, e.g. "ext:pdf" or "glob:**/*.csv"
	MaxTimeout int    `json:"maxTimeout,omitempty"` // Download wait in milliseconds
}

// Auth carries credentials for page.open.
type Auth struct {
	Scheme string `json:"scheme,omitempty"` // Defaults to Basic
	Domain string `json:"domain,omitempty"`
	Login  string `json:"login,omitempty"`
	Secret string `json:"secret"`
}

// Timeout returns MaxTimeout as a duration, or def when unset.
func (r *Request) Timeout(def time.Duration) time.Duration {
	if r.MaxTimeout <= 0 {
		return def
	}
	return time.Duration(r.MaxTimeout) * time.Millisecond
}

// Validate validates the request and returns an error if invalid.
func (r *Request) Validate() error {
	if r.Cmd == "" {
		return fmt.Errorf("cmd is required")
	}
	if len(r.Cmd) > MaxCmdLength {
		return fmt.Errorf("cmd exceeds maximum length of %d", MaxCmdLength)
	}

	switch r.Cmd {
	case CmdSessionsCreate, CmdSessionsList:
	case CmdSessionsDestroy, CmdPageBack, CmdPageForward, CmdPageRefresh, CmdDownloadsList:
		if r.Session == "" {
			return fmt.Errorf("session is required for %s", r.Cmd)
		}
	case CmdPageOpen:
		if r.Session == "" {
			return fmt.Errorf("session is required for %s", r.Cmd)
		}
	case CmdFileDownload:
		if r.Session == "" {
			return fmt.Errorf("session is required for %s", r.Cmd)
		}
		if (r.Selector == "") == (r.URL == "") {
			return fmt.Errorf("exactly one of selector or url is required for %s", r.Cmd)
		}
	default:
		// Use %q format for security (prevents log injection)
		return fmt.Errorf("Unknown command: %q", r.Cmd)
	}

	if r.URL != "" {
		if err := validateURL(r.URL); err != nil {
			return err
		}
	}

	if len(r.Session) > MaxSessionIDLength {
		return fmt.Errorf("session exceeds maximum length of %d", MaxSessionIDLength)
	}
	if len(r.Selector) > MaxSelectorLength {
		return fmt.Errorf("selector exceeds maximum length of %d", MaxSelectorLength)
	}
	if len(r.Filter) > MaxFilterLength {
		return fmt.Errorf("filter exceeds maximum length of %d", MaxFilterLength)
	}

	if r.MaxTimeout < 0 {
		return fmt.Errorf("maxTimeout cannot be negative")
	}
	if r.MaxTimeout > MaxTimeoutMs {
		return fmt.Errorf("maxTimeout exceeds maximum of %d ms", MaxTimeoutMs)
	}

	if r.Auth != nil {
		if r.Cmd != CmdPageOpen {
			return fmt.Errorf("auth is only supported by %s", CmdPageOpen)
		}
		if err := r.Auth.Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	return nil
}

// validateURL accepts paths relative to the base URL and absolute
// http, https and about URLs.
func validateURL(raw string) error {
	if len(raw) > MaxURLLength {
		return fmt.Errorf("url exceeds maximum length of %d", MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" {
		return nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "about":
		return nil
	default:
		return fmt.Errorf("url scheme must be http, https or about, got: %s", u.Scheme)
	}
}

// Validate checks field lengths. The scheme name is resolved by the caller.
func (a *Auth) Validate() error {
	if a.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if len(a.Login) > MaxAuthFieldLength || len(a.Secret) > MaxAuthFieldLength {
		return fmt.Errorf("credentials exceed maximum length of %d", MaxAuthFieldLength)
	}
	if len(a.Domain) > MaxAuthDomainLength {
		return fmt.Errorf("domain exceeds maximum length of %d", MaxAuthDomainLength)
	}
	if strings.ContainsAny(a.Domain, "/:@ ") {
		return fmt.Errorf("domain must be a host name, got %q", a.Domain)
	}
	return nil
}

// Response represents an API response.
type Response struct {
	Status    string        `json:"status"`
	Message   string        `json:"message"`
	StartTime int64         `json:"startTimestamp"`
	EndTime   int64         `json:"endTimestamp"`
	Version   string        `json:"version"`
	Session   string        `json:"session,omitempty"`
	Sessions  []SessionInfo `json:"sessions,omitempty"`
	File      *File         `json:"file,omitempty"`
	Downloads []File        `json:"downloads,omitempty"`
}

// SessionInfo describes an active session.
type SessionInfo struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	LastUsed  int64  `json:"lastUsed"`
	ProxyAddr string `json:"proxyAddr,omitempty"`
	Downloads int    `json:"downloads"`
}

// File describes a captured download.
type File struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	Path        string `json:"path"`
	Timestamp   int64  `json:"timestamp"`
}
