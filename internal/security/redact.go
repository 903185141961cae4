// Package security provides credential redaction and input sanitising.
package security

import (
	"net/http"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// RedactURL removes secrets from a URL for logs and error messages.
// The user name is kept so failures stay diagnosable; the password and
// query parameters that look like secrets are replaced.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), redacted)
		}
	}

	if parsed.RawQuery != "" {
		parsed.RawQuery = redactQueryParams(parsed.Query()).Encode()
	}

	return parsed.String()
}

// sensitiveParamPatterns are query parameter names that likely contain secrets
var sensitiveParamPatterns = []string{
	"password",
	"passwd",
	"pwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"auth",
	"bearer",
	"credential",
	"signature",
	"session",
	"sid",
}

func redactQueryParams(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for key, values := range params {
		if isSensitive(key) {
			out[key] = []string{redacted}
		} else {
			out[key] = values
		}
	}
	return out
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range sensitiveParamPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// sensitiveHeaders never appear in logs or API responses verbatim.
var sensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
	"Set-Cookie",
}

// RedactHeaders returns a copy of h with credential-bearing headers replaced.
func RedactHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := h.Clone()
	for _, name := range sensitiveHeaders {
		if _, ok := out[name]; ok {
			out[name] = []string{redacted}
		}
	}
	return out
}
