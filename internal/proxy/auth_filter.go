package proxy

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/idna"

	"github.com/Rorqualx/proxydl/internal/auth"
	"github.com/Rorqualx/proxydl/internal/types"
)

// AuthFilter adds an Authorization header to requests for a credential domain.
// It is always active; with no credentials set it passes requests unmodified.
type AuthFilter struct {
	creds atomic.Pointer[authEntry]
}

type authEntry struct {
	creds  auth.Credentials
	domain string // IDNA-normalised, lower case
	header string
}

// NewAuthFilter returns an AuthFilter without credentials.
func NewAuthFilter() *AuthFilter {
	return &AuthFilter{}
}

// Activate is a no-op; the filter is always active.
func (f *AuthFilter) Activate() {}

// Deactivate is a no-op; use RemoveAuthentication to stop injecting.
func (f *AuthFilter) Deactivate() {}

// Active always reports true.
func (f *AuthFilter) Active() bool { return true }

// SetAuthentication replaces the injected credentials.
// Readers observe either the old or the new credentials, never a mix.
func (f *AuthFilter) SetAuthentication(c auth.Credentials) error {
	header, err := c.Header()
	if err != nil {
		return err
	}
	domain, err := normaliseHost(c.Domain)
	if err != nil {
		return fmt.Errorf("%w: domain %q: %v", types.ErrInvalidRequest, c.Domain, err)
	}

	f.creds.Store(&authEntry{creds: c, domain: domain, header: header})
	log.Debug().
		Str("scheme", string(c.Scheme)).
		Str("domain", domain).
		Msg("Proxy authentication set")
	return nil
}

// RemoveAuthentication stops header injection.
func (f *AuthFilter) RemoveAuthentication() {
	if f.creds.Swap(nil) != nil {
		log.Debug().Msg("Proxy authentication removed")
	}
}

// Credentials returns the current credentials, if any.
func (f *AuthFilter) Credentials() (auth.Credentials, bool) {
	e := f.creds.Load()
	if e == nil {
		return auth.Credentials{}, false
	}
	return e.creds, true
}

// Observe injects the header into matching requests.
func (f *AuthFilter) Observe(ex *Exchange) {
	if ex.Phase != PhaseRequest || ex.Request == nil {
		return
	}
	e := f.creds.Load()
	if e == nil {
		return
	}

	host := ex.Request.URL.Hostname()
	if host == "" {
		host = ex.Request.Host
	}
	if !domainMatches(e.domain, host) {
		return
	}
	ex.Request.Header.Set("Authorization", e.header)
}

// domainMatches reports whether host equals domain or is a subdomain of it.
// An empty domain matches every host.
func domainMatches(domain, host string) bool {
	if domain == "" {
		return true
	}
	h, err := normaliseHost(host)
	if err != nil {
		h = strings.ToLower(host)
	}
	return h == domain || strings.HasSuffix(h, "."+domain)
}

func normaliseHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return "", nil
	}
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") && strings.Count(host, ":") == 1 {
		host = host[:i]
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}
