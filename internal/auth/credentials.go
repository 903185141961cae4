// Package auth defines HTTP authentication credentials injected into navigations.
package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Rorqualx/proxydl/internal/types"
)

// Scheme is an HTTP authentication scheme.
type Scheme string

// Known schemes. Only Basic and Bearer can be injected as a header.
const (
	Basic    Scheme = "Basic"
	Bearer   Scheme = "Bearer"
	Digest   Scheme = "Digest"
	NTLM     Scheme = "NTLM"
	Kerberos Scheme = "Kerberos"
)

// ParseScheme matches a scheme name case-insensitively.
func ParseScheme(s string) (Scheme, error) {
	for _, sc := range []Scheme{Basic, Bearer, Digest, NTLM, Kerberos} {
		if strings.EqualFold(s, string(sc)) {
			return sc, nil
		}
	}
	return "", fmt.Errorf("%w: unknown authentication scheme %q", types.ErrInvalidRequest, s)
}

// Credentials is an immutable authentication value.
// An empty Domain applies the credentials to every host.
type Credentials struct {
	Scheme Scheme
	Domain string
	Login  string
	Secret string
}

// NewBasic returns Basic credentials for the given domain.
func NewBasic(domain, login, secret string) Credentials {
	return Credentials{Scheme: Basic, Domain: domain, Login: login, Secret: secret}
}

// NewBearer returns Bearer token credentials for the given domain.
func NewBearer(domain, token string) Credentials {
	return Credentials{Scheme: Bearer, Domain: domain, Secret: token}
}

// Injectable reports whether the proxy can add these credentials as a header.
func (c Credentials) Injectable() bool {
	return c.Scheme == Basic || c.Scheme == Bearer
}

// Token returns the Authorization parameter for the scheme.
func (c Credentials) Token() (string, error) {
	switch c.Scheme {
	case Basic:
		return base64.StdEncoding.EncodeToString([]byte(c.Login + ":" + c.Secret)), nil
	case Bearer:
		return c.Secret, nil
	default:
		return "", fmt.Errorf("%w: %s", types.ErrUnsupportedAuthScheme, c.Scheme)
	}
}

// Header returns the full Authorization header value.
func (c Credentials) Header() (string, error) {
	token, err := c.Token()
	if err != nil {
		return "", err
	}
	return string(c.Scheme) + " " + token, nil
}

// String returns a description that never contains the secret.
func (c Credentials) String() string {
	if c.Domain == "" {
		return fmt.Sprintf("%s(%s)", c.Scheme, c.Login)
	}
	return fmt.Sprintf("%s(%s@%s)", c.Scheme, c.Login, c.Domain)
}
