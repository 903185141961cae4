// Package navigator opens pages in a session, injecting HTTP authentication
// either through the session proxy or into the URL itself.
package navigator

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/auth"
	"github.com/Rorqualx/proxydl/internal/driver"
	"github.com/Rorqualx/proxydl/internal/report"
	"github.com/Rorqualx/proxydl/internal/security"
	"github.com/Rorqualx/proxydl/internal/types"
)

// BlankPage is the URL OpenBlank navigates to.
const BlankPage = "about:blank"

var absoluteURL = regexp.MustCompile(`^[a-zA-Z-]+:`)

// Navigator performs navigations on behalf of a session.
type Navigator struct {
	reporter report.Reporter
}

// New returns a Navigator reporting through r. A nil r disables reporting.
func New(r report.Reporter) *Navigator {
	if r == nil {
		r = report.Nop{}
	}
	return &Navigator{reporter: r}
}

// Open navigates to rawURL without credentials.
// Credentials left on the session proxy by an earlier navigation are removed.
func (n *Navigator) Open(ctx context.Context, sess driver.Session, rawURL string) error {
	return n.open(ctx, sess, rawURL, nil)
}

// OpenWithAuth navigates to rawURL with creds.
func (n *Navigator) OpenWithAuth(ctx context.Context, sess driver.Session, rawURL string, creds auth.Credentials) error {
	return n.open(ctx, sess, rawURL, &creds)
}

// OpenBasic navigates to rawURL with Basic credentials for domain.
func (n *Navigator) OpenBasic(ctx context.Context, sess driver.Session, rawURL, domain, login, secret string) error {
	return n.OpenWithAuth(ctx, sess, rawURL, auth.NewBasic(domain, login, secret))
}

// OpenBlank navigates to an empty page. The proxy is not consulted.
func (n *Navigator) OpenBlank(ctx context.Context, sess driver.Session) error {
	return n.reporter.Run("open", BlankPage, func() error {
		return navigate(ctx, sess, BlankPage)
	})
}

// Back goes one step back in the session history.
func (n *Navigator) Back(ctx context.Context, sess driver.Session) error {
	return n.reporter.Run("back", "", func() error {
		if err := sess.WebDriver().Back(ctx); err != nil {
			return fmt.Errorf("%w: back: %w", types.ErrNavigationFailed, err)
		}
		return nil
	})
}

// Forward goes one step forward in the session history.
func (n *Navigator) Forward(ctx context.Context, sess driver.Session) error {
	return n.reporter.Run("forward", "", func() error {
		if err := sess.WebDriver().Forward(ctx); err != nil {
			return fmt.Errorf("%w: forward: %w", types.ErrNavigationFailed, err)
		}
		return nil
	})
}

// Refresh reloads the current page.
func (n *Navigator) Refresh(ctx context.Context, sess driver.Session) error {
	return n.reporter.Run("refresh", "", func() error {
		if err := sess.WebDriver().Refresh(ctx); err != nil {
			return fmt.Errorf("%w: refresh: %w", types.ErrNavigationFailed, err)
		}
		return nil
	})
}

func (n *Navigator) open(ctx context.Context, sess driver.Session, rawURL string, creds *auth.Credentials) error {
	cfg := sess.Config()
	target := Resolve(cfg.BaseURL, rawURL)

	return n.reporter.Run("open", security.RedactURL(target), func() error {
		if cfg.RequiresProxy() && !cfg.ProxyEnabled {
			return types.ErrProxyRequiredButDisabled
		}

		if cfg.ProxyEnabled {
			if err := applyProxyAuth(sess, creds); err != nil {
				return err
			}
		} else if creds != nil {
			withAuth, err := embedAuth(target, *creds)
			if err != nil {
				return err
			}
			target = withAuth
		}

		return navigate(ctx, sess, target)
	})
}

// applyProxyAuth installs creds on the session proxy, or clears them when nil.
func applyProxyAuth(sess driver.Session, creds *auth.Credentials) error {
	p := sess.Proxy()
	if p == nil {
		return types.ErrProxyNotEnabled
	}
	if !p.IsStarted() {
		return types.ErrProxyNotStarted
	}

	af := p.AuthFilter()
	if af == nil {
		if creds != nil {
			return fmt.Errorf("%w: no authentication filter registered", types.ErrProxyNotEnabled)
		}
		return nil
	}

	if creds == nil {
		af.RemoveAuthentication()
		return nil
	}
	return af.SetAuthentication(*creds)
}

// embedAuth puts Basic credentials into the URL user-info.
func embedAuth(target string, creds auth.Credentials) (string, error) {
	if creds.Scheme != auth.Basic {
		return "", fmt.Errorf("%w: %s", types.ErrUnsupportedAuthWithoutProxy, creds.Scheme)
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	u.User = url.UserPassword(creds.Login, creds.Secret)
	return u.String(), nil
}

func navigate(ctx context.Context, sess driver.Session, target string) error {
	if err := sess.WebDriver().Navigate(ctx, target); err != nil {
		cfg := sess.Config()
		log.Debug().Err(err).Str("url", security.RedactURL(target)).Msg("Navigation failed")
		return &types.NavigationError{
			URL:     security.RedactURL(target),
			BaseURL: security.RedactURL(cfg.BaseURL),
			Remote:  cfg.Remote,
			Err:     err,
		}
	}
	return nil
}

// Resolve joins a relative rawURL to baseURL. URLs starting with a scheme,
// including about: and data:, are returned unchanged.
func Resolve(baseURL, rawURL string) string {
	if absoluteURL.MatchString(rawURL) {
		return rawURL
	}
	switch {
	case baseURL == "":
		return rawURL
	case rawURL == "":
		return baseURL
	case strings.HasSuffix(baseURL, "/") && strings.HasPrefix(rawURL, "/"):
		return baseURL + rawURL[1:]
	case !strings.HasSuffix(baseURL, "/") && !strings.HasPrefix(rawURL, "/"):
		return baseURL + "/" + rawURL
	default:
		return baseURL + rawURL
	}
}
