package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/classify"
	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/driver"
	"github.com/Rorqualx/proxydl/internal/proxy"
)

const (
	pageLoadTimeout     = 30 * time.Second
	browserCloseTimeout = 10 * time.Second
)

// BrowserFactory returns a Factory that starts a session proxy (when enabled)
// and a go-rod browser routed through it.
func BrowserFactory(cfg *config.Config, rules *classify.Manager) Factory {
	return func(ctx context.Context, id string) (*Session, error) {
		var (
			p        *proxy.Server
			proxyURL string
			err      error
		)
		if cfg.ProxyEnabled {
			p, err = proxy.NewDefault(cfg, rules)
			if err != nil {
				return nil, err
			}
			if err := p.Start(); err != nil {
				return nil, err
			}
			u, err := p.URL()
			if err != nil {
				return nil, err
			}
			proxyURL = u.String()
		}

		stopProxy := func() {
			if p == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), browserCloseTimeout)
			defer cancel()
			p.Stop(ctx)
		}

		browser, err := driver.Launch(ctx, cfg, proxyURL)
		if err != nil {
			stopProxy()
			return nil, err
		}

		d, err := driver.NewRodDriver(browser, cfg.Stealth, pageLoadTimeout)
		if err != nil {
			if cerr := browser.Close(); cerr != nil {
				log.Debug().Err(cerr).Msg("Error closing browser after page failure")
			}
			stopProxy()
			return nil, fmt.Errorf("open session window: %w", err)
		}

		return New(id, cfg, d, p, func(context.Context) error {
			return d.Close(browserCloseTimeout)
		}), nil
	}
}
