package driver

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/config"
)

// Launch starts a browser whose traffic goes through proxyURL.
// An empty proxyURL launches without a proxy. When cfg.Remote is set the
// browser is started by the rod launcher manager at that address instead of
// locally.
func Launch(ctx context.Context, cfg *config.Config, proxyURL string) (*rod.Browser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var (
		l   *launcher.Launcher
		err error
	)
	if cfg.Remote != "" {
		l, err = launcher.NewManaged(cfg.Remote)
		if err != nil {
			return nil, fmt.Errorf("connect to remote launcher %s: %w", cfg.Remote, err)
		}
	} else {
		l = launcher.New()
		if cfg.BrowserPath != "" {
			l = l.Bin(cfg.BrowserPath)
		}
	}
	l = configure(l, cfg, proxyURL)

	var browser *rod.Browser
	if cfg.Remote != "" {
		client, err := l.Client()
		if err != nil {
			return nil, fmt.Errorf("start remote browser: %w", err)
		}
		browser = rod.New().Client(client)
	} else {
		controlURL, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		browser = rod.New().ControlURL(controlURL)
	}

	if err := browser.Context(ctx).Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	browser = browser.Context(context.Background())

	if proxyURL != "" && cfg.ProxyMITM {
		// The proxy re-signs HTTPS traffic with its own CA.
		if err := browser.IgnoreCertErrors(true); err != nil {
			log.Warn().Err(err).Msg("Failed to set IgnoreCertErrors")
		}
	}

	// Files are captured by the proxy; the browser itself must not write them.
	if err := (proto.BrowserSetDownloadBehavior{
		Behavior: proto.BrowserSetDownloadBehaviorBehaviorDeny,
	}).Call(browser); err != nil {
		log.Debug().Err(err).Msg("Failed to disable browser downloads")
	}

	log.Debug().
		Bool("remote", cfg.Remote != "").
		Bool("proxied", proxyURL != "").
		Msg("Browser launched")
	return browser, nil
}

func configure(l *launcher.Launcher, cfg *config.Config, proxyURL string) *launcher.Launcher {
	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	if proxyURL != "" {
		l = l.Set("proxy-server", proxyURL).
			// Chrome bypasses the proxy for loopback hosts unless told otherwise.
			Set("proxy-bypass-list", "<-loopback>")
		if cfg.ProxyMITM {
			l = l.Set("ignore-certificate-errors")
		}
		log.Debug().Str("proxy", proxyURL).Msg("Browser proxy configured")
	}

	l = l.Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen").
		Set("window-size", "1920,1080")

	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("safebrowsing-disable-auto-update")

	return l
}
