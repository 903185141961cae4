package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/security"
	"github.com/Rorqualx/proxydl/internal/types"
)

// errAborted is Chrome's navigation error when a response becomes a download.
const errAborted = "net::ERR_ABORTED"

// RodDriver implements Driver and Clicker on a go-rod browser.
// Each window is a page target; the handle is its target ID.
type RodDriver struct {
	browser     *rod.Browser
	loadTimeout time.Duration

	mu      sync.Mutex
	current *rod.Page
}

// NewRodDriver opens the first window of browser.
// With stealthPages set, pages are created through go-rod/stealth.
func NewRodDriver(browser *rod.Browser, stealthPages bool, loadTimeout time.Duration) (*RodDriver, error) {
	var (
		page *rod.Page
		err  error
	)
	if stealthPages {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &RodDriver{browser: browser, loadTimeout: loadTimeout, current: page}, nil
}

func (d *RodDriver) page(ctx context.Context) *rod.Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.Context(ctx)
}

// Navigate opens url in the current window and waits for it to load.
// A navigation that turns into a file download is not an error.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page(ctx)
	if err := p.Navigate(url); err != nil {
		var navErr *rod.NavigationError
		if errors.As(err, &navErr) && navErr.Reason == errAborted {
			log.Debug().Str("url", security.RedactURL(url)).Msg("Navigation aborted, likely a download")
			return nil
		}
		return err
	}
	d.waitLoad(p)
	return nil
}

// Back goes one step back in history.
func (d *RodDriver) Back(ctx context.Context) error {
	p := d.page(ctx)
	if err := p.NavigateBack(); err != nil {
		return err
	}
	d.waitLoad(p)
	return nil
}

// Forward goes one step forward in history.
func (d *RodDriver) Forward(ctx context.Context) error {
	p := d.page(ctx)
	if err := p.NavigateForward(); err != nil {
		return err
	}
	d.waitLoad(p)
	return nil
}

// Refresh reloads the current window.
func (d *RodDriver) Refresh(ctx context.Context) error {
	p := d.page(ctx)
	if err := p.Reload(); err != nil {
		return err
	}
	d.waitLoad(p)
	return nil
}

// waitLoad waits for the load event, bounded by loadTimeout. Pages that
// never finish loading are not an error for callers.
func (d *RodDriver) waitLoad(p *rod.Page) {
	if err := p.Timeout(d.loadTimeout).WaitLoad(); err != nil {
		log.Debug().Err(err).Msg("Page did not finish loading")
	}
}

// Click clicks the first element matching a CSS selector.
func (d *RodDriver) Click(ctx context.Context, selector string) error {
	el, err := d.page(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// WindowHandles lists open windows.
func (d *RodDriver) WindowHandles(ctx context.Context) ([]string, error) {
	pages, err := d.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(pages))
	for _, p := range pages {
		handles = append(handles, string(p.TargetID))
	}
	return handles, nil
}

// CurrentWindow returns the handle commands are sent to.
func (d *RodDriver) CurrentWindow(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.current.TargetID), nil
}

// SwitchToWindow makes handle the current window.
func (d *RodDriver) SwitchToWindow(ctx context.Context, handle string) error {
	p, err := d.find(ctx, handle)
	if err != nil {
		return err
	}
	if _, err := p.Activate(); err != nil {
		return fmt.Errorf("activate window: %w", err)
	}
	d.mu.Lock()
	d.current = p
	d.mu.Unlock()
	return nil
}

// CloseWindow closes the window with handle.
func (d *RodDriver) CloseWindow(ctx context.Context, handle string) error {
	p, err := d.find(ctx, handle)
	if err != nil {
		return err
	}
	return p.Close()
}

func (d *RodDriver) find(ctx context.Context, handle string) (*rod.Page, error) {
	pages, err := d.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if string(p.TargetID) == handle {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrNoSuchWindow, handle)
}

// Close shuts the browser down, giving up after timeout.
func (d *RodDriver) Close(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- d.browser.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("Browser close timed out")
		return fmt.Errorf("browser close timed out after %s", timeout)
	}
}
