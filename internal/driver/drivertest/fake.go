// Package drivertest provides in-memory driver fakes for tests.
package drivertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/driver"
	"github.com/Rorqualx/proxydl/internal/proxy"
	"github.com/Rorqualx/proxydl/internal/types"
)

// Driver is a fake driver.Driver and driver.Clicker.
type Driver struct {
	mu       sync.Mutex
	visited  []string
	history  []string
	pos      int
	handles  []string
	current  string
	nextID   int
	clicks   []string
	closed   []string
	refreshs int

	// NavigateErr, when set, is returned by every navigation.
	NavigateErr error
	// OnNavigate runs after a successful navigation.
	OnNavigate func(ctx context.Context, url string) error
	// OnClick handles Click; a nil OnClick succeeds without effect.
	OnClick func(ctx context.Context, selector string) error
}

// New returns a fake with one window open.
func New() *Driver {
	return &Driver{handles: []string{"window-0"}, current: "window-0", pos: -1, nextID: 1}
}

var (
	_ driver.Driver  = (*Driver)(nil)
	_ driver.Clicker = (*Driver)(nil)
)

// Navigate records url.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	if d.NavigateErr != nil {
		err := d.NavigateErr
		d.mu.Unlock()
		return err
	}
	d.visited = append(d.visited, url)
	d.history = append(d.history[:d.pos+1], url)
	d.pos = len(d.history) - 1
	hook := d.OnNavigate
	d.mu.Unlock()

	if hook != nil {
		return hook(ctx, url)
	}
	return nil
}

// Back moves back in history.
func (d *Driver) Back(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	if d.pos > 0 {
		d.pos--
	}
	return nil
}

// Forward moves forward in history.
func (d *Driver) Forward(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	if d.pos < len(d.history)-1 {
		d.pos++
	}
	return nil
}

// Refresh counts reloads.
func (d *Driver) Refresh(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.refreshs++
	return nil
}

// Click records selector and runs OnClick.
func (d *Driver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	d.clicks = append(d.clicks, selector)
	hook := d.OnClick
	d.mu.Unlock()
	if hook != nil {
		return hook(ctx, selector)
	}
	return nil
}

// OpenWindow simulates the page opening a window and returns its handle.
func (d *Driver) OpenWindow(focus bool) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := fmt.Sprintf("window-%d", d.nextID)
	d.nextID++
	d.handles = append(d.handles, h)
	if focus {
		d.current = h
	}
	return h
}

// WindowHandles lists open windows.
func (d *Driver) WindowHandles(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.handles...), nil
}

// CurrentWindow returns the focused window.
func (d *Driver) CurrentWindow(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

// SwitchToWindow focuses handle.
func (d *Driver) SwitchToWindow(_ context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.handles {
		if h == handle {
			d.current = handle
			return nil
		}
	}
	return fmt.Errorf("%w: %s", types.ErrNoSuchWindow, handle)
}

// CloseWindow closes handle.
func (d *Driver) CloseWindow(_ context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, h := range d.handles {
		if h == handle {
			d.handles = append(d.handles[:i], d.handles[i+1:]...)
			d.closed = append(d.closed, handle)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", types.ErrNoSuchWindow, handle)
}

// Visited returns navigated URLs in order.
func (d *Driver) Visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visited...)
}

// CurrentURL returns the URL at the current history position.
func (d *Driver) CurrentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos < 0 {
		return ""
	}
	return d.history[d.pos]
}

// Clicks returns clicked selectors in order.
func (d *Driver) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

// Closed returns closed window handles in order.
func (d *Driver) Closed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.closed...)
}

// Refreshes returns the number of reloads.
func (d *Driver) Refreshes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshs
}

// Session is a fake driver.Session.
type Session struct {
	Driver *Driver
	Server *proxy.Server
	Cfg    *config.Config
}

var _ driver.Session = (*Session)(nil)

// WebDriver returns the fake driver.
func (s *Session) WebDriver() driver.Driver { return s.Driver }

// Proxy returns the proxy, or nil.
func (s *Session) Proxy() *proxy.Server { return s.Server }

// Config returns the configuration.
func (s *Session) Config() *config.Config { return s.Cfg }
