// Package session provides session management for browsers whose traffic
// runs through a per-session proxy.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/driver"
	"github.com/Rorqualx/proxydl/internal/proxy"
)

// Session owns one browser and the proxy its traffic flows through.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg     *config.Config
	driver  driver.Driver
	proxy   *proxy.Server
	release func(ctx context.Context) error

	lastUsed atomic.Int64 // Unix nano timestamp for lock-free access
	inFlight atomic.Int32 // Commands running or waiting in Do
	mu       sync.Mutex   // Serializes commands against the browser
	closed   atomic.Bool
}

var _ driver.Session = (*Session)(nil)

// New assembles a session. p may be nil when the proxy is disabled.
// release shuts the browser down and runs once on Close.
func New(id string, cfg *config.Config, d driver.Driver, p *proxy.Server, release func(ctx context.Context) error) *Session {
	now := time.Now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		cfg:       cfg,
		driver:    d,
		proxy:     p,
		release:   release,
	}
	s.lastUsed.Store(now.UnixNano())
	return s
}

// WebDriver returns the session's browser driver.
func (s *Session) WebDriver() driver.Driver { return s.driver }

// Proxy returns the session proxy, or nil.
func (s *Session) Proxy() *proxy.Server { return s.proxy }

// Config returns the configuration the session was created with.
func (s *Session) Config() *config.Config { return s.cfg }

// Do runs fn with exclusive use of the session.
// The session counts as busy, and never expires, until fn returns.
func (s *Session) Do(fn func() error) error {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Touch()
	defer s.Touch()
	return fn()
}

// Touch updates the LastUsed timestamp for a session atomically.
// This is useful for keeping sessions alive during long operations.
func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Busy reports whether a command is running or queued on the session.
func (s *Session) Busy() bool {
	return s.inFlight.Load() > 0
}

// LastUsedTime returns the last used time as a time.Time.
func (s *Session) LastUsedTime() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Info describes a session for listings.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
	ProxyAddr string    `json:"proxyAddr,omitempty"`
	Downloads int       `json:"downloads"`
}

// Info returns a snapshot of the session state.
func (s *Session) Info() Info {
	info := Info{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.LastUsedTime(),
	}
	if s.proxy != nil {
		info.ProxyAddr = s.proxy.Addr()
		if df := s.proxy.DownloadFilter(); df != nil {
			info.Downloads = df.Size()
		}
	}
	return info
}

// Close shuts down the browser, then the proxy. Later calls are no-ops.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if s.release != nil {
		if err := s.release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.proxy != nil {
		if err := s.proxy.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
