package proxy

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/classify"
	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/metrics"
	"github.com/Rorqualx/proxydl/internal/security"
	"github.com/Rorqualx/proxydl/internal/types"
)

// Names of the filters registered by NewDefault.
const (
	AuthFilterName     = "authentication"
	DownloadFilterName = "download"
)

// Server is an intercepting HTTP(S) proxy owned by one browser session.
type Server struct {
	cfg    *config.Config
	engine *goproxy.ProxyHttpServer

	mu      sync.RWMutex
	names   map[string]Filter
	filters []Filter // registration order, replaced on Register

	lifecycle sync.Mutex
	httpSrv   *http.Server
	addr      string
	started   bool
}

// New creates a stopped proxy without filters.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		engine: goproxy.NewProxyHttpServer(),
		names:  make(map[string]Filter),
	}
	s.engine.Logger = goproxyLogger{}
	s.engine.Verbose = zerolog.GlobalLevel() <= zerolog.TraceLevel

	// Never inherit HTTP_PROXY from the environment; the browser's own
	// proxy variable would point back here.
	s.engine.Tr.Proxy = nil
	if cfg.UpstreamProxy != "" {
		upstream, err := url.Parse(cfg.UpstreamProxy)
		if err != nil {
			return nil, fmt.Errorf("parse upstream proxy: %w", err)
		}
		s.engine.Tr.Proxy = http.ProxyURL(upstream)
		log.Info().Str("upstream", security.RedactURL(cfg.UpstreamProxy)).Msg("Proxy chaining to upstream")
	}

	if cfg.ProxyMITM {
		ca, err := loadCA(cfg)
		if err != nil {
			return nil, err
		}
		mitm := &goproxy.ConnectAction{
			Action:    goproxy.ConnectMitm,
			TLSConfig: goproxy.TLSConfigFromCA(ca),
		}
		s.engine.OnRequest().HandleConnectFunc(func(host string, _ *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			return mitm, host
		})
	}

	s.engine.OnRequest().DoFunc(s.onRequest)
	s.engine.OnResponse().DoFunc(s.onResponse)
	return s, nil
}

// NewDefault creates a proxy with the authentication and download filters registered.
func NewDefault(cfg *config.Config, rules *classify.Manager) (*Server, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Register(AuthFilterName, NewAuthFilter()); err != nil {
		return nil, err
	}
	if err := s.Register(DownloadFilterName, NewDownloadFilter(cfg, rules)); err != nil {
		return nil, err
	}
	return s, nil
}

func loadCA(cfg *config.Config) (*tls.Certificate, error) {
	if cfg.ProxyCACert == "" {
		return &goproxy.GoproxyCa, nil
	}
	ca, err := tls.LoadX509KeyPair(cfg.ProxyCACert, cfg.ProxyCAKey)
	if err != nil {
		return nil, fmt.Errorf("load proxy CA: %w", err)
	}
	if ca.Leaf == nil {
		leaf, err := x509.ParseCertificate(ca.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parse proxy CA: %w", err)
		}
		ca.Leaf = leaf
	}
	return &ca, nil
}

// Register adds a filter under a unique name.
func (s *Server) Register(name string, f Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[name]; exists {
		return fmt.Errorf("%w: %s", types.ErrDuplicateFilterName, name)
	}
	s.names[name] = f

	// Copy so dispatch can iterate a snapshot without holding the lock.
	next := make([]Filter, len(s.filters), len(s.filters)+1)
	copy(next, s.filters)
	s.filters = append(next, f)
	return nil
}

// Filter looks up a registered filter by name.
func (s *Server) Filter(name string) (Filter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.names[name]
	return f, ok
}

// AuthFilter returns the registered authentication filter, or nil.
func (s *Server) AuthFilter() *AuthFilter {
	f, _ := s.Filter(AuthFilterName)
	af, _ := f.(*AuthFilter)
	return af
}

// DownloadFilter returns the registered download filter, or nil.
func (s *Server) DownloadFilter() *DownloadFilter {
	f, _ := s.Filter(DownloadFilterName)
	df, _ := f.(*DownloadFilter)
	return df
}

// Start begins listening. Starting a started server is a no-op.
func (s *Server) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.started {
		return nil
	}

	addr := net.JoinHostPort(s.cfg.ProxyHost, strconv.Itoa(s.cfg.ProxyPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("proxy listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 30 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", ln.Addr().String()).Msg("Proxy server error")
		}
	}()

	s.httpSrv = srv
	s.addr = ln.Addr().String()
	s.started = true

	log.Info().
		Str("addr", s.addr).
		Bool("mitm", s.cfg.ProxyMITM).
		Msg("Proxy server started")
	return nil
}

// Stop shuts the listener down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	err := s.httpSrv.Shutdown(ctx)
	if err != nil {
		// Hijacked CONNECT tunnels are not tracked by Shutdown.
		s.httpSrv.Close()
	}
	log.Info().Str("addr", s.addr).Msg("Proxy server stopped")
	return err
}

// IsStarted reports whether the proxy is listening.
func (s *Server) IsStarted() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.started
}

// Addr returns the listen address, or "" when stopped.
func (s *Server) Addr() string {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.started {
		return ""
	}
	return s.addr
}

// URL returns the proxy URL to configure clients with.
func (s *Server) URL() (*url.URL, error) {
	addr := s.Addr()
	if addr == "" {
		return nil, types.ErrProxyNotStarted
	}
	return &url.URL{Scheme: "http", Host: addr}, nil
}

func (s *Server) onRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	ex := &Exchange{Phase: PhaseRequest, Request: r, Session: ctx.Session}
	s.dispatch(ex)
	return ex.Request, ex.Response
}

func (s *Server) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp == nil {
		if ctx.Error != nil {
			log.Debug().Err(ctx.Error).Int64("session", ctx.Session).Msg("Proxy round trip failed")
		}
		return nil
	}
	ex := &Exchange{Phase: PhaseResponse, Request: ctx.Req, Response: resp, Session: ctx.Session}
	s.dispatch(ex)
	return ex.Response
}

// dispatch hands ex to every active filter in registration order.
func (s *Server) dispatch(ex *Exchange) {
	s.mu.RLock()
	filters := s.filters
	s.mu.RUnlock()

	metrics.RecordExchange(ex.Phase.String())
	for _, f := range filters {
		if f.Active() {
			observe(f, ex)
		}
	}
}

func observe(f Filter, ex *Exchange) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("phase", ex.Phase.String()).
				Msg("Traffic filter panicked")
		}
	}()
	f.Observe(ex)
}

// goproxyLogger routes goproxy's internal logging through zerolog.
type goproxyLogger struct{}

func (goproxyLogger) Printf(format string, v ...any) {
	log.Debug().Str("component", "goproxy").Msgf(format, v...)
}
