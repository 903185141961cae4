// Package proxy implements the intercepting HTTP(S) proxy and its traffic filters.
//
// A Server dispatches every exchange it relays to the registered filters in
// registration order. Filters run on the proxy's connection goroutines, so any
// state they share with callers must be synchronised.
package proxy

import (
	"net/http"
	"sync/atomic"
)

// Phase identifies which half of an exchange a filter is observing.
type Phase int

const (
	PhaseRequest Phase = iota
	PhaseResponse
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p == PhaseResponse {
		return "response"
	}
	return "request"
}

// Exchange is one HTTP request/response pair passing through the proxy.
// Filters may mutate Request in the request phase and Response in the
// response phase. Setting Response during the request phase answers the
// request without contacting the origin.
type Exchange struct {
	Phase    Phase
	Request  *http.Request
	Response *http.Response
	Session  int64 // Proxy-assigned exchange number
}

// Filter observes or mutates traffic while active.
// Observe is only called for active filters.
type Filter interface {
	Activate()
	Deactivate()
	Active() bool
	Observe(ex *Exchange)
}

// Toggle implements the activation half of Filter with an atomic flag.
type Toggle struct {
	active atomic.Bool
}

// Activate enables the filter.
func (t *Toggle) Activate() { t.active.Store(true) }

// Deactivate disables the filter.
func (t *Toggle) Deactivate() { t.active.Store(false) }

// Active reports whether the filter is enabled.
func (t *Toggle) Active() bool { return t.active.Load() }
