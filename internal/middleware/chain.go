package middleware

import (
	"net/http"
	"slices"
)

// Middleware wraps a handler with extra behaviour.
type Middleware func(http.Handler) http.Handler

// Chain composes mw into one Middleware. The first entry is outermost and
// sees each request first.
func Chain(mw ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for _, m := range slices.Backward(mw) {
			h = m(h)
		}
		return h
	}
}
