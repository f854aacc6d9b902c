// Package transport provides the request pipeline a headless login drives:
// stacked http.RoundTripper stages that follow 302 redirects themselves,
// short-circuit requests aimed at the redirect URI host and keep cookies
// across hops.
package transport

import "net/http"

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f(req).
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps the next stage of the pipeline.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Chain composes middlewares around base. The first middleware is the
// outermost stage, so Chain(base, a, b) sends through a, then b, then base.
// A nil base means http.DefaultTransport.
func Chain(base http.RoundTripper, middlewares ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		rt = middlewares[i](rt)
	}
	return rt
}
