package transport

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/rs/zerolog"
)

// Options configures NewClient.
type Options struct {
	// InterceptHost is the host of the redirect URI. Required.
	InterceptHost string
	// Base sends requests on the network. Defaults to http.DefaultTransport,
	// which is safe to share between concurrent logins.
	Base http.RoundTripper
	// Logger receives redirect and interception events.
	Logger zerolog.Logger
}

// NewClient builds the per-login client:
// auto-follow -> intercept -> cookies -> base.
// The returned client never follows redirects on its own; 302s are handled
// by the pipeline and any other 3xx is returned to the caller.
func NewClient(opts Options) (*http.Client, error) {
	if opts.InterceptHost == "" {
		return nil, fmt.Errorf("[transport NewClient] intercept host is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("[transport NewClient] cookiejar.New: %w", err)
	}

	return &http.Client{
		Transport: Chain(opts.Base,
			AutoFollowRedirect(opts.Logger),
			InterceptRedirectBack(opts.InterceptHost, opts.Logger),
			CookieJar(jar),
		),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}
