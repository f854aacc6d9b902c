package transport

import (
	"io"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth0-login/internal/errors"
	"github.com/rs/zerolog"
)

// MaxRedirects bounds the number of sends AutoFollowRedirect performs for a
// single request.
const MaxRedirects = 20

// entity headers describe the body of the original request, which is never
// replayed on a followed redirect
var entityHeaders = []string{"Content-Type", "Content-Length", "Content-Encoding"}

// AutoFollowRedirect follows 302 Found responses. Every hop is a GET to the
// Location (resolved against the previous URL) carrying the headers of the
// original request, whatever the original method was. It returns the first
// non-302 response or ErrRedirectLoop after MaxRedirects sends.
func AutoFollowRedirect(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			headers := req.Header.Clone()
			for _, h := range entityHeaders {
				headers.Del(h)
			}

			for i := 0; i < MaxRedirects; i++ {
				resp, err := next.RoundTrip(req)
				if err != nil {
					return nil, err
				}
				if resp.StatusCode != http.StatusFound {
					return resp, nil
				}

				location, err := nextLocation(req, resp)
				discard(resp)
				if err != nil {
					return nil, err
				}
				logger.Debug().Int("hop", i+1).Str("location", location.Redacted()).Msg("following redirect")

				hop, err := http.NewRequestWithContext(req.Context(), http.MethodGet, location.String(), nil)
				if err != nil {
					return nil, errors.Wrapf(err, "[AutoFollowRedirect] invalid redirect %s", location.Redacted())
				}
				hop.Header = headers.Clone()
				req = hop
			}

			return nil, errors.Wrapf(errors.ErrRedirectLoop, "[AutoFollowRedirect] more than %d redirects, last url %s", MaxRedirects, req.URL.Redacted())
		})
	}
}

// nextLocation resolves the Location header against the URL that produced it
func nextLocation(req *http.Request, resp *http.Response) (*url.URL, error) {
	lv := resp.Header.Get("Location")
	if lv == "" {
		return nil, errors.Wrapf(http.ErrNoLocation, "[AutoFollowRedirect] %s returned 302", req.URL.Redacted())
	}
	location, err := req.URL.Parse(lv)
	if err != nil {
		return nil, errors.Wrapf(err, "[AutoFollowRedirect] %s returned an invalid Location", req.URL.Redacted())
	}
	return location, nil
}

// discard drains and closes a response body so the connection can be reused
func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
