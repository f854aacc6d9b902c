package transport

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// InterceptRedirectBack answers requests for host with a synthetic 200 OK
// instead of sending them. The response's Request field is the intercepted
// request, so the caller can read the URL the provider redirected to. The
// redirect URI therefore only has to be registered with the provider, it
// does not have to resolve.
func InterceptRedirectBack(host string, logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.EqualFold(req.URL.Hostname(), host) {
				return next.RoundTrip(req)
			}

			logger.Debug().Str("host", host).Str("url", req.URL.Redacted()).Msg("intercepted redirect back")
			return &http.Response{
				Status:     "200 OK",
				StatusCode: http.StatusOK,
				Proto:      "HTTP/1.1",
				ProtoMajor: 1,
				ProtoMinor: 1,
				Header:     make(http.Header),
				Body:       http.NoBody,
				Request:    req,
			}, nil
		})
	}
}
