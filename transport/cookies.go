package transport

import (
	"net/http"
)

// CookieJar keeps cookies across every hop of the pipeline, including the
// redirects AutoFollowRedirect sends itself, which http.Client.Jar never sees.
func CookieJar(jar http.CookieJar) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if jar == nil {
				return next.RoundTrip(req)
			}

			cookies := jar.Cookies(req.URL)
			if len(cookies) > 0 {
				req = req.Clone(req.Context())
				for _, c := range cookies {
					req.AddCookie(c)
				}
			}

			resp, err := next.RoundTrip(req)
			if err != nil {
				return nil, err
			}
			if rc := resp.Cookies(); len(rc) > 0 {
				jar.SetCookies(req.URL, rc)
			}
			return resp, nil
		})
	}
}
