package login

import (
	"net/url"

	"github.com/jrsteele09/go-auth0-login/internal/errors"
)

// DefaultConnection is the Auth0 database connection most tenants store users in.
const DefaultConnection = "Username-Password-Authentication"

// Settings describes the tenant, client and user of a single login.
// Login never modifies it.
type Settings struct {
	// Authority is the issuer of the tenant, e.g. https://my-tenant.eu.auth0.com/
	Authority *url.URL
	// Audience selects the API the access token is issued for. Without it the
	// token is only good for the userinfo endpoint.
	Audience    string
	Auth0Tenant string

	ClientID     string
	ClientSecret string

	// RedirectURI must be registered with the provider. It does not have to
	// resolve: requests to its host are intercepted.
	RedirectURI *url.URL

	// Connection is the provider connection that stores the user.
	Connection string
	Scopes     []string

	UserName string
	Password string
}

// Validate checks the fields Login cannot work without.
func (s *Settings) Validate() error {
	if s == nil {
		return errors.Wrapf(errors.ErrInvalidSettings, "settings are nil")
	}
	if !isAbsolute(s.Authority) {
		return errors.Wrapf(errors.ErrInvalidSettings, "authority must be an absolute url")
	}
	if !isAbsolute(s.RedirectURI) {
		return errors.Wrapf(errors.ErrInvalidSettings, "redirect uri must be an absolute url")
	}
	if s.ClientID == "" {
		return errors.Wrapf(errors.ErrInvalidSettings, "client id is required")
	}
	return nil
}

// AuthorityOrigin returns scheme://host[:port] of the authority.
func (s *Settings) AuthorityOrigin() string {
	origin := url.URL{Scheme: s.Authority.Scheme, Host: s.Authority.Host}
	return origin.String()
}

func isAbsolute(u *url.URL) bool {
	return u != nil && u.IsAbs() && u.Host != ""
}
