package config

import (
	"fmt"
	"net/url"

	"github.com/jrsteele09/go-auth0-login/login"
)

const (
	authorityVar    = "AUTH0_AUTHORITY"
	audienceVar     = "AUTH0_AUDIENCE"
	tenantVar       = "AUTH0_TENANT"
	clientIDVar     = "AUTH0_CLIENT_ID"
	clientSecretVar = "AUTH0_CLIENT_SECRET"
	redirectURIVar  = "AUTH0_REDIRECT_URI"
	connectionVar   = "AUTH0_CONNECTION"
	scopesVar       = "AUTH0_SCOPES"
	usernameVar     = "AUTH0_USERNAME"
	passwordVar     = "AUTH0_PASSWORD"
)

type LoginConfig interface {
	GetAuthority() string
	GetAudience() string
	GetTenant() string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetConnection() string
	GetScopes() []string
	GetUsername() string
	GetPassword() string
}

type Login struct{}

var _ LoginConfig = Login{}

func (Login) GetAuthority() string    { return GetEnv(authorityVar, "") }
func (Login) GetAudience() string     { return GetEnv(audienceVar, "") }
func (Login) GetTenant() string       { return GetEnv(tenantVar, "") }
func (Login) GetClientID() string     { return GetEnv(clientIDVar, "") }
func (Login) GetClientSecret() string { return GetEnv(clientSecretVar, "") }
func (Login) GetRedirectURI() string  { return GetEnv(redirectURIVar, "") }
func (Login) GetUsername() string     { return GetEnv(usernameVar, "") }
func (Login) GetPassword() string     { return GetEnv(passwordVar, "") }

func (Login) GetConnection() string {
	return GetEnv(connectionVar, login.DefaultConnection)
}

// GetScopes reads a comma separated scope list
func (Login) GetScopes() []string {
	return parseList(GetEnv(scopesVar, "openid,profile,email"))
}

// LoginSettings builds and validates the settings of a login from c.
func LoginSettings(c LoginConfig) (*login.Settings, error) {
	authority, err := url.Parse(c.GetAuthority())
	if err != nil {
		return nil, fmt.Errorf("[config LoginSettings] %s: %w", authorityVar, err)
	}
	redirectURI, err := url.Parse(c.GetRedirectURI())
	if err != nil {
		return nil, fmt.Errorf("[config LoginSettings] %s: %w", redirectURIVar, err)
	}

	settings := &login.Settings{
		Authority:    authority,
		Audience:     c.GetAudience(),
		Auth0Tenant:  c.GetTenant(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURI:  redirectURI,
		Connection:   c.GetConnection(),
		Scopes:       c.GetScopes(),
		UserName:     c.GetUsername(),
		Password:     c.GetPassword(),
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("[config LoginSettings] %w", err)
	}
	return settings, nil
}
