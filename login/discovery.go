package login

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoveryDocument holds the endpoints a login needs from the provider's
// openid-configuration.
type DiscoveryDocument struct {
	Issuer            string
	AuthorizeEndpoint string
	TokenEndpoint     string
}

// Discoverer looks up the discovery document of an authority.
type Discoverer interface {
	Discover(ctx context.Context, client *http.Client, authority string) (*DiscoveryDocument, error)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context, client *http.Client, authority string) (*DiscoveryDocument, error)

func (f DiscovererFunc) Discover(ctx context.Context, client *http.Client, authority string) (*DiscoveryDocument, error) {
	return f(ctx, client, authority)
}

// OIDCDiscoverer reads /.well-known/openid-configuration with go-oidc, which
// also checks the document's issuer against the authority.
type OIDCDiscoverer struct{}

var _ Discoverer = OIDCDiscoverer{}

func (OIDCDiscoverer) Discover(ctx context.Context, client *http.Client, authority string) (*DiscoveryDocument, error) {
	ctx = oidc.ClientContext(ctx, client)

	// Auth0 issuers end with a slash, authorities are often written without one
	provider, err := oidc.NewProvider(ctx, authority)
	if err != nil {
		var retryErr error
		provider, retryErr = oidc.NewProvider(ctx, toggleTrailingSlash(authority))
		if retryErr != nil {
			return nil, fmt.Errorf("oidc.NewProvider: %w", err)
		}
	}

	var claims struct {
		Issuer string `json:"issuer"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("provider.Claims: %w", err)
	}

	endpoint := provider.Endpoint()
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		return nil, fmt.Errorf("discovery document of %s has no authorization or token endpoint", authority)
	}

	return &DiscoveryDocument{
		Issuer:            claims.Issuer,
		AuthorizeEndpoint: endpoint.AuthURL,
		TokenEndpoint:     endpoint.TokenURL,
	}, nil
}

func toggleTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return strings.TrimSuffix(s, "/")
	}
	return s + "/"
}
