// Package login drives an Auth0 style Authorization Code + PKCE login without
// a browser: it follows the authorize redirects, posts the user's credentials,
// replays the provider's auto-submitting confirmation form and exchanges the
// resulting code for tokens. It is meant for integration tests that need a
// real access token.
package login

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth0-login/internal/errors"
	"github.com/jrsteele09/go-auth0-login/oauth2"
	"github.com/jrsteele09/go-auth0-login/pkce"
	"github.com/jrsteele09/go-auth0-login/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
)

// loginPath is where Auth0's universal login page posts username/password.
// It is not part of any standard.
const loginPath = "/usernamepassword/login"

// Fixture runs logins. It holds no per-login state and may be shared by
// parallel tests.
type Fixture struct {
	logger     zerolog.Logger
	discoverer Discoverer
	base       http.RoundTripper
}

// FixtureOption defines a function type to modify the Fixture instance.
type FixtureOption func(*Fixture)

// WithLogger sets the logger that receives the progress of each step.
func WithLogger(logger zerolog.Logger) FixtureOption {
	return func(f *Fixture) {
		f.logger = logger
	}
}

// WithDiscoverer replaces the go-oidc discovery lookup.
func WithDiscoverer(d Discoverer) FixtureOption {
	return func(f *Fixture) {
		f.discoverer = d
	}
}

// WithBaseTransport sets the RoundTripper that sends requests on the network.
// It must be safe for concurrent use if the Fixture is shared.
func WithBaseTransport(rt http.RoundTripper) FixtureOption {
	return func(f *Fixture) {
		f.base = rt
	}
}

// NewFixture creates a Fixture. Without options it logs to the global zerolog
// logger, discovers with go-oidc and sends with http.DefaultTransport.
func NewFixture(options ...FixtureOption) *Fixture {
	f := &Fixture{
		logger:     log.Logger,
		discoverer: OIDCDiscoverer{},
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// credentials is the JSON body the universal login page posts
type credentials struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Tenant      string `json:"tenant"`
	Connection  string `json:"connection"`
	Username    string `json:"username"`
	State       string `json:"state"`
	Password    string `json:"password"`
}

// Login performs the whole flow for one user and returns the token
// response. Any failure aborts the login with a *StepError. The token step
// only fails on a status other than 200: a 200 answer without a token is
// returned as is, with IsError reporting true.
func (f *Fixture) Login(ctx context.Context, settings *Settings) (*oauth2.TokenResponse, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	f.logger.Info().Str("user", settings.UserName).Str("authority", settings.Authority.String()).
		Msgf("Logging in user %s to %s", settings.UserName, settings.Authority)

	client, err := transport.NewClient(transport.Options{
		InterceptHost: settings.RedirectURI.Hostname(),
		Base:          f.base,
		Logger:        f.logger,
	})
	if err != nil {
		return nil, err
	}

	disco, err := f.discover(ctx, client, settings)
	if err != nil {
		return nil, err
	}

	pkceData := pkce.CreatePkceData()
	state, err := f.authorize(ctx, client, settings, disco, pkceData)
	if err != nil {
		return nil, err
	}

	page, err := f.submitCredentials(ctx, client, settings, state)
	if err != nil {
		return nil, err
	}

	callback, err := f.submitForm(ctx, client, page)
	if err != nil {
		return nil, err
	}

	code, err := f.extractCode(callback)
	if err != nil {
		return nil, err
	}

	return f.exchangeCode(ctx, client, settings, disco, code, pkceData.CodeVerifier)
}

func (f *Fixture) discover(ctx context.Context, client *http.Client, settings *Settings) (*DiscoveryDocument, error) {
	f.logger.Info().Int("step", StepDiscover).Str("url", settings.Authority.String()).Msg("Login Step 1: Retrieve the discovery document")

	disco, err := f.discoverer.Discover(ctx, client, settings.Authority.String())
	if err != nil {
		return nil, stepError(StepDiscover, 0, errors.ErrDiscovery, "%s: %v", settings.Authority, err)
	}
	f.logger.Debug().Int("step", StepDiscover).Str("issuer", disco.Issuer).Str("token_endpoint", disco.TokenEndpoint).Msg("discovered")
	return disco, nil
}

// authorize visits the authorize url and returns the state the provider put
// on the login page it ended up at.
func (f *Fixture) authorize(ctx context.Context, client *http.Client, settings *Settings, disco *DiscoveryDocument, pkceData *pkce.Data) (string, error) {
	config := xoauth2.Config{
		ClientID:    settings.ClientID,
		Endpoint:    xoauth2.Endpoint{AuthURL: disco.AuthorizeEndpoint},
		RedirectURL: settings.RedirectURI.String(),
		Scopes:      settings.Scopes,
	}
	opts := []xoauth2.AuthCodeOption{
		xoauth2.SetAuthURLParam(oauth2.ParamResponseMode, string(oauth2.QueryResponseMode)),
		xoauth2.SetAuthURLParam(oauth2.ParamCodeChallenge, pkceData.CodeChallenge),
		xoauth2.SetAuthURLParam(oauth2.ParamCodeChallengeMethod, string(oauth2.CodeMethodTypeS256)),
	}
	if settings.Audience != "" {
		opts = append(opts, xoauth2.SetAuthURLParam(oauth2.ParamAudience, settings.Audience))
	}
	authorizeURL := config.AuthCodeURL("", opts...)

	f.logger.Info().Int("step", StepAuthorize).Str("url", authorizeURL).Msg("Login Step 2: Create and go to authorize url")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return "", stepError(StepAuthorize, 0, err, "authorize url: %s", authorizeURL)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", stepError(StepAuthorize, 0, err, "authorize url: %s", authorizeURL)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", stepError(StepAuthorize, resp.StatusCode, errors.ErrUnexpectedStatus, "authorize url: %s", authorizeURL)
	}

	final := finalURL(resp, req)
	state := final.Query().Get(oauth2.ParamState)
	if state == "" {
		return "", stepError(StepAuthorize, resp.StatusCode, errors.ErrParse, "no state in url: %s", final.Redacted())
	}
	return state, nil
}

// loginPage is the response of the credential post: the page holding the
// confirmation form and the url it was served from
type loginPage struct {
	body []byte
	url  *url.URL
}

func (f *Fixture) submitCredentials(ctx context.Context, client *http.Client, settings *Settings, state string) (*loginPage, error) {
	loginURL := settings.AuthorityOrigin() + loginPath
	f.logger.Info().Int("step", StepSubmitCredentials).Str("url", loginURL).Msg("Login Step 3: Post login details to login page")

	body, err := json.Marshal(credentials{
		ClientID:    settings.ClientID,
		RedirectURI: settings.RedirectURI.String(),
		Tenant:      settings.Auth0Tenant,
		Connection:  settings.Connection,
		Username:    settings.UserName,
		State:       state,
		Password:    settings.Password,
	})
	if err != nil {
		return nil, stepError(StepSubmitCredentials, 0, err, "json.Marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(body))
	if err != nil {
		return nil, stepError(StepSubmitCredentials, 0, err, "login page: %s", loginURL)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, stepError(StepSubmitCredentials, 0, err, "login page: %s", loginURL)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stepError(StepSubmitCredentials, resp.StatusCode, err, "reading response of %s", loginURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, stepError(StepSubmitCredentials, resp.StatusCode, errors.ErrUnexpectedStatus, "login page: %s. %s", loginURL, page)
	}

	return &loginPage{body: page, url: finalURL(resp, req)}, nil
}

// submitForm replays the auto-submitting form the provider answers the
// credential post with, and returns the url the provider redirected to.
func (f *Fixture) submitForm(ctx context.Context, client *http.Client, page *loginPage) (*url.URL, error) {
	form, err := ParseForm(bytes.NewReader(page.body))
	if err != nil {
		return nil, stepError(StepSubmitForm, 0, err, "confirmation form")
	}
	action, err := form.ActionURL(page.url)
	if err != nil {
		return nil, stepError(StepSubmitForm, 0, err, "confirmation form")
	}
	f.logger.Info().Int("step", StepSubmitForm).Str("action", action.String()).
		Msgf("Login Step 4: The response contains a form. Post it to: %s", action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, stepError(StepSubmitForm, 0, err, "action: %s", action)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, stepError(StepSubmitForm, 0, err, "action: %s", action)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, stepError(StepSubmitForm, resp.StatusCode, errors.ErrUnexpectedStatus, "action: %s. %s", action, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return finalURL(resp, req), nil
}

func (f *Fixture) extractCode(callback *url.URL) (string, error) {
	f.logger.Info().Int("step", StepExchangeCode).Str("url", callback.Redacted()).
		Msg("Login Step 5: We are now redirected at the redirect-page. Get the authorization code from url")

	code := callback.Query().Get(oauth2.ParamCode)
	if code == "" {
		return "", stepError(StepExchangeCode, 0, errors.ErrParse, "could not find code in url: %s", callback.Redacted())
	}
	return code, nil
}

func (f *Fixture) exchangeCode(ctx context.Context, client *http.Client, settings *Settings, disco *DiscoveryDocument, code, verifier string) (*oauth2.TokenResponse, error) {
	f.logger.Info().Int("step", StepExchangeCode).Str("url", disco.TokenEndpoint).Msg("Login Step 5: Swap authorization code for an access token")

	config := xoauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Endpoint: xoauth2.Endpoint{
			AuthURL:   disco.AuthorizeEndpoint,
			TokenURL:  disco.TokenEndpoint,
			AuthStyle: xoauth2.AuthStyleInHeader,
		},
		RedirectURL: settings.RedirectURI.String(),
		Scopes:      settings.Scopes,
	}

	var (
		status int
		body   []byte
	)
	recording := *client
	recording.Transport = transport.Chain(client.Transport, func(next http.RoundTripper) http.RoundTripper {
		return transport.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil {
				return nil, err
			}
			status = resp.StatusCode
			body, err = io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			resp.Body = io.NopCloser(bytes.NewReader(body))
			return resp, nil
		})
	})
	ctx = context.WithValue(ctx, xoauth2.HTTPClient, &recording)

	token, err := config.Exchange(ctx, code, xoauth2.VerifierOption(verifier))
	if err == nil {
		if status != http.StatusOK {
			return nil, stepError(StepExchangeCode, status, errors.ErrUnexpectedStatus, "statuscode not ok")
		}
		return tokenResponse(token, status), nil
	}

	var retrieveErr *xoauth2.RetrieveError
	isRetrieveErr := errors.As(err, &retrieveErr)
	if isRetrieveErr && retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}

	// Only the status decides; a 200 carrying an error or no access token is
	// handed back for the caller to inspect with IsError.
	if status == http.StatusOK {
		tr := &oauth2.TokenResponse{}
		if jsonErr := json.Unmarshal(body, tr); jsonErr != nil && !isRetrieveErr {
			return nil, stepError(StepExchangeCode, status, errors.ErrParse, "token response: %v", jsonErr)
		}
		if isRetrieveErr {
			tr.Error = retrieveErr.ErrorCode
			tr.ErrorDescription = retrieveErr.ErrorDescription
		}
		tr.HTTPStatus = status
		f.logger.Warn().Int("step", StepExchangeCode).Str("error", tr.Error).Msgf("token endpoint answered 200 without a token: %v", err)
		return tr, nil
	}

	if isRetrieveErr {
		return nil, stepError(StepExchangeCode, status, fmt.Errorf("%w: %w", errors.ErrUnexpectedStatus, retrieveErr),
			"statuscode not ok: %s %s", retrieveErr.ErrorDescription, retrieveErr.ErrorCode)
	}
	return nil, stepError(StepExchangeCode, status, err, "token endpoint: %s", disco.TokenEndpoint)
}

func tokenResponse(token *xoauth2.Token, status int) *oauth2.TokenResponse {
	tr := &oauth2.TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    expiresIn(token),
		HTTPStatus:   status,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		tr.IdToken = idToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		tr.Scope = scope
	}
	return tr
}

// expiresIn reads expires_in as sent by the token endpoint. Exchange only
// converts it to Expiry, so Expiry is the fallback.
func expiresIn(token *xoauth2.Token) int {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if token.ExpiresIn > 0 {
		return int(token.ExpiresIn)
	}
	if !token.Expiry.IsZero() {
		return int(time.Until(token.Expiry).Round(time.Second).Seconds())
	}
	return 0
}

// finalURL is the url of the last request the pipeline sent, which differs
// from req's once redirects were followed
func finalURL(resp *http.Response, req *http.Request) *url.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL
	}
	return req.URL
}
