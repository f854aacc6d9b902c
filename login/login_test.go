package login_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth0-login/internal/errors"
	"github.com/jrsteele09/go-auth0-login/internal/fakeidp"
	"github.com/jrsteele09/go-auth0-login/login"
	"github.com/jrsteele09/go-auth0-login/pkce"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testTenant       = "test-tenant"
	testConnection   = login.DefaultConnection
	testClientID     = "test-client-1"
	testClientSecret = "test-secret/1+2"
	testRedirectURI  = "https://app.example/callback"
	testAudience     = "https://api.example"
	testUserName     = "john.doe@example.com"
	testUserPassword = "password123"
)

// testFixture holds all test dependencies
type testFixture struct {
	provider *fakeidp.Provider
	server   *httptest.Server
	fixture  *login.Fixture
}

// setupTestFixture starts a fake identity provider and a login fixture that talks to it
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	provider, err := fakeidp.New(fakeidp.Config{
		Tenant:     testTenant,
		Connection: testConnection,
		Clients: []fakeidp.Client{{
			ID:           testClientID,
			Secret:       testClientSecret,
			RedirectURIs: []string{testRedirectURI},
		}},
		Users: map[string]string{testUserName: testUserPassword},
	}, fakeidp.WithLogger(logger))
	require.NoError(t, err)

	server := httptest.NewServer(provider)
	t.Cleanup(server.Close)

	return &testFixture{
		provider: provider,
		server:   server,
		fixture: login.NewFixture(
			login.WithLogger(logger),
			login.WithBaseTransport(server.Client().Transport),
		),
	}
}

func (f *testFixture) settings(t *testing.T) *login.Settings {
	t.Helper()
	return &login.Settings{
		Authority:    mustParse(t, f.server.URL+"/"),
		Audience:     testAudience,
		Auth0Tenant:  testTenant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURI:  mustParse(t, testRedirectURI),
		Connection:   testConnection,
		Scopes:       []string{"openid", "profile", "email"},
		UserName:     testUserName,
		Password:     testUserPassword,
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func requireStepError(t *testing.T, err error, step int) *login.StepError {
	t.Helper()
	require.Error(t, err)
	var stepErr *login.StepError
	require.True(t, errors.As(err, &stepErr), "expected *login.StepError, got %T: %v", err, err)
	require.Equal(t, step, stepErr.Step, err.Error())
	return stepErr
}

func TestLogin_Success(t *testing.T) {
	f := setupTestFixture(t)
	settings := f.settings(t)

	token, err := f.fixture.Login(context.Background(), settings)
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
	require.False(t, token.IsError())
	require.Equal(t, http.StatusOK, token.HTTPStatus)
	require.Equal(t, "Bearer", token.TokenType)
	require.Equal(t, "openid profile email", token.Scope)
	require.NotEmpty(t, token.IdToken)
	require.Equal(t, 24*60*60, token.ExpiresIn)

	t.Run("access token is issued for the audience", func(t *testing.T) {
		claims := jwtlib.MapClaims{}
		_, err := jwtlib.ParseWithClaims(token.AccessToken, claims, func(*jwtlib.Token) (any, error) {
			return f.provider.SigningKey(), nil
		})
		require.NoError(t, err)
		require.Equal(t, testAudience, claims["aud"])
		require.Equal(t, "auth0|"+testUserName, claims["sub"])
		require.Equal(t, testClientID, claims["azp"])
	})

	t.Run("id token at_hash matches", func(t *testing.T) {
		require.NoError(t, login.VerifyTokenHashes(token))
	})

	t.Run("access token is accepted by userinfo", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, f.server.URL+fakeidp.RouteUserInfo, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		resp, err := f.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("settings are not modified", func(t *testing.T) {
		require.Equal(t, f.settings(t), settings)
	})
}

func TestOIDCDiscoverer(t *testing.T) {
	f := setupTestFixture(t)

	for _, authority := range []string{f.server.URL + "/", f.server.URL} {
		t.Run(authority, func(t *testing.T) {
			disco, err := login.OIDCDiscoverer{}.Discover(context.Background(), f.server.Client(), authority)
			require.NoError(t, err)
			require.Equal(t, f.server.URL+"/", disco.Issuer)
			require.Equal(t, f.server.URL+fakeidp.RouteAuthorize, disco.AuthorizeEndpoint)
			require.Equal(t, f.server.URL+fakeidp.RouteToken, disco.TokenEndpoint)
		})
	}
}

func TestLogin_AuthorityWithoutTrailingSlash(t *testing.T) {
	f := setupTestFixture(t)
	settings := f.settings(t)
	settings.Authority = mustParse(t, f.server.URL)

	token, err := f.fixture.Login(context.Background(), settings)
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
}

func TestLogin_ParallelLogins(t *testing.T) {
	f := setupTestFixture(t)

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	errs := make([]error, 5)
	for i := range tokens {
		settings := f.settings(t)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := f.fixture.Login(context.Background(), settings)
			errs[i] = err
			if err == nil {
				tokens[i] = token.AccessToken
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range tokens {
		require.NoError(t, errs[i])
		require.NotEmpty(t, tokens[i])
		require.False(t, seen[tokens[i]])
		seen[tokens[i]] = true
	}
}

func TestLogin_InvalidSettings(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name   string
		modify func(*login.Settings)
	}{
		{"no authority", func(s *login.Settings) { s.Authority = nil }},
		{"relative authority", func(s *login.Settings) { s.Authority = &url.URL{Path: "/tenant"} }},
		{"no redirect uri", func(s *login.Settings) { s.RedirectURI = nil }},
		{"no client id", func(s *login.Settings) { s.ClientID = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			settings := f.settings(t)
			tc.modify(settings)
			_, err := f.fixture.Login(context.Background(), settings)
			require.True(t, errors.Is(err, errors.ErrInvalidSettings))
		})
	}
}

func TestLogin_DiscoveryFailure(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("document not found", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteDiscovery, http.StatusNotFound, "not found")
		defer f.provider.ClearFailures()

		_, err := f.fixture.Login(context.Background(), f.settings(t))
		requireStepError(t, err, login.StepDiscover)
		require.True(t, errors.Is(err, errors.ErrDiscovery))
	})

	t.Run("authority unreachable", func(t *testing.T) {
		unreachable := httptest.NewServer(http.NotFoundHandler())
		unreachable.Close()

		settings := f.settings(t)
		settings.Authority = mustParse(t, unreachable.URL+"/")
		_, err := f.fixture.Login(context.Background(), settings)
		requireStepError(t, err, login.StepDiscover)
	})
}

func TestLogin_AuthorizeFailure(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("unexpected status", func(t *testing.T) {
		settings := f.settings(t)
		settings.RedirectURI = mustParse(t, "https://app.example/not-registered")

		_, err := f.fixture.Login(context.Background(), settings)
		stepErr := requireStepError(t, err, login.StepAuthorize)
		require.Equal(t, http.StatusBadRequest, stepErr.StatusCode)
		require.True(t, errors.Is(err, errors.ErrUnexpectedStatus))
		require.Contains(t, err.Error(), "authorize url")
	})

	t.Run("login page without state", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteAuthorize, http.StatusOK, "<html></html>")
		defer f.provider.ClearFailures()

		_, err := f.fixture.Login(context.Background(), f.settings(t))
		requireStepError(t, err, login.StepAuthorize)
		require.True(t, errors.Is(err, errors.ErrParse))
	})
}

func TestLogin_CredentialFailure(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("server error", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteLogin, http.StatusInternalServerError, "upstream exploded")
		defer f.provider.ClearFailures()

		_, err := f.fixture.Login(context.Background(), f.settings(t))
		stepErr := requireStepError(t, err, login.StepSubmitCredentials)
		require.Equal(t, http.StatusInternalServerError, stepErr.StatusCode)
		require.Contains(t, err.Error(), "500")
		require.Contains(t, err.Error(), "upstream exploded")
		require.Contains(t, err.Error(), fakeidp.RouteLogin)
	})

	t.Run("wrong password", func(t *testing.T) {
		settings := f.settings(t)
		settings.Password = "not-the-password"

		_, err := f.fixture.Login(context.Background(), settings)
		stepErr := requireStepError(t, err, login.StepSubmitCredentials)
		require.Equal(t, http.StatusUnauthorized, stepErr.StatusCode)
		require.Contains(t, err.Error(), "invalid_user_password")
		require.NotContains(t, err.Error(), "not-the-password")
	})

	t.Run("unknown connection", func(t *testing.T) {
		settings := f.settings(t)
		settings.Connection = "google-oauth2"

		_, err := f.fixture.Login(context.Background(), settings)
		requireStepError(t, err, login.StepSubmitCredentials)
	})
}

func TestLogin_ConfirmationFormFailure(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("page without form", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteLogin, http.StatusOK, "<html><body>Welcome back</body></html>")
		defer f.provider.ClearFailures()

		_, err := f.fixture.Login(context.Background(), f.settings(t))
		requireStepError(t, err, login.StepSubmitForm)
		require.True(t, errors.Is(err, errors.ErrParse))
	})

	t.Run("form post rejected", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteCallback, http.StatusBadRequest, "Invalid login ticket")
		defer f.provider.ClearFailures()

		_, err := f.fixture.Login(context.Background(), f.settings(t))
		stepErr := requireStepError(t, err, login.StepSubmitForm)
		require.Equal(t, http.StatusBadRequest, stepErr.StatusCode)
		require.Contains(t, err.Error(), "Invalid login ticket")
	})

	t.Run("no code in final url", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteCallback, http.StatusOK, "")
		defer f.provider.ClearFailures()

		_, err := f.fixture.Login(context.Background(), f.settings(t))
		requireStepError(t, err, login.StepExchangeCode)
		require.True(t, errors.Is(err, errors.ErrParse))
		require.Contains(t, err.Error(), "could not find code")
	})
}

func TestLogin_TokenExchangeFailure(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("invalid_grant", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteToken, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Invalid authorization code"}`)
		defer f.provider.ClearFailures()

		token, err := f.fixture.Login(context.Background(), f.settings(t))
		require.Nil(t, token)
		stepErr := requireStepError(t, err, login.StepExchangeCode)
		require.Equal(t, http.StatusBadRequest, stepErr.StatusCode)
		require.True(t, errors.Is(err, errors.ErrUnexpectedStatus))
		require.Contains(t, err.Error(), "invalid_grant")
		require.Contains(t, err.Error(), "Invalid authorization code")
	})

	t.Run("200 with error body is returned", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteToken, http.StatusOK, `{"error":"weird","error_description":"odd answer"}`)
		defer f.provider.ClearFailures()

		token, err := f.fixture.Login(context.Background(), f.settings(t))
		require.NoError(t, err)
		require.True(t, token.IsError())
		require.Equal(t, "weird", token.Error)
		require.Equal(t, "odd answer", token.ErrorDescription)
		require.Equal(t, http.StatusOK, token.HTTPStatus)
		require.Empty(t, token.AccessToken)
	})

	t.Run("200 without access token is returned", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteToken, http.StatusOK, `{"token_type":"Bearer","expires_in":60}`)
		defer f.provider.ClearFailures()

		token, err := f.fixture.Login(context.Background(), f.settings(t))
		require.NoError(t, err)
		require.True(t, token.IsError())
		require.Empty(t, token.Error)
		require.Equal(t, "Bearer", token.TokenType)
		require.Equal(t, 60, token.ExpiresIn)
		require.Equal(t, http.StatusOK, token.HTTPStatus)
	})

	t.Run("200 with non json body is a parse error", func(t *testing.T) {
		f.provider.FailWith(fakeidp.RouteToken, http.StatusOK, "<html>maintenance</html>")
		defer f.provider.ClearFailures()

		token, err := f.fixture.Login(context.Background(), f.settings(t))
		require.Nil(t, token)
		requireStepError(t, err, login.StepExchangeCode)
	})

	t.Run("wrong client secret", func(t *testing.T) {
		settings := f.settings(t)
		settings.ClientSecret = "wrong"

		_, err := f.fixture.Login(context.Background(), settings)
		stepErr := requireStepError(t, err, login.StepExchangeCode)
		require.Equal(t, http.StatusUnauthorized, stepErr.StatusCode)
		require.Contains(t, err.Error(), "invalid_client")
	})
}

func TestLogin_RedirectLoop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/authorize?again=1", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fixture := login.NewFixture(
		login.WithLogger(zerolog.New(zerolog.NewTestWriter(t))),
		login.WithDiscoverer(staticDiscovery(server.URL)),
	)
	settings := &login.Settings{
		Authority:   mustParse(t, server.URL+"/"),
		ClientID:    testClientID,
		RedirectURI: mustParse(t, testRedirectURI),
	}

	_, err := fixture.Login(context.Background(), settings)
	requireStepError(t, err, login.StepAuthorize)
	require.True(t, errors.Is(err, errors.ErrRedirectLoop))
}

func staticDiscovery(base string) login.Discoverer {
	return login.DiscovererFunc(func(context.Context, *http.Client, string) (*login.DiscoveryDocument, error) {
		return &login.DiscoveryDocument{
			Issuer:            base + "/",
			AuthorizeEndpoint: base + "/authorize",
			TokenEndpoint:     base + "/oauth/token",
		}, nil
	})
}

// TestLogin_MockedProvider drives the flow against hand written endpoints:
// the callback redirect to app.example is intercepted and the code is
// exchanged together with the verifier that matches the authorize challenge.
func TestLogin_MockedProvider(t *testing.T) {
	var (
		mu        sync.Mutex
		challenge string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("response_type") != "code" || q.Get("response_mode") != "query" ||
			q.Get("code_challenge_method") != "S256" || q.Get("audience") != testAudience ||
			q.Get("scope") != "openid profile" || q.Get("redirect_uri") != testRedirectURI {
			http.Error(w, "bad authorize request "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		mu.Lock()
		challenge = q.Get("code_challenge")
		mu.Unlock()
		http.Redirect(w, r, "/login?state=XYZ", http.StatusFound)
	})
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>login</html>")
	})
	mux.HandleFunc("POST /usernamepassword/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["state"] != "XYZ" ||
			body["username"] != testUserName || body["password"] != testUserPassword ||
			body["tenant"] != testTenant || body["connection"] != testConnection ||
			body["client_id"] != testClientID || body["redirect_uri"] != testRedirectURI {
			http.Error(w, "bad credentials request", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `<form method="post" action="/login/callback"><input type="hidden" name="wresult" value="ticket"></form>`)
	})
	mux.HandleFunc("POST /login/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("wresult") != "ticket" {
			http.Error(w, "bad ticket", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://app.example/callback?code=ABC123&state=XYZ", http.StatusFound)
	})
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		mu.Lock()
		expected := challenge
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok || id != testClientID || secret != url.QueryEscape(testClientSecret) ||
			r.FormValue("grant_type") != "authorization_code" || r.FormValue("code") != "ABC123" ||
			pkce.CodeChallenge(r.FormValue("code_verifier")) != expected {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fixture := login.NewFixture(
		login.WithLogger(zerolog.New(zerolog.NewTestWriter(t))),
		login.WithDiscoverer(staticDiscovery(server.URL)),
	)
	token, err := fixture.Login(context.Background(), &login.Settings{
		Authority:    mustParse(t, server.URL+"/"),
		Audience:     testAudience,
		Auth0Tenant:  testTenant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURI:  mustParse(t, testRedirectURI),
		Connection:   testConnection,
		Scopes:       []string{"openid", "profile"},
		UserName:     testUserName,
		Password:     testUserPassword,
	})
	require.NoError(t, err)
	require.Equal(t, "at-123", token.AccessToken)
	require.Equal(t, 3600, token.ExpiresIn)
	require.Empty(t, token.Error)
	require.Equal(t, http.StatusOK, token.HTTPStatus)
}
