package fakeidp

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"slices"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth0-login/oauth2"
	"github.com/jrsteele09/go-auth0-login/pkce"
	"golang.org/x/crypto/bcrypt"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	// transactionCookieName ties the login page post to the authorize request
	transactionCookieName = "did"
)

// issuer is derived from the host the request was sent to
func issuer(r *http.Request) string {
	return origin(r) + "/"
}

func origin(r *http.Request) string {
	return getScheme(r) + "://" + r.Host
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// discovery serves the OIDC discovery document
func (p *Provider) discovery(w http.ResponseWriter, r *http.Request) {
	base := origin(r)
	resp := map[string]any{
		"issuer":                                issuer(r),
		"authorization_endpoint":                base + RouteAuthorize,
		"token_endpoint":                        base + RouteToken,
		"userinfo_endpoint":                     base + RouteUserInfo,
		"response_types_supported":              []string{string(oauth2.CodeResponseType)},
		"response_modes_supported":              []string{string(oauth2.QueryResponseMode), string(oauth2.FormPostResponseMode)},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{jwtlib.SigningMethodHS256.Alg()},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		"grant_types_supported":                 []string{string(oauth2.AuthorizationCodeGrant)},
		"code_challenge_methods_supported":      []string{string(oauth2.CodeMethodTypeS256)},
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	_ = json.NewEncoder(w).Encode(resp)
}

// authorize starts a transaction and sends the browser to the login page
func (p *Provider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	client, ok := p.clients[q.Get(oauth2.ParamClientID)]
	if !ok {
		http.Error(w, "Invalid authorization request: unknown client", http.StatusBadRequest)
		return
	}
	redirectURI := q.Get(oauth2.ParamRedirectURI)
	if !slices.Contains(client.RedirectURIs, redirectURI) {
		http.Error(w, "Invalid authorization request: redirect_uri is not registered", http.StatusBadRequest)
		return
	}
	if q.Get(oauth2.ParamResponseType) != string(oauth2.CodeResponseType) {
		http.Error(w, "Invalid authorization request: unsupported response type", http.StatusBadRequest)
		return
	}
	if mode := q.Get(oauth2.ParamResponseMode); mode != "" && mode != string(oauth2.QueryResponseMode) {
		http.Error(w, "Invalid authorization request: unsupported response mode", http.StatusBadRequest)
		return
	}
	if err := validatePKCE(q.Get(oauth2.ParamCodeChallenge), q.Get(oauth2.ParamCodeChallengeMethod)); err != nil {
		http.Error(w, "Invalid authorization request: "+err.Error(), http.StatusBadRequest)
		return
	}

	txn := &Transaction{
		State:               uuid.New().String(),
		ClientID:            client.ID,
		RedirectURI:         redirectURI,
		ClientState:         q.Get(oauth2.ParamState),
		Nonce:               q.Get("nonce"),
		Scope:               q.Get(oauth2.ParamScope),
		Audience:            q.Get(oauth2.ParamAudience),
		CodeChallenge:       q.Get(oauth2.ParamCodeChallenge),
		CodeChallengeMethod: q.Get(oauth2.ParamCodeChallengeMethod),
		CreatedAt:           p.nowTime(),
	}
	if err := p.store.Upsert(txn); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     transactionCookieName,
		Value:    txn.State,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	loginURL := fmt.Sprintf("%s?%s", RouteLoginPage, url.Values{
		oauth2.ParamState: {txn.State},
		"client":          {client.ID},
		"protocol":        {"oauth2"},
	}.Encode())
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// validatePKCE validates PKCE (Proof Key for Code Exchange) parameters; only S256 is accepted
func validatePKCE(codeChallenge, codeChallengeMethod string) error {
	if codeChallenge == "" || codeChallengeMethod == "" {
		return fmt.Errorf("PKCE required: code_challenge and code_challenge_method must be provided")
	}
	// base64url encoded SHA-256 is 43 characters
	if len(codeChallenge) < 43 || len(codeChallenge) > 128 {
		return fmt.Errorf("code_challenge length must be between 43 and 128 characters")
	}
	if oauth2.CodeMethodType(codeChallengeMethod) != oauth2.CodeMethodTypeS256 {
		return fmt.Errorf("code_challenge_method must be 'S256'")
	}
	return nil
}

var loginPageTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><head><title>Log in | {{.Tenant}}</title></head>
<body><div id="auth0-lock-container" data-state="{{.State}}"></div></body></html>`))

// loginPage serves the (script driven) universal login page
func (p *Provider) loginPage(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get(oauth2.ParamState)
	if _, err := p.store.Get(state); err != nil {
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	_ = loginPageTemplate.Execute(w, struct{ Tenant, State string }{p.config.Tenant, state})
}

type credentialsRequest struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Tenant      string `json:"tenant"`
	Connection  string `json:"connection"`
	Username    string `json:"username"`
	State       string `json:"state"`
	Password    string `json:"password"`
}

// hiddenFormTemplate mimics the WS-Federation style form Auth0 answers a
// successful credential post with
var hiddenFormTemplate = template.Must(template.New("hiddenform").Parse(`<form method="post" name="hiddenform" action="{{.Action}}"><input type="hidden" name="wa" value="wsignin1.0"><input type="hidden" name="wresult" value="{{.Ticket}}"><input type="hidden" name="wctx" value="{{.Context}}"><noscript><p>Script is disabled. Click Submit to continue.</p><input type="submit" value="Submit"></noscript></form><script type="text/javascript">window.setTimeout('document.forms[0].submit()', 0);</script>`))

type loginContext struct {
	Strategy    string `json:"strategy"`
	Auth0Tenant string `json:"auth0Client"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// usernamePasswordLogin checks the posted credentials and answers with the hidden form
func (p *Provider) usernamePasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuth0Error(w, "invalid_request", "Malformed body", http.StatusBadRequest)
		return
	}

	txn, err := p.store.Get(req.State)
	if err != nil {
		writeAuth0Error(w, "invalid_state", "Invalid state", http.StatusBadRequest)
		return
	}
	if c, err := r.Cookie(transactionCookieName); err != nil || c.Value != txn.State {
		writeAuth0Error(w, "invalid_request", "Missing transaction cookie", http.StatusForbidden)
		return
	}
	if req.ClientID != txn.ClientID || req.RedirectURI != txn.RedirectURI {
		writeAuth0Error(w, "invalid_request", "client_id or redirect_uri does not match the authorization request", http.StatusBadRequest)
		return
	}
	if req.Tenant != p.config.Tenant {
		writeAuth0Error(w, "invalid_request", "Unknown tenant", http.StatusBadRequest)
		return
	}
	if req.Connection != p.config.Connection {
		writeAuth0Error(w, "invalid_request", "Unknown connection "+req.Connection, http.StatusBadRequest)
		return
	}

	hash, ok := p.users[req.Username]
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		writeAuth0Error(w, "invalid_user_password", "Wrong email or password.", http.StatusUnauthorized)
		return
	}

	txn.UserName = req.Username
	if err := p.store.Upsert(txn); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ticket := uuid.New().String()
	p.store.AddTicket(ticket, txn.State)

	wctx, err := json.Marshal(loginContext{
		Strategy:    "auth0",
		Auth0Tenant: p.config.Tenant,
		State:       txn.State,
		RedirectURI: txn.RedirectURI,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	_ = hiddenFormTemplate.Execute(w, struct{ Action, Ticket, Context string }{
		Action:  origin(r) + RouteCallback,
		Ticket:  ticket,
		Context: string(wctx),
	})
}

// callback redeems the login ticket and redirects to the client with a code
func (p *Provider) callback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	txn, err := p.store.RedeemTicket(r.PostForm.Get("wresult"))
	if err != nil {
		http.Error(w, "Invalid login ticket", http.StatusBadRequest)
		return
	}

	var lc loginContext
	if err := json.Unmarshal([]byte(r.PostForm.Get("wctx")), &lc); err != nil || lc.State != txn.State {
		http.Error(w, "Invalid wctx", http.StatusBadRequest)
		return
	}

	code := uuid.New().String()
	p.store.AddCode(code, txn.State)

	u, err := url.Parse(txn.RedirectURI)
	if err != nil {
		http.Error(w, "invalid redirect URI", http.StatusInternalServerError)
		return
	}
	params := u.Query()
	params.Set(oauth2.ParamCode, code)
	if txn.ClientState != "" {
		params.Set(oauth2.ParamState, txn.ClientState)
	}
	u.RawQuery = params.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// token exchanges an authorization code for tokens
func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
		return
	}

	client, err := p.authenticateClient(r)
	if err != nil {
		writeJSONError(w, "invalid_client", err.Error(), http.StatusUnauthorized)
		return
	}
	if r.PostForm.Get(oauth2.ParamGrantType) != string(oauth2.AuthorizationCodeGrant) {
		writeJSONError(w, "unsupported_grant_type", "only authorization_code is supported", http.StatusBadRequest)
		return
	}

	txn, err := p.store.RedeemCode(r.PostForm.Get(oauth2.ParamCode))
	if err != nil {
		writeJSONError(w, "invalid_grant", "Invalid authorization code", http.StatusForbidden)
		return
	}
	if txn.ClientID != client.ID {
		writeJSONError(w, "invalid_grant", "Code was issued to another client", http.StatusForbidden)
		return
	}
	if r.PostForm.Get(oauth2.ParamRedirectURI) != txn.RedirectURI {
		writeJSONError(w, "invalid_grant", "redirect_uri does not match the authorization request", http.StatusForbidden)
		return
	}
	if pkce.CodeChallenge(r.PostForm.Get(oauth2.ParamCodeVerifier)) != txn.CodeChallenge {
		writeJSONError(w, "invalid_grant", "Failed to verify code verifier", http.StatusForbidden)
		return
	}

	iss := issuer(r)
	accessToken, err := p.createAccessToken(iss, txn)
	if err != nil {
		writeJSONError(w, "server_error", err.Error(), http.StatusInternalServerError)
		return
	}
	resp := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(tokenLifetime.Seconds()),
		"scope":        txn.Scope,
	}
	if slices.Contains(strings.Fields(txn.Scope), "openid") {
		idToken, err := p.createIDToken(iss, txn, accessToken)
		if err != nil {
			writeJSONError(w, "server_error", err.Error(), http.StatusInternalServerError)
			return
		}
		resp["id_token"] = idToken
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

// authenticateClient accepts client_secret_basic and client_secret_post
func (p *Provider) authenticateClient(r *http.Request) (Client, error) {
	id, secret, ok := r.BasicAuth()
	if ok {
		// RFC 6749 2.3.1: credentials are form-urlencoded before base64
		var err error
		if id, err = url.QueryUnescape(id); err != nil {
			return Client{}, fmt.Errorf("malformed client id")
		}
		if secret, err = url.QueryUnescape(secret); err != nil {
			return Client{}, fmt.Errorf("malformed client secret")
		}
	} else {
		id, secret = r.PostForm.Get(oauth2.ParamClientID), r.PostForm.Get("client_secret")
	}

	client, exists := p.clients[id]
	if !exists || client.Secret != secret {
		return Client{}, fmt.Errorf("unauthorized client")
	}
	return client, nil
}

// userInfo returns the claims of a bearer access token
func (p *Provider) userInfo(w http.ResponseWriter, r *http.Request) {
	raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return p.signingKey, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithIssuer(issuer(r)))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub, _ := claims.GetSubject()
	w.Header().Set("Content-Type", contentTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"sub":      sub,
		"nickname": strings.TrimPrefix(sub, "auth0|"),
	})
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// writeAuth0Error writes the error shape of the universal login endpoints
func writeAuth0Error(w http.ResponseWriter, code, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":        "ValidationError",
		"code":        code,
		"description": description,
	})
}
