// Package fakeidp is an in-process identity provider that behaves like an
// Auth0 tenant using the universal login page: /authorize redirects to a
// login page, credentials are posted as JSON to /usernamepassword/login,
// which answers with an auto-submitting form that posts to /login/callback,
// which finally redirects to the client's redirect_uri with a code.
package fakeidp

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Routes served by the provider
const (
	RouteDiscovery = "/.well-known/openid-configuration"
	RouteAuthorize = "/authorize"
	RouteLoginPage = "/login"
	RouteLogin     = "/usernamepassword/login"
	RouteCallback  = "/login/callback"
	RouteToken     = "/oauth/token"
	RouteUserInfo  = "/userinfo"
)

// Client is an application registered with the provider.
type Client struct {
	ID           string
	Secret       string
	RedirectURIs []string
}

// Config describes the tenant.
type Config struct {
	Tenant     string
	Connection string
	Clients    []Client
	// Users maps user names to clear text passwords; they are hashed on New.
	Users map[string]string
}

// Provider is an http.Handler serving the tenant.
type Provider struct {
	config     Config
	clients    map[string]Client
	users      map[string][]byte
	store      *store
	signingKey []byte
	logger     zerolog.Logger
	nowTime    func() time.Time
	router     chi.Router

	failuresLock sync.RWMutex
	failures     map[string]failure
}

type failure struct {
	status int
	body   string
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithLogger sets the logger for served requests.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// New creates a Provider for the given tenant configuration.
func New(config Config, options ...Option) (*Provider, error) {
	if config.Connection == "" {
		return nil, fmt.Errorf("[fakeidp New] connection is required")
	}

	p := &Provider{
		config:     config,
		clients:    make(map[string]Client),
		users:      make(map[string][]byte),
		store:      newStore(),
		signingKey: make([]byte, 32),
		logger:     zerolog.Nop(),
		nowTime:    time.Now,
		failures:   make(map[string]failure),
	}
	rand.Read(p.signingKey)

	for _, c := range config.Clients {
		p.clients[c.ID] = c
	}
	for name, password := range config.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("[fakeidp New] hashing password of %s: %w", name, err)
		}
		p.users[name] = hash
	}

	for _, opt := range options {
		opt(p)
	}

	p.router = p.routes()
	return p, nil
}

// SigningKey returns the HMAC key tokens are signed with.
func (p *Provider) SigningKey() []byte {
	return p.signingKey
}

// FailWith makes every request to route answer with status and body until
// ClearFailures is called.
func (p *Provider) FailWith(route string, status int, body string) {
	p.failuresLock.Lock()
	defer p.failuresLock.Unlock()
	p.failures[route] = failure{status: status, body: body}
}

// ClearFailures removes all injected failures.
func (p *Provider) ClearFailures() {
	p.failuresLock.Lock()
	defer p.failuresLock.Unlock()
	p.failures = make(map[string]failure)
}

func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

func (p *Provider) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(p.loggingMiddleware)
	r.Use(p.failureMiddleware)

	r.Get(RouteDiscovery, p.discovery)
	r.Get(RouteAuthorize, p.authorize)
	r.Get(RouteLoginPage, p.loginPage)
	r.Post(RouteLogin, p.usernamePasswordLogin)
	r.Post(RouteCallback, p.callback)
	r.Post(RouteToken, p.token)
	r.Get(RouteUserInfo, p.userInfo)
	return r
}

func (p *Provider) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		p.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", ww.Status()).Msg("fakeidp")
	})
}

func (p *Provider) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.failuresLock.RLock()
		f, ok := p.failures[r.URL.Path]
		p.failuresLock.RUnlock()

		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if len(f.body) > 0 && f.body[0] == '{' {
			w.Header().Set("Content-Type", contentTypeJSON)
		}
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	})
}
