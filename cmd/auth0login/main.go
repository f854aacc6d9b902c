package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http/httptest"
	"net/url"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth0-login/internal/config"
	"github.com/jrsteele09/go-auth0-login/internal/fakeidp"
	"github.com/jrsteele09/go-auth0-login/login"
	"github.com/rs/zerolog"
)

func main() {
	demo := flag.Bool("demo", false, "log in against an in-process fake identity provider")
	envFile := flag.String("env", "", "optional .env file with AUTH0_* settings")
	flag.Parse()

	if err := run(*demo, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "auth0login: %s\n", err)
		os.Exit(1)
	}
}

func run(demo bool, envFile string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	c := config.New(envFiles...)
	logger := newLogger(c.GetLogLevel())
	displayAppname(c.GetAppName())

	var (
		settings *login.Settings
		options  = []login.FixtureOption{login.WithLogger(logger)}
		err      error
	)
	if demo {
		server, demoSettings, err := startDemoProvider(logger)
		if err != nil {
			return err
		}
		defer server.Close()
		settings = demoSettings
		options = append(options, login.WithBaseTransport(server.Client().Transport))
	} else {
		settings, err = config.LoginSettings(c)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.GetLoginTimeout())
	defer cancel()

	token, err := login.NewFixture(options...).Login(ctx, settings)
	if err != nil {
		return err
	}
	if token.IsError() {
		return fmt.Errorf("token endpoint returned no access token: %s %s", token.Error, token.ErrorDescription)
	}
	fmt.Println(token.AccessToken)
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

func startDemoProvider(logger zerolog.Logger) (*httptest.Server, *login.Settings, error) {
	const (
		clientID    = "demo-client"
		redirectURI = "https://app.example/callback"
		username    = "demo@example.com"
		password    = "demo-password"
	)

	provider, err := fakeidp.New(fakeidp.Config{
		Tenant:     "demo",
		Connection: login.DefaultConnection,
		Clients: []fakeidp.Client{{
			ID:           clientID,
			Secret:       "demo-secret",
			RedirectURIs: []string{redirectURI},
		}},
		Users: map[string]string{username: password},
	}, fakeidp.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	server := httptest.NewServer(provider)

	authority, _ := url.Parse(server.URL + "/")
	redirect, _ := url.Parse(redirectURI)
	return server, &login.Settings{
		Authority:    authority,
		Audience:     "https://api.example",
		Auth0Tenant:  "demo",
		ClientID:     clientID,
		ClientSecret: "demo-secret",
		RedirectURI:  redirect,
		Connection:   login.DefaultConnection,
		Scopes:       []string{"openid", "profile", "email"},
		UserName:     username,
		Password:     password,
	}, nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(os.Stderr, myFigure.String())
}
