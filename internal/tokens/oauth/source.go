// Package oauth exchanges client credentials for backend bearer tokens.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"peoplefinder/internal/tokens"
)

// DefaultLifetime is assumed when neither the token response nor the token
// itself states an expiry.
const DefaultLifetime = 5 * time.Minute

// Config describes one backend's client-credentials grant.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	// BasicAuth sends the client credentials in the Authorization header
	// instead of the form body.
	BasicAuth bool
}

// Source implements tokens.Source with golang.org/x/oauth2.
type Source struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Source)

// WithHTTPClient sets the client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		s.httpClient = c
	}
}

// WithClock replaces time.Now when converting an absolute expiry into a lifetime.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

var errIncompleteConfig = errors.New("client credentials config incomplete")

// New builds a Source. ClientID, ClientSecret and TokenURL are required.
func New(cfg Config, opts ...Option) (*Source, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
		return nil, errIncompleteConfig
	}
	style := oauth2.AuthStyleInParams
	if cfg.BasicAuth {
		style = oauth2.AuthStyleInHeader
	}
	s := &Source{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    style,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Exchange performs one client-credentials request.
func (s *Source) Exchange(ctx context.Context) (tokens.Grant, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return tokens.Grant{}, fmt.Errorf("client credentials exchange: %w", err)
	}
	return tokens.Grant{
		AccessToken: tok.AccessToken,
		ExpiresIn:   s.lifetime(tok),
	}, nil
}

// lifetime prefers the response's expires_in, then the JWT exp claim.
func (s *Source) lifetime(tok *oauth2.Token) time.Duration {
	now := s.now().UTC()
	if !tok.Expiry.IsZero() {
		return tok.Expiry.UTC().Sub(now)
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		return exp.Sub(now)
	}
	return DefaultLifetime
}

// jwtExpiry reads exp without verifying the signature; the token is only
// forwarded, never trusted locally.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.UTC(), true
}
