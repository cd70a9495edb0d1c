package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplefinder/internal/tokens/oauth"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func tokenServer(t *testing.T, body map[string]any, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := oauth.New(oauth.Config{ClientID: "id", TokenURL: "http://x"})
	assert.Error(t, err)
}

func TestExchangeUsesExpiresIn(t *testing.T) {
	srv := tokenServer(t, map[string]any{
		"access_token": "graph-token",
		"token_type":   "Bearer",
		"expires_in":   3599,
	}, func(r *http.Request) {
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "https://graph.example.com/.default", r.PostForm.Get("scope"))
	})

	src, err := oauth.New(oauth.Config{
		ClientID:     "app-id",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
		Scopes:       []string{"https://graph.example.com/.default"},
	}, oauth.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	grant, err := src.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "graph-token", grant.AccessToken)
	assert.InDelta(t, (3599 * time.Second).Seconds(), grant.ExpiresIn.Seconds(), 5)
}

func TestExchangeBasicAuth(t *testing.T) {
	srv := tokenServer(t, map[string]any{
		"access_token": "cc-token",
		"token_type":   "bearer",
		"expires_in":   86399,
	}, func(r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "cc-id", user)
		assert.Equal(t, "cc-secret", pass)
		assert.Empty(t, r.PostForm.Get("client_secret"))
	})

	src, err := oauth.New(oauth.Config{
		ClientID:     "cc-id",
		ClientSecret: "cc-secret",
		TokenURL:     srv.URL,
		BasicAuth:    true,
	}, oauth.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	grant, err := src.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cc-token", grant.AccessToken)
}

func TestExchangeFallsBackToJWTExpiry(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "svc",
		"exp": fixedNow.Add(10 * time.Minute).Unix(),
	}).SignedString([]byte("unused"))
	require.NoError(t, err)

	srv := tokenServer(t, map[string]any{"access_token": signed, "token_type": "Bearer"}, nil)
	src, err := oauth.New(oauth.Config{ClientID: "a", ClientSecret: "b", TokenURL: srv.URL},
		oauth.WithHTTPClient(srv.Client()),
		oauth.WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)

	grant, err := src.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, grant.ExpiresIn)
}

func TestExchangeDefaultLifetime(t *testing.T) {
	srv := tokenServer(t, map[string]any{"access_token": "opaque", "token_type": "Bearer"}, nil)
	src, err := oauth.New(oauth.Config{ClientID: "a", ClientSecret: "b", TokenURL: srv.URL}, oauth.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	grant, err := src.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oauth.DefaultLifetime, grant.ExpiresIn)
}

func TestExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	src, err := oauth.New(oauth.Config{ClientID: "a", ClientSecret: "b", TokenURL: srv.URL}, oauth.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = src.Exchange(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}
