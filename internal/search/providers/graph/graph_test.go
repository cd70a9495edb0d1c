package graph_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
	"peoplefinder/internal/search/providers/contract"
	"peoplefinder/internal/search/providers/graph"
)

type staticToken struct {
	token string
	err   error
}

func (s staticToken) AccessToken(context.Context) (string, error) { return s.token, s.err }

var users = map[string]map[string]any{
	"u-alice": {
		"id": "u-alice", "displayName": "Alice Smith", "mail": "alice@example.com",
		"userPrincipalName": "alice@example.com", "jobTitle": "Controller",
		"businessPhones": []string{"+1 555 0200"}, "mobilePhone": "+1 555 0300",
		"accountEnabled": true,
	},
	"u-alicia": {
		"id": "u-alicia", "displayName": "Alicia Keys", "mail": "alicia@example.com",
		"businessPhones": []string{},
	},
}

// fakeGraph serves a minimal /users API.
type fakeGraph struct {
	srv      *httptest.Server
	requests atomic.Int32
	count    int
	lastAuth atomic.Value
	delay    time.Duration
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	f := &fakeGraph{count: -1}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		q := r.URL.Query()
		var value []map[string]any
		if filter := q.Get("$filter"); filter != "" {
			for _, u := range users {
				if strings.Contains(filter, "'"+u["mail"].(string)+"'") {
					value = append(value, u)
				}
			}
		} else if search := q.Get("$search"); search != "" {
			if r.Header.Get("ConsistencyLevel") != "eventual" {
				http.Error(w, `{"error":"ConsistencyLevel required"}`, http.StatusBadRequest)
				return
			}
			needle := strings.Trim(strings.TrimPrefix(strings.Trim(search, `"`), "displayName:"), `"`)
			for _, id := range []string{"u-alice", "u-alicia"} {
				if strings.HasPrefix(strings.ToLower(users[id]["displayName"].(string)), strings.ToLower(needle)) {
					value = append(value, users[id])
				}
			}
		} else {
			value = append(value, users["u-alice"])
		}
		page := map[string]any{"value": value}
		if f.count >= 0 {
			page["@odata.count"] = f.count
		}
		_ = json.NewEncoder(w).Encode(page)
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		u, ok := users[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":{"code":"Request_ResourceNotFound"}}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(u)
	})
	mux.HandleFunc("GET /users/{id}/photo", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("id") != "u-alice" {
			http.Error(w, `{"error":{"code":"ImageNotFound"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"height":96,"width":96}`))
	})
	mux.HandleFunc("GET /users/{id}/photo/{value}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("id") != "u-alice" {
			http.Error(w, `{"error":{"code":"ImageNotFound"}}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGraph) record(r *http.Request) {
	f.requests.Add(1)
	f.lastAuth.Store(r.Header.Get("Authorization"))
}

func newBackend(t *testing.T, f *fakeGraph, cfg graph.Config, tokens providers.TokenProvider) *graph.Backend {
	t.Helper()
	cfg.BaseURL = f.srv.URL
	if cfg.Limit == 0 {
		cfg.Limit = 25
	}
	if tokens == nil {
		tokens = staticToken{token: "graph-token"}
	}
	b, err := graph.New(cfg, f.srv.Client(), tokens)
	require.NoError(t, err)
	return b
}

func TestGraphContract(t *testing.T) {
	f := newFakeGraph(t)
	b := newBackend(t, f, graph.Config{}, nil)

	(&contract.ContractSuite{
		Backend: b,
		Name:    providers.Graph,
		Limit:   25,
		Tests: []contract.ContractTest{
			{Name: "address filter", Term: "alice@example.com", ExpectedKind: domain.OutcomeFound},
			{Name: "display name search", Term: "ali", ExpectedKind: domain.OutcomeCandidates},
			{Name: "no match", Term: "zed", ExpectedKind: domain.OutcomeAbsent},
		},
	}).Run(t)

	(&contract.FetchTest{Backend: b, KnownID: "u-alicia", UnknownID: "u-nobody"}).Run(t)
	assert.Equal(t, "Bearer graph-token", f.lastAuth.Load())
}

func TestGraphNormalizationAndPhoto(t *testing.T) {
	f := newFakeGraph(t)
	out, err := newBackend(t, f, graph.Config{}, nil).Search(context.Background(), "alice@example.com")
	require.NoError(t, err)

	r := out.Record()
	assert.Equal(t, "u-alice", r.ID())
	assert.Equal(t, "Controller", r.String(domain.FieldJobTitle))
	assert.Equal(t, map[string]string{domain.PhoneBusiness: "+1 555 0200", domain.PhoneMobile: "+1 555 0300"}, r.Phones())
	assert.True(t, r.Bool(domain.FieldAccountEnabled))
	assert.Equal(t, "data:image/png;base64,iVBORw==", r.String(domain.FieldPhoto))
}

func TestGraphLazyPhotos(t *testing.T) {
	f := newFakeGraph(t)
	b := newBackend(t, f, graph.Config{LazyPhotos: true}, nil)

	out, err := b.Search(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, out.Record().Bool(domain.FieldHasPhoto))
	assert.NotContains(t, out.Record(), domain.FieldPhoto)

	noPhoto, err := b.FetchByID(context.Background(), "u-alicia")
	require.NoError(t, err)
	assert.False(t, noPhoto.HasPhoto())

	data, contentType, err := b.Photo(context.Background(), "u-alice")
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Len(t, data, 4)

	data, _, err = b.Photo(context.Background(), "u-alicia")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestGraphTooManyResults(t *testing.T) {
	f := newFakeGraph(t)
	f.count = 40
	(&contract.ErrorContractTest{
		Name:          "count above cap",
		Backend:       newBackend(t, f, graph.Config{}, nil),
		Term:          "ali",
		ExpectedError: providers.ErrorTooManyResults,
	}).Run(t)
}

func TestGraphTokenFailure(t *testing.T) {
	f := newFakeGraph(t)
	b := newBackend(t, f, graph.Config{}, staticToken{err: errors.New("invalid_client")})

	(&contract.ErrorContractTest{
		Backend:       b,
		Term:          "alice@example.com",
		ExpectedError: providers.ErrorTokenAcquisition,
		ExpectedRetry: true,
	}).Run(t)
	assert.Zero(t, f.requests.Load(), "no API call without a token")
}

func TestGraphTimeout(t *testing.T) {
	f := newFakeGraph(t)
	f.delay = time.Second
	b := newBackend(t, f, graph.Config{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := b.Search(ctx, "ali")
	assert.True(t, providers.IsTimeout(err))
}

func TestGraphErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"Authorization_RequestDenied"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	b, err := graph.New(graph.Config{BaseURL: srv.URL}, srv.Client(), staticToken{token: "t"})
	require.NoError(t, err)

	err = b.TestConnection(context.Background())
	require.Error(t, err)
	assert.Equal(t, providers.ErrorBackend, providers.GetCategory(err))
	assert.Contains(t, err.Error(), "403")
}

func TestGraphNewValidation(t *testing.T) {
	_, err := graph.New(graph.Config{}, nil, staticToken{})
	assert.Error(t, err)
	_, err = graph.New(graph.Config{BaseURL: "http://x"}, nil, nil)
	assert.Error(t, err)
}
