// Package restclient is the bearer-authenticated JSON client shared by the
// REST backends.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"peoplefinder/internal/search/providers"
)

const maxErrorBody = 512

// Client issues requests against one backend's API.
type Client struct {
	backend string
	baseURL string
	http    *http.Client
	tokens  providers.TokenProvider
}

// New builds a client. tokens may be nil for unauthenticated APIs.
func New(backend, baseURL string, httpClient *http.Client, tokens providers.TokenProvider) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		backend: backend,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

// Request describes one call.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     any
	Accept   string
	Allow404 bool
}

// Response is a raw successful answer.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// NotFound reports whether the call was answered with 404 and Allow404 was set.
func (r Response) NotFound() bool {
	return r.Status == http.StatusNotFound
}

// Do executes req. Failures come back as *providers.ProviderError.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, providers.NewProviderError(providers.ErrorBackend, c.backend, "encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return Response{}, providers.NewProviderError(providers.ErrorBackend, c.backend, "build request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	accept := req.Accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)

	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, providers.NewProviderError(providers.ErrorTimeout, c.backend, "token acquisition interrupted", err)
			}
			return Response{}, providers.NewProviderError(providers.ErrorTokenAcquisition, c.backend, "could not obtain access token", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, providers.NewProviderError(providers.ErrorTimeout, c.backend, "request interrupted", err)
		}
		return Response{}, providers.NewProviderError(providers.ErrorBackend, c.backend, "request failed", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, providers.NewProviderError(providers.ErrorTimeout, c.backend, "response interrupted", err)
		}
		return Response{}, providers.NewProviderError(providers.ErrorBackend, c.backend, "read response", err)
	}

	if res.StatusCode == http.StatusNotFound && req.Allow404 {
		return Response{Status: res.StatusCode}, nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return Response{}, providers.NewProviderError(providers.ErrorBackend, c.backend,
			fmt.Sprintf("%s %s returned %d", req.Method, req.Path, res.StatusCode), errors.New(strings.TrimSpace(snippet)))
	}

	return Response{
		Status:      res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Body:        raw,
	}, nil
}

// DoJSON executes req and decodes a successful body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) (Response, error) {
	res, err := c.Do(ctx, req)
	if err != nil || res.NotFound() || out == nil {
		return res, err
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return res, providers.NewProviderError(providers.ErrorBadData, c.backend, "decode response", err)
	}
	return res, nil
}
