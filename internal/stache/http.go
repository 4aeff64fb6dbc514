package stache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/stachelabs/stache-go/internal/config"
)

// HTTPTransport talks to Stache through API Gateway. When the OAuth fields
// are all configured, requests carry a bearer token obtained via the OAuth2
// client-credentials flow; token acquisition and refresh are handled by the
// oauth2 token source.
type HTTPTransport struct {
	cfg    *config.Config
	client *http.Client
	logger *slog.Logger
	retry  retryPolicy

	lastRequestID string
}

// NewHTTPTransport builds the HTTP transport from configuration.
func NewHTTPTransport(cfg *config.Config, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		cfg:    cfg,
		client: newHTTPClient(cfg),
		logger: logger,
		retry:  newRetryPolicy(logger),
	}
}

// newHTTPClient builds the underlying pooled client: per-call timeout, a
// cloned default transport, and the OAuth2 layer when configured.
func newHTTPClient(cfg *config.Config) *http.Client {
	base := &http.Client{Timeout: cfg.Timeout}
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		base.Transport = t.Clone()
	}

	if !cfg.OAuthEnabled() {
		return base
	}

	creds := clientcredentials.Config{
		ClientID:     cfg.CognitoClientID,
		ClientSecret: cfg.CognitoClientSecret,
		TokenURL:     cfg.CognitoTokenURL,
	}
	if cfg.CognitoScope != "" {
		creds.Scopes = strings.Fields(cfg.CognitoScope)
	}

	// Token requests reuse the same pooled client.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	authed := creds.Client(ctx)
	authed.Timeout = cfg.Timeout
	return authed
}

// LastRequestID returns the request id from the last response body.
func (t *HTTPTransport) LastRequestID() string { return t.lastRequestID }

// Close releases the pooled connections. Safe to call more than once.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// retryable reports whether a failure warrants another attempt on this
// transport: connection/timeout failures always, API errors for 429/5xx.
func (t *HTTPTransport) retryable(err error) bool {
	return isConnectionError(err) || isRetryableAPIError(err)
}

func (t *HTTPTransport) Get(ctx context.Context, path string, query url.Values) (Payload, error) {
	return t.roundTrip(ctx, http.MethodGet, path, nil, query)
}

func (t *HTTPTransport) Post(ctx context.Context, path string, body Payload) (Payload, error) {
	return t.roundTrip(ctx, http.MethodPost, path, body, nil)
}

func (t *HTTPTransport) Put(ctx context.Context, path string, body Payload) (Payload, error) {
	return t.roundTrip(ctx, http.MethodPut, path, body, nil)
}

func (t *HTTPTransport) Delete(ctx context.Context, path string, query url.Values) (Payload, error) {
	return t.roundTrip(ctx, http.MethodDelete, path, nil, query)
}

func (t *HTTPTransport) roundTrip(ctx context.Context, method, path string, body Payload, query url.Values) (Payload, error) {
	var result Payload
	err := t.retry.do(ctx, method+" "+path, t.retryable, func() error {
		var attemptErr error
		result, attemptErr = t.once(ctx, method, path, body, query)
		return attemptErr
	})
	return result, err
}

// once performs a single request/response exchange.
func (t *HTTPTransport) once(ctx context.Context, method, path string, body Payload, query url.Values) (Payload, error) {
	target := t.cfg.APIURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, newValidationError("encoding request body: %v", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, newValidationError("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// Both connect errors and client timeouts surface here.
		return nil, newConnectionError(fmt.Sprintf("cannot connect to %s: %v", t.cfg.APIURL, err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newConnectionError(fmt.Sprintf("reading response from %s: %v", t.cfg.APIURL, err), err)
	}

	return t.handleResponse(resp.StatusCode, raw)
}

// handleResponse parses the body, records the request id, and maps the
// status code to a typed error for codes >= 400.
func (t *HTTPTransport) handleResponse(status int, raw []byte) (Payload, error) {
	var parsed Payload
	if len(raw) > 0 {
		// Non-JSON bodies are tolerated; the raw text still feeds the
		// error message below.
		_ = json.Unmarshal(raw, &parsed)
	}

	t.lastRequestID = requestID(parsed)

	if status >= 400 {
		fallback := strings.TrimSpace(string(raw))
		if fallback == "" {
			fallback = fmt.Sprintf("HTTP %d", status)
		}
		return nil, errorForStatus(status, errorMessage(parsed, fallback), t.lastRequestID)
	}

	if parsed == nil {
		parsed = Payload{}
	}
	return parsed, nil
}

var _ Transport = (*HTTPTransport)(nil)
