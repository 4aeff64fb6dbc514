package stache

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stachelabs/stache-go/internal/config"
)

// fakeTransport records calls and replays canned payloads keyed by method
// and path.
type fakeTransport struct {
	calls     []fakeCall
	responses map[string]Payload
	errs      map[string]error
	closed    int
}

type fakeCall struct {
	method string
	path   string
	body   Payload
	query  url.Values
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[string]Payload),
		errs:      make(map[string]error),
	}
}

func (f *fakeTransport) respond(method, path string, payload Payload) {
	f.responses[method+" "+path] = payload
}

func (f *fakeTransport) fail(method, path string, err error) {
	f.errs[method+" "+path] = err
}

func (f *fakeTransport) dispatch(method, path string, body Payload, query url.Values) (Payload, error) {
	f.calls = append(f.calls, fakeCall{method: method, path: path, body: body, query: query})
	key := method + " " + path
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	if payload, ok := f.responses[key]; ok {
		return payload, nil
	}
	return Payload{}, nil
}

func (f *fakeTransport) Get(ctx context.Context, path string, query url.Values) (Payload, error) {
	return f.dispatch("GET", path, nil, query)
}

func (f *fakeTransport) Post(ctx context.Context, path string, body Payload) (Payload, error) {
	return f.dispatch("POST", path, body, nil)
}

func (f *fakeTransport) Put(ctx context.Context, path string, body Payload) (Payload, error) {
	return f.dispatch("PUT", path, body, nil)
}

func (f *fakeTransport) Delete(ctx context.Context, path string, query url.Values) (Payload, error) {
	return f.dispatch("DELETE", path, nil, query)
}

func (f *fakeTransport) LastRequestID() string { return "req-fake" }

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func (f *fakeTransport) lastCall(t *testing.T) fakeCall {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatal("no transport calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

func clientTestConfig() *config.Config {
	return &config.Config{
		Transport:     config.TransportHTTP,
		APIURL:        "http://localhost:8000",
		Timeout:       60 * time.Second,
		AWSRegion:     "us-east-1",
		LambdaTimeout: 60 * time.Second,
	}
}

func newTestClient() (*Client, *fakeTransport) {
	transport := newFakeTransport()
	return NewClientWithTransport(clientTestConfig(), transport), transport
}

func TestSearchClampsTopK(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	if _, err := client.Search(context.Background(), "question", SearchOptions{TopK: 500, Rerank: true}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	call := transport.lastCall(t)
	if call.method != "POST" || call.path != "/api/query" {
		t.Errorf("call = %s %s, want POST /api/query", call.method, call.path)
	}
	if call.body["top_k"] != MaxTopK {
		t.Errorf("top_k = %v, want clamped to %d", call.body["top_k"], MaxTopK)
	}
}

func TestSearchDefaultsTopK(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	client.Search(context.Background(), "q", SearchOptions{})
	if got := transport.lastCall(t).body["top_k"]; got != 20 {
		t.Errorf("top_k = %v, want default 20", got)
	}
}

func TestSearchOmitsEmptyOptions(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	client.Search(context.Background(), "q", DefaultSearchOptions())

	body := transport.lastCall(t).body
	for _, key := range []string{"namespace", "filter", "model"} {
		if _, present := body[key]; present {
			t.Errorf("body should omit unset %s", key)
		}
	}
	if body["rerank"] != true || body["synthesize"] != true {
		t.Errorf("defaults = rerank:%v synthesize:%v, want both true", body["rerank"], body["synthesize"])
	}
}

func TestIngestTextRejectsOversizedInput(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	huge := strings.Repeat("a", MaxIngestBytes+1)
	_, err := client.IngestText(context.Background(), huge, IngestOptions{})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
	if len(transport.calls) != 0 {
		t.Error("oversized text must be rejected before any network call")
	}
}

func TestIngestTextAtLimitPasses(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	exact := strings.Repeat("a", MaxIngestBytes)
	if _, err := client.IngestText(context.Background(), exact, IngestOptions{}); err != nil {
		t.Fatalf("IngestText() error = %v, want text at the limit accepted", err)
	}
	if len(transport.calls) != 1 {
		t.Error("text at the limit should reach the transport")
	}
}

func TestIngestTextDefaultsStrategy(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	client.IngestText(context.Background(), "note", IngestOptions{Namespace: "notes"})

	call := transport.lastCall(t)
	if call.path != "/api/capture" {
		t.Errorf("path = %s, want /api/capture", call.path)
	}
	if call.body["chunking_strategy"] != "recursive" {
		t.Errorf("chunking_strategy = %v, want recursive default", call.body["chunking_strategy"])
	}
	if call.body["namespace"] != "notes" {
		t.Errorf("namespace = %v, want notes", call.body["namespace"])
	}
}

func TestListDocumentsClampsLimit(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	client.ListDocuments(context.Background(), "", 1000, "")
	if got := transport.lastCall(t).query.Get("limit"); got != "100" {
		t.Errorf("limit = %s, want clamped to 100", got)
	}

	client.ListDocuments(context.Background(), "docs", 0, "page-2")
	call := transport.lastCall(t)
	if call.query.Get("limit") != "50" {
		t.Errorf("limit = %s, want default 50", call.query.Get("limit"))
	}
	if call.query.Get("namespace") != "docs" || call.query.Get("next_key") != "page-2" {
		t.Errorf("query = %v, want namespace and next_key", call.query)
	}
}

func TestDocumentOperationsDefaultNamespace(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	client.GetDocument(context.Background(), "doc-1", "")
	if got := transport.lastCall(t).query.Get("namespace"); got != "default" {
		t.Errorf("namespace = %s, want default", got)
	}

	client.DeleteDocument(context.Background(), "doc-1", "")
	call := transport.lastCall(t)
	if call.method != "DELETE" || call.path != "/api/documents/id/doc-1" {
		t.Errorf("call = %s %s, want DELETE /api/documents/id/doc-1", call.method, call.path)
	}
}

func TestUpdateDocumentRequiresFields(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	_, err := client.UpdateDocument(context.Background(), "doc-1", "docs", nil)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
	if len(transport.calls) != 0 {
		t.Error("empty update must not reach the transport")
	}

	client.UpdateDocument(context.Background(), "doc-1", "docs", map[string]any{"filename": "renamed.md"})
	call := transport.lastCall(t)
	if call.method != "PUT" || call.path != "/api/documents/id/doc-1" {
		t.Errorf("call = %s %s, want PUT /api/documents/id/doc-1", call.method, call.path)
	}
	if call.body["namespace"] != "docs" || call.body["filename"] != "renamed.md" {
		t.Errorf("body = %v, want namespace and update fields", call.body)
	}
}

func TestDeleteNamespaceCascade(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	client.DeleteNamespace(context.Background(), "old", true)
	call := transport.lastCall(t)
	if call.path != "/api/namespaces/old" || call.query.Get("cascade") != "true" {
		t.Errorf("call = %s?%v, want cascade=true", call.path, call.query)
	}
}

func TestHealthWithoutAuthProbe(t *testing.T) {
	client, transport := newTestClient()
	defer client.Close()

	transport.respond("GET", "/health", Payload{"status": "healthy"})

	result, err := client.Health(context.Background(), true)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	// OAuth not configured: no probe, no auth_status.
	if _, present := result["auth_status"]; present {
		t.Error("auth_status should be absent without OAuth configuration")
	}
	if len(transport.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(transport.calls))
	}
}

func TestHealthAuthProbe(t *testing.T) {
	cfg := clientTestConfig()
	cfg.CognitoClientID = "client"
	cfg.CognitoClientSecret = "secret"
	cfg.CognitoTokenURL = "https://auth.example.com/token"

	transport := newFakeTransport()
	transport.respond("GET", "/health", Payload{"status": "healthy"})
	client := NewClientWithTransport(cfg, transport)
	defer client.Close()

	result, err := client.Health(context.Background(), true)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if result["auth_status"] != "valid" {
		t.Errorf("auth_status = %v, want valid", result["auth_status"])
	}

	probe := transport.lastCall(t)
	if probe.path != "/api/namespaces" || probe.query.Get("limit") != "1" {
		t.Errorf("probe = %s?%v, want GET /api/namespaces?limit=1", probe.path, probe.query)
	}
}

func TestHealthAuthProbeFailure(t *testing.T) {
	cfg := clientTestConfig()
	cfg.CognitoClientID = "client"
	cfg.CognitoClientSecret = "secret"
	cfg.CognitoTokenURL = "https://auth.example.com/token"

	transport := newFakeTransport()
	transport.respond("GET", "/health", Payload{"status": "healthy"})
	transport.fail("GET", "/api/namespaces", newAuthError("token rejected", ""))
	client := NewClientWithTransport(cfg, transport)
	defer client.Close()

	result, err := client.Health(context.Background(), true)
	if err != nil {
		t.Fatalf("Health() error = %v, probe failure must not fail the health call", err)
	}
	status, _ := result["auth_status"].(string)
	if !strings.HasPrefix(status, "failed:") {
		t.Errorf("auth_status = %q, want failed: prefix", status)
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	client, transport := newTestClient()

	if err := client.Close(); err != nil {
		t.Errorf("first Close() = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if transport.closed != 1 {
		t.Errorf("transport closed %d times, want exactly once", transport.closed)
	}
}
