package stache

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/stachelabs/stache-go/internal/config"
)

// Caps enforced client-side to fail fast before a wasted round trip. The
// backend applies its own limits; these mirror the defaults.
const (
	// MaxTopK caps search result counts; larger requests are clamped.
	MaxTopK = 50

	// MaxListLimit caps document listing page sizes; larger requests are
	// clamped.
	MaxListLimit = 100

	// MaxIngestBytes is the largest text accepted for ingestion. Oversized
	// text is rejected locally with a ValidationError.
	MaxIngestBytes = 10 * 1024 * 1024
)

// Client is the high-level facade over a Transport. Each method shapes a
// request payload from typed inputs, delegates to the transport, and returns
// the parsed JSON payload unmodified.
//
// The Client owns its transport and must be closed exactly once on every
// exit path; Close is idempotent.
type Client struct {
	cfg       *config.Config
	transport Transport
	closed    bool
}

// NewClient builds a client with a transport selected from configuration.
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	transport, err := NewTransport(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, transport: transport}, nil
}

// NewClientWithTransport wraps an existing transport. Used by tests and by
// callers that manage transport construction themselves.
func NewClientWithTransport(cfg *config.Config, transport Transport) *Client {
	return &Client{cfg: cfg, transport: transport}
}

// Config returns the configuration snapshot the client was built from.
func (c *Client) Config() *config.Config { return c.cfg }

// LastRequestID returns the request id from the most recent call.
func (c *Client) LastRequestID() string { return c.transport.LastRequestID() }

// Close releases the owned transport. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.transport.Close()
}

// SearchOptions tunes a Search call. The zero TopK means 20.
type SearchOptions struct {
	Namespace  string
	TopK       int
	Rerank     bool
	Synthesize bool
	Filter     map[string]any
	Model      string
}

// DefaultSearchOptions returns the server-matching defaults: 20 results,
// reranked, with answer synthesis.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{TopK: 20, Rerank: true, Synthesize: true}
}

// Search runs a semantic query. TopK above MaxTopK is silently clamped.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (Payload, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 20
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	body := Payload{
		"query":      query,
		"top_k":      topK,
		"rerank":     opts.Rerank,
		"synthesize": opts.Synthesize,
	}
	if opts.Namespace != "" {
		body["namespace"] = opts.Namespace
	}
	if len(opts.Filter) > 0 {
		body["filter"] = opts.Filter
	}
	if opts.Model != "" {
		body["model"] = opts.Model
	}

	return c.transport.Post(ctx, "/api/query", body)
}

// IngestOptions tunes an IngestText call.
type IngestOptions struct {
	Namespace        string
	Metadata         map[string]any
	ChunkingStrategy string
	PrependMetadata  []string
}

// IngestText submits text for chunking and indexing. Text above
// MaxIngestBytes is rejected locally, before any network call.
func (c *Client) IngestText(ctx context.Context, text string, opts IngestOptions) (Payload, error) {
	if len(text) > MaxIngestBytes {
		return nil, newValidationError("text exceeds maximum size of 10MB")
	}

	strategy := opts.ChunkingStrategy
	if strategy == "" {
		strategy = "recursive"
	}

	body := Payload{
		"text":              text,
		"chunking_strategy": strategy,
	}
	if opts.Namespace != "" {
		body["namespace"] = opts.Namespace
	}
	if len(opts.Metadata) > 0 {
		body["metadata"] = opts.Metadata
	}
	if len(opts.PrependMetadata) > 0 {
		body["prepend_metadata"] = opts.PrependMetadata
	}

	return c.transport.Post(ctx, "/api/capture", body)
}

// ListNamespaces returns all namespaces, including children.
func (c *Client) ListNamespaces(ctx context.Context) (Payload, error) {
	return c.transport.Get(ctx, "/api/namespaces", url.Values{"include_children": {"true"}})
}

// CreateNamespace creates a namespace. parentID and metadata are optional.
func (c *Client) CreateNamespace(ctx context.Context, id, name, description, parentID string, metadata map[string]any) (Payload, error) {
	body := Payload{"id": id, "name": name, "description": description}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	return c.transport.Post(ctx, "/api/namespaces", body)
}

// GetNamespace fetches one namespace by id.
func (c *Client) GetNamespace(ctx context.Context, id string) (Payload, error) {
	return c.transport.Get(ctx, "/api/namespaces/"+id, nil)
}

// NamespaceUpdate holds the partial fields for UpdateNamespace. Nil fields
// are omitted from the request.
type NamespaceUpdate struct {
	Name        *string
	Description *string
	Metadata    map[string]any
}

// UpdateNamespace applies a partial update.
func (c *Client) UpdateNamespace(ctx context.Context, id string, update NamespaceUpdate) (Payload, error) {
	body := Payload{}
	if update.Name != nil {
		body["name"] = *update.Name
	}
	if update.Description != nil {
		body["description"] = *update.Description
	}
	if update.Metadata != nil {
		body["metadata"] = update.Metadata
	}
	return c.transport.Put(ctx, "/api/namespaces/"+id, body)
}

// DeleteNamespace deletes a namespace; cascade also removes its documents.
func (c *Client) DeleteNamespace(ctx context.Context, id string, cascade bool) (Payload, error) {
	return c.transport.Delete(ctx, "/api/namespaces/"+id, url.Values{"cascade": {strconv.FormatBool(cascade)}})
}

// ListDocuments pages through documents. Limit above MaxListLimit is
// silently clamped; nextKey continues a previous page.
func (c *Client) ListDocuments(ctx context.Context, namespace string, limit int, nextKey string) (Payload, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if namespace != "" {
		query.Set("namespace", namespace)
	}
	if nextKey != "" {
		query.Set("next_key", nextKey)
	}
	return c.transport.Get(ctx, "/api/documents", query)
}

// GetDocument fetches a document by id within a namespace.
func (c *Client) GetDocument(ctx context.Context, docID, namespace string) (Payload, error) {
	if namespace == "" {
		namespace = "default"
	}
	return c.transport.Get(ctx, "/api/documents/id/"+docID, url.Values{"namespace": {namespace}})
}

// DeleteDocument removes a document by id within a namespace.
func (c *Client) DeleteDocument(ctx context.Context, docID, namespace string) (Payload, error) {
	if namespace == "" {
		namespace = "default"
	}
	return c.transport.Delete(ctx, "/api/documents/id/"+docID, url.Values{"namespace": {namespace}})
}

// UpdateDocument applies metadata updates (namespace migration, rename,
// custom metadata replacement) to a document.
func (c *Client) UpdateDocument(ctx context.Context, docID, namespace string, updates map[string]any) (Payload, error) {
	if namespace == "" {
		namespace = "default"
	}
	if len(updates) == 0 {
		return nil, newValidationError("at least one update field is required")
	}

	body := Payload{"namespace": namespace}
	for key, value := range updates {
		body[key] = value
	}
	return c.transport.Put(ctx, "/api/documents/id/"+docID, body)
}

// Health checks backend connectivity. With includeAuth and OAuth configured,
// it additionally probes an authenticated endpoint and reports the outcome
// in an auth_status field.
func (c *Client) Health(ctx context.Context, includeAuth bool) (Payload, error) {
	result, err := c.transport.Get(ctx, "/health", nil)
	if err != nil {
		return nil, err
	}

	if includeAuth && c.cfg.OAuthEnabled() {
		if _, probeErr := c.transport.Get(ctx, "/api/namespaces", url.Values{"limit": {"1"}}); probeErr != nil {
			result["auth_status"] = fmt.Sprintf("failed: %v", probeErr)
		} else {
			result["auth_status"] = "valid"
		}
	}

	return result, nil
}

// ListModels returns the models available for synthesis.
func (c *Client) ListModels(ctx context.Context) (Payload, error) {
	return c.transport.Get(ctx, "/api/models", nil)
}

// Upload sends a file to the backend for server-side processing. For local
// files with a matching loader, IngestText is usually the better path.
func (c *Client) Upload(ctx context.Context, filePath, namespace string, metadata map[string]any) (Payload, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, newValidationError("reading %s: %v", filePath, err)
	}
	if namespace == "" {
		namespace = "default"
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	return c.transport.Post(ctx, "/api/upload", Payload{
		"filename":     filepath.Base(filePath),
		"content":      base64.StdEncoding.EncodeToString(raw),
		"content_type": "application/octet-stream",
		"namespace":    namespace,
		"metadata":     metadata,
	})
}
