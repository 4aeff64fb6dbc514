// Package stache is the client library for the Stache RAG backend.
//
// The backend is reached through one of two interchangeable transports: HTTP
// via API Gateway (with optional OAuth2 client credentials) or direct Lambda
// invocation. Both implement Transport; the Client facade on top shapes
// domain operations into verb+path+payload calls and is transport-agnostic.
package stache

import (
	"context"
	"net/url"
)

// Payload is a parsed JSON response body. The client passes payloads through
// unmodified; interpreting field names is left to callers, which keeps the
// library tolerant of backend schema variants.
type Payload = map[string]any

// Transport exchanges requests with the Stache backend.
//
// Every verb call sends the request over the transport's own wire mechanism,
// maps the response status into a parsed payload or a typed error
// (ConnectionError, AuthError, NotFoundError, APIError), records the
// request_id found in the JSON body if present, and retries transient
// failures per the shared retry policy before surfacing the last error.
//
// A Transport owns one underlying network client and a single piece of
// mutable state (the last request id); it must not be shared across
// concurrent workers.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (Payload, error)
	Post(ctx context.Context, path string, body Payload) (Payload, error)
	Put(ctx context.Context, path string, body Payload) (Payload, error)
	Delete(ctx context.Context, path string, query url.Values) (Payload, error)

	// LastRequestID returns the request id embedded in the most recently
	// received response body, or "" if none was returned.
	LastRequestID() string

	// Close releases owned resources. Safe to call more than once; must be
	// invoked on every exit path.
	Close() error
}

// requestID extracts the request_id field from a parsed body, if present.
func requestID(body Payload) string {
	if body == nil {
		return ""
	}
	if id, ok := body["request_id"].(string); ok {
		return id
	}
	return ""
}

// errorMessage derives a human-readable message from an error response body,
// preferring the backend's error field, then detail, then the fallback.
func errorMessage(body Payload, fallback string) string {
	if body != nil {
		if msg, ok := body["error"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := body["detail"].(string); ok && msg != "" {
			return msg
		}
	}
	return fallback
}
