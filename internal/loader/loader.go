// Package loader converts raw files into plain text ready for ingestion.
//
// Loaders are selected by file extension through a Registry. Built-in
// loaders carry priority 0; external providers can claim a higher priority
// to supersede a built-in for the same extension, and per-extension
// environment overrides can force a specific loader by name.
package loader

import "io"

// Document is the result of loading a file: extracted text plus whatever
// metadata the format exposes. A loader may legitimately return empty text
// (for example, failed OCR); callers must check for blank text before
// treating the result as usable content.
type Document struct {
	Text     string
	Metadata map[string]any
}

// Loader converts one file format into a Document.
//
// Load is pure with respect to its input and safe for concurrent use.
type Loader interface {
	// Name identifies the loader for override resolution. Matching is
	// case-insensitive.
	Name() string

	// Extensions lists the file extensions this loader handles, without
	// leading dots (e.g. "pdf").
	Extensions() []string

	// Priority orders loaders that claim the same extension; higher wins.
	// Built-ins use 0, plugins conventionally 10.
	Priority() int

	// Load extracts text and metadata from r. The filename is used for
	// metadata and logging only.
	Load(r io.Reader, filename string) (*Document, error)
}

// Provider constructs a loader for registry seeding. A provider that fails
// is skipped with a warning; it never aborts registry construction.
type Provider func() (Loader, error)
