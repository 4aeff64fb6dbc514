package loader

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry resolves filenames to loaders.
//
// Construct once and share read-only thereafter: the ingestion pipeline
// passes one registry to every worker. Construction and manual registration
// are mutex-guarded; lookups take a read lock only.
//
// Resolution order for a filename:
//  1. If an extension override names a registered loader (case-insensitive
//     type-name match), that loader wins regardless of priority.
//  2. Otherwise the highest-priority loader claiming the extension wins;
//     ties go to the earlier registration.
//  3. No claiming loader means no loader (not an error).
type Registry struct {
	mu        sync.RWMutex
	loaders   []Loader
	overrides map[string]string
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithOverrides installs the extension -> loader-name override table,
// typically sourced from config.LoaderOverrides(). Keys are lowercased
// extensions without dots.
func WithOverrides(overrides map[string]string) Option {
	return func(r *Registry) {
		for ext, name := range overrides {
			r.overrides[strings.ToLower(ext)] = name
		}
	}
}

// WithProviders seeds additional loaders from external providers. A failing
// provider is logged and skipped, never fatal.
func WithProviders(providers ...Provider) Option {
	return func(r *Registry) {
		for _, provide := range providers {
			ldr, err := provide()
			if err != nil {
				r.logger.Warn("skipping loader provider", "error", err)
				continue
			}
			r.loaders = append(r.loaders, ldr)
			r.logger.Info("registered plugin loader", "loader", ldr.Name(), "priority", ldr.Priority())
		}
	}
}

// NewRegistry builds a registry with the built-in loaders registered, then
// applies options (overrides, external providers).
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		overrides: make(map[string]string),
		logger:    logger,
	}

	r.loaders = append(r.loaders,
		&TextLoader{},
		&MarkdownLoader{},
		&PDFLoader{},
		&DocxLoader{},
		&PptxLoader{},
		&EpubLoader{},
	)

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a loader at runtime. Intended for tests and embedders.
func (r *Registry) Register(ldr Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders = append(r.loaders, ldr)
}

// Get returns the loader for filename, or nil when no registered loader
// claims its extension.
func (r *Registry) Get(filename string) Loader {
	ext := normalizeExt(filename)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if override, ok := r.overrides[ext]; ok {
		for _, ldr := range r.loaders {
			if strings.EqualFold(ldr.Name(), override) {
				return ldr
			}
		}
		// Declared but unresolvable override falls through to normal
		// resolution.
		r.logger.Warn("override loader not found", "loader", override, "extension", ext)
	}

	var best Loader
	for _, ldr := range r.loaders {
		if !claims(ldr, ext) {
			continue
		}
		if best == nil || ldr.Priority() > best.Priority() {
			best = ldr
		}
	}
	return best
}

// SupportedExtensions returns the sorted union of every registered loader's
// extensions, for user-facing messages.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, ldr := range r.loaders {
		for _, ext := range ldr.Extensions() {
			seen[strings.ToLower(ext)] = struct{}{}
		}
	}

	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// normalizeExt lowercases the text after the final dot; no dot means "".
func normalizeExt(filename string) string {
	ext := filepath.Ext(filename)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func claims(ldr Loader, ext string) bool {
	if ext == "" {
		return false
	}
	for _, candidate := range ldr.Extensions() {
		if strings.EqualFold(candidate, ext) {
			return true
		}
	}
	return false
}
