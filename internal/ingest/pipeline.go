// Package ingest fans a set of local files out to the Stache backend.
//
// Files are enumerated deterministically, converted to text through the
// loader registry, and submitted through the client facade. A run is either
// sequential (one shared client) or parallel over a bounded worker pool, in
// which case every worker constructs its own client: transports carry
// private mutable connection state and are never shared across workers. The
// loader registry is the only shared object; it is read-only during a run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/stachelabs/stache-go/internal/loader"
	"github.com/stachelabs/stache-go/internal/stache"
)

// Worker pool bounds.
const (
	MinWorkers = 1
	MaxWorkers = 32
)

var (
	// ErrNamespaceRequired is returned before any network call when a
	// multi-file run has no target namespace.
	ErrNamespaceRequired = errors.New("namespace required for multi-file ingest")

	// ErrAborted is returned when a run stopped early because a file failed
	// and skip-errors was not set. Tasks not yet started were prevented from
	// starting; in-flight tasks ran to completion.
	ErrAborted = errors.New("ingest aborted after failure")
)

// Status classifies the outcome of one file task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Skip reasons.
const (
	ReasonNoLoader = "no_loader"
	ReasonEmpty    = "empty"
)

// Result is the terminal state of one file task.
type Result struct {
	Path   string
	Status Status
	Reason string
	Chunks int
	DocID  string
}

// Summary aggregates a run. Deterministic given deterministic per-file
// outcomes, regardless of completion order.
type Summary struct {
	Succeeded   int
	Failed      int
	Skipped     int
	TotalChunks int
}

func (s *Summary) add(r Result) {
	switch r.Status {
	case StatusSuccess:
		s.Succeeded++
		s.TotalChunks += r.Chunks
	case StatusSkipped:
		s.Skipped++
	case StatusError:
		s.Failed++
	}
}

// Options shapes a run.
type Options struct {
	Namespace        string
	ChunkingStrategy string
	Metadata         map[string]any
	PrependMetadata  []string

	// BasePath, when set, makes each file's source_path metadata relative to
	// it; files outside BasePath fall back to their full path.
	BasePath string

	// Workers in [1, 32]; out-of-range values are clamped.
	Workers int

	// SkipErrors keeps going after per-file failures instead of aborting.
	SkipErrors bool
}

// ClientFactory builds a client for one unit of concurrent work.
type ClientFactory func(ctx context.Context) (*stache.Client, error)

// Pipeline runs ingestion over a shared registry and a per-worker client
// factory.
type Pipeline struct {
	registry  *loader.Registry
	newClient ClientFactory
	logger    *slog.Logger
}

// New builds a pipeline.
func New(registry *loader.Registry, newClient ClientFactory, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{registry: registry, newClient: newClient, logger: logger}
}

// CollectFiles enumerates the files a run would process: the file itself
// when root is a file, otherwise the entries under the directory matching
// pattern (descending into subdirectories when recursive). The result is
// sorted for deterministic processing order.
func CollectFiles(root, pattern string, recursive bool) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	if recursive {
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			ok, matchErr := filepath.Match(pattern, d.Name())
			if matchErr != nil {
				return matchErr
			}
			if ok {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		matches, globErr := filepath.Glob(filepath.Join(root, pattern))
		if globErr != nil {
			return nil, globErr
		}
		for _, m := range matches {
			if fi, statErr := os.Stat(m); statErr == nil && !fi.IsDir() {
				files = append(files, m)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// PlanEntry is one line of a dry run: the file and the loader that would
// handle it ("" when none matches).
type PlanEntry struct {
	Path   string
	Loader string
}

// Plan reports, without reading any file or touching the network, which
// loader each file would resolve to.
func (p *Pipeline) Plan(files []string) []PlanEntry {
	entries := make([]PlanEntry, 0, len(files))
	for _, f := range files {
		entry := PlanEntry{Path: f}
		if ldr := p.registry.Get(filepath.Base(f)); ldr != nil {
			entry.Loader = ldr.Name()
		}
		entries = append(entries, entry)
	}
	return entries
}

// Run processes files and reports each terminal result through onResult,
// which is always invoked on the calling goroutine. It returns ErrAborted
// when a failure stopped the run early, or a nil error otherwise; callers
// decide exit status from Summary.Failed.
func (p *Pipeline) Run(ctx context.Context, files []string, opts Options, onResult func(Result)) (Summary, error) {
	if len(files) > 1 && opts.Namespace == "" {
		return Summary{}, ErrNamespaceRequired
	}
	if onResult == nil {
		onResult = func(Result) {}
	}

	workers := opts.Workers
	if workers < MinWorkers {
		workers = MinWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	if workers == 1 || len(files) == 1 {
		return p.runSequential(ctx, files, opts, onResult)
	}
	return p.runParallel(ctx, files, opts, workers, onResult)
}

// runSequential processes files in sorted order on the calling goroutine
// with one shared client.
func (p *Pipeline) runSequential(ctx context.Context, files []string, opts Options, onResult func(Result)) (Summary, error) {
	var summary Summary

	client, err := p.newClient(ctx)
	if err != nil {
		return summary, err
	}
	defer client.Close()

	for _, file := range files {
		result := p.processFile(ctx, client, file, opts)
		summary.add(result)
		onResult(result)

		if result.Status == StatusError && !opts.SkipErrors {
			return summary, ErrAborted
		}
	}
	return summary, nil
}

// runParallel fans files across a bounded pool. Each task owns a fresh
// client. Submission and result collection run concurrently: on the first
// failure (without SkipErrors) the run context is cancelled, which stops the
// submitter before it hands out pending files and makes queued tasks exit
// without running. In-flight tasks finish normally.
func (p *Pipeline) runParallel(ctx context.Context, files []string, opts Options, workers int, onResult func(Result)) (Summary, error) {
	var summary Summary

	pool, err := ants.NewPool(workers)
	if err != nil {
		return summary, err
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Result, len(files))

	// Submitter goroutine: pool.Submit blocks while all workers are busy, so
	// collection must not wait behind it. Cancellation is checked before
	// every submit; files never handed to the pool produce no result.
	go func() {
		var wg sync.WaitGroup
		for _, file := range files {
			if runCtx.Err() != nil {
				break
			}

			file := file
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()

				// Queued before cancellation but not yet started: produce no
				// result, matching the best-effort cancellation contract.
				if runCtx.Err() != nil {
					return
				}

				client, clientErr := p.newClient(runCtx)
				if clientErr != nil {
					results <- Result{Path: file, Status: StatusError, Reason: clientErr.Error()}
					return
				}
				defer client.Close()

				results <- p.processFile(runCtx, client, file, opts)
			})
			if submitErr != nil {
				wg.Done()
				results <- Result{Path: file, Status: StatusError, Reason: submitErr.Error()}
			}
		}
		wg.Wait()
		close(results)
	}()

	aborted := false
	for result := range results {
		summary.add(result)
		onResult(result)

		if result.Status == StatusError && !opts.SkipErrors && !aborted {
			aborted = true
			cancel()
		}
	}

	if aborted {
		return summary, ErrAborted
	}
	return summary, nil
}

// processFile runs the per-file state machine:
// pending -> skipped(no_loader) | skipped(empty) | success | error.
// Network retries happen inside the transport; a file that still fails is a
// single task-level error, never retried at the file level.
func (p *Pipeline) processFile(ctx context.Context, client *stache.Client, path string, opts Options) Result {
	name := filepath.Base(path)

	ldr := p.registry.Get(name)
	if ldr == nil {
		return Result{Path: path, Status: StatusSkipped, Reason: ReasonNoLoader}
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{Path: path, Status: StatusError, Reason: err.Error()}
	}
	doc, err := ldr.Load(f, name)
	f.Close()
	if err != nil {
		return Result{Path: path, Status: StatusError, Reason: err.Error()}
	}

	if strings.TrimSpace(doc.Text) == "" {
		return Result{Path: path, Status: StatusSkipped, Reason: ReasonEmpty}
	}

	metadata := make(map[string]any, len(doc.Metadata)+len(opts.Metadata)+2)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	metadata["source_path"] = sourcePath(path, opts.BasePath)
	metadata["filename"] = name
	for k, v := range opts.Metadata {
		// User-supplied keys win on conflict.
		metadata[k] = v
	}

	payload, err := client.IngestText(ctx, doc.Text, stache.IngestOptions{
		Namespace:        opts.Namespace,
		Metadata:         metadata,
		ChunkingStrategy: opts.ChunkingStrategy,
		PrependMetadata:  opts.PrependMetadata,
	})
	if err != nil {
		return Result{Path: path, Status: StatusError, Reason: err.Error()}
	}

	return Result{
		Path:   path,
		Status: StatusSuccess,
		Chunks: payloadInt(payload, "chunks_created"),
		DocID:  payloadString(payload, "doc_id", "document_id"),
	}
}

// sourcePath computes the portable identifier stored with each document:
// relative to base when the file sits under it, the full path when it does
// not, and the bare filename when no base was supplied.
func sourcePath(path, base string) string {
	if base == "" {
		return filepath.Base(path)
	}

	absPath, err1 := filepath.Abs(path)
	absBase, err2 := filepath.Abs(base)
	if err1 != nil || err2 != nil {
		return path
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func payloadInt(payload stache.Payload, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func payloadString(payload stache.Payload, keys ...string) string {
	for _, key := range keys {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Describe renders a result for per-file reporting.
func Describe(r Result) string {
	name := filepath.Base(r.Path)
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("%s -> %d chunks", name, r.Chunks)
	case StatusSkipped:
		return fmt.Sprintf("%s (%s)", name, r.Reason)
	default:
		return fmt.Sprintf("%s: %s", name, r.Reason)
	}
}
