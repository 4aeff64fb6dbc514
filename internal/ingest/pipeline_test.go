package ingest

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stachelabs/stache-go/internal/config"
	"github.com/stachelabs/stache-go/internal/loader"
	"github.com/stachelabs/stache-go/internal/log"
	"github.com/stachelabs/stache-go/internal/stache"
)

// captureTransport is a stache.Transport that records ingest payloads and
// fails any text containing the failure marker. A non-zero latency delays
// every successful call, simulating network time; failures stay instant.
type captureTransport struct {
	mu       sync.Mutex
	captured []stache.Payload
	latency  time.Duration
}

const failMarker = "TRIGGER-FAILURE"

func (c *captureTransport) Post(ctx context.Context, path string, body stache.Payload) (stache.Payload, error) {
	if text, _ := body["text"].(string); strings.Contains(text, failMarker) {
		return nil, assert.AnError
	}
	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	c.captured = append(c.captured, body)
	c.mu.Unlock()
	return stache.Payload{"chunks_created": float64(3), "doc_id": "doc-xyz"}, nil
}

func (c *captureTransport) Get(ctx context.Context, path string, query url.Values) (stache.Payload, error) {
	return stache.Payload{}, nil
}

func (c *captureTransport) Put(ctx context.Context, path string, body stache.Payload) (stache.Payload, error) {
	return stache.Payload{}, nil
}

func (c *captureTransport) Delete(ctx context.Context, path string, query url.Values) (stache.Payload, error) {
	return stache.Payload{}, nil
}

func (c *captureTransport) LastRequestID() string { return "" }
func (c *captureTransport) Close() error          { return nil }

func (c *captureTransport) payloads() []stache.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stache.Payload(nil), c.captured...)
}

func pipelineTestConfig() *config.Config {
	return &config.Config{
		Transport: config.TransportHTTP,
		APIURL:    "http://localhost:8000",
	}
}

// newTestPipeline wires a pipeline whose clients all share one capture
// transport.
func newTestPipeline(t *testing.T) (*Pipeline, *captureTransport) {
	t.Helper()
	transport := &captureTransport{}
	factory := func(ctx context.Context) (*stache.Client, error) {
		return stache.NewClientWithTransport(pipelineTestConfig(), transport), nil
	}
	return New(loader.NewRegistry(log.NewNop()), factory, log.NewNop()), transport
}

// writeFiles populates a temp dir and returns the sorted file list.
func writeFiles(t *testing.T, contents map[string]string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range contents {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	files, err := CollectFiles(dir, "*", true)
	require.NoError(t, err)
	return dir, files
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.txt"), []byte("c"), 0o644))

	t.Run("single file", func(t *testing.T) {
		files, err := CollectFiles(filepath.Join(dir, "b.txt"), "*", false)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "b.txt")}, files)
	})

	t.Run("directory non-recursive", func(t *testing.T) {
		files, err := CollectFiles(dir, "*", false)
		require.NoError(t, err)
		assert.Len(t, files, 2, "subdirectory files excluded")
	})

	t.Run("directory recursive", func(t *testing.T) {
		files, err := CollectFiles(dir, "*", true)
		require.NoError(t, err)
		assert.Len(t, files, 3)
		assert.IsIncreasing(t, files, "files come back sorted")
	})

	t.Run("pattern filter", func(t *testing.T) {
		files, err := CollectFiles(dir, "*.txt", true)
		require.NoError(t, err)
		assert.Len(t, files, 2)
		for _, f := range files {
			assert.True(t, strings.HasSuffix(f, ".txt"))
		}
	})
}

func TestRunRequiresNamespaceForMultiFile(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	_, files := writeFiles(t, map[string]string{"a.txt": "a", "b.txt": "b"})

	_, err := pipeline.Run(context.Background(), files, Options{}, nil)
	require.ErrorIs(t, err, ErrNamespaceRequired)
	assert.Contains(t, err.Error(), "namespace required")
}

func TestRunSingleFileWithoutNamespace(t *testing.T) {
	pipeline, transport := newTestPipeline(t)
	_, files := writeFiles(t, map[string]string{"a.txt": "hello"})

	summary, err := pipeline.Run(context.Background(), files, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 3, summary.TotalChunks)
	require.Len(t, transport.payloads(), 1)
}

func TestRunSequential(t *testing.T) {
	pipeline, transport := newTestPipeline(t)
	_, files := writeFiles(t, map[string]string{
		"a.txt":     "alpha content",
		"b.md":      "# Title\nbeta content",
		"empty.txt": "   \n",
		"data.bin":  "binary",
	})

	var results []Result
	summary, err := pipeline.Run(context.Background(), files, Options{
		Namespace: "docs",
		Workers:   1,
	}, func(r Result) { results = append(results, r) })

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 6, summary.TotalChunks)
	assert.Len(t, results, 4, "every file reports a terminal result")

	reasons := map[string]string{}
	for _, r := range results {
		if r.Status == StatusSkipped {
			reasons[filepath.Base(r.Path)] = r.Reason
		}
	}
	assert.Equal(t, ReasonNoLoader, reasons["data.bin"])
	assert.Equal(t, ReasonEmpty, reasons["empty.txt"])

	for _, payload := range transport.payloads() {
		assert.Equal(t, "docs", payload["namespace"])
	}
}

func TestRunMergesMetadata(t *testing.T) {
	pipeline, transport := newTestPipeline(t)
	dir, files := writeFiles(t, map[string]string{"sub/doc.md": "# Heading\nbody"})

	_, err := pipeline.Run(context.Background(), files, Options{
		Namespace: "docs",
		BasePath:  dir,
		Metadata:  map[string]any{"author": "jane", "type": "override-wins"},
	}, nil)
	require.NoError(t, err)

	payloads := transport.payloads()
	require.Len(t, payloads, 1)
	metadata, ok := payloads[0]["metadata"].(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "sub/doc.md", metadata["source_path"], "relative to base path")
	assert.Equal(t, "doc.md", metadata["filename"])
	assert.Equal(t, "Heading", metadata["title"], "loader metadata carried through")
	assert.Equal(t, "jane", metadata["author"])
	assert.Equal(t, "override-wins", metadata["type"], "user keys beat loader keys")
}

func TestRunAbortsOnFirstError(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	_, files := writeFiles(t, map[string]string{
		"a.txt": "fine",
		"b.txt": failMarker,
		"c.txt": "never reached in sequential order",
	})

	summary, err := pipeline.Run(context.Background(), files, Options{
		Namespace: "docs",
		Workers:   1,
	}, nil)

	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded, "a.txt sorts first and succeeds")
}

func TestRunSkipErrorsContinues(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	_, files := writeFiles(t, map[string]string{
		"a.txt": "fine",
		"b.txt": failMarker,
		"c.txt": "also fine",
	})

	summary, err := pipeline.Run(context.Background(), files, Options{
		Namespace:  "docs",
		Workers:    1,
		SkipErrors: true,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunParallelMatchesSequentialAggregates(t *testing.T) {
	contents := map[string]string{
		"a.txt":     "alpha",
		"b.txt":     "beta",
		"c.md":      "# gamma\ncontent",
		"d.txt":     "delta",
		"empty.txt": " ",
	}

	runWith := func(workers int) Summary {
		pipeline, _ := newTestPipeline(t)
		_, files := writeFiles(t, contents)
		summary, err := pipeline.Run(context.Background(), files, Options{
			Namespace: "docs",
			Workers:   workers,
		}, nil)
		require.NoError(t, err)
		return summary
	}

	sequential := runWith(1)
	parallel := runWith(4)

	assert.Equal(t, sequential, parallel, "worker count must not change aggregate outcomes")
	assert.Equal(t, 4, parallel.Succeeded)
	assert.Equal(t, 1, parallel.Skipped)
}

func TestRunParallelSkipErrorsReportsEveryFile(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	_, files := writeFiles(t, map[string]string{
		"a.txt": "fine",
		"b.txt": failMarker,
		"c.txt": failMarker,
		"d.txt": "fine too",
	})

	var mu sync.Mutex
	var results []Result
	summary, err := pipeline.Run(context.Background(), files, Options{
		Namespace:  "docs",
		Workers:    2,
		SkipErrors: true,
	}, func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, results, 4)
}

func TestRunParallelAbortStopsEarly(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	contents := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		contents[name+".txt"] = failMarker
	}
	_, files := writeFiles(t, contents)

	summary, err := pipeline.Run(context.Background(), files, Options{
		Namespace: "docs",
		Workers:   2,
	}, nil)

	require.ErrorIs(t, err, ErrAborted)
	assert.GreaterOrEqual(t, summary.Failed, 1)
	// Cancelled tasks produce no result: the failure count stays below the
	// full file set whenever cancellation lands in time; it can never
	// exceed it.
	assert.LessOrEqual(t, summary.Failed, len(files))
}

func TestRunParallelAbortPreventsPendingFiles(t *testing.T) {
	pipeline, transport := newTestPipeline(t)
	transport.latency = 50 * time.Millisecond

	// a.txt sorts first and fails instantly; every other file would spend
	// real time on the wire. The failure must gate the bulk of the set, not
	// just flavor the returned error.
	contents := map[string]string{"a.txt": failMarker}
	for r := 'b'; r <= 't'; r++ {
		contents[string(r)+".txt"] = "content " + string(r)
	}
	_, files := writeFiles(t, contents)
	require.Len(t, files, 20)

	summary, err := pipeline.Run(context.Background(), files, Options{
		Namespace: "docs",
		Workers:   2,
	}, nil)

	require.ErrorIs(t, err, ErrAborted)
	assert.GreaterOrEqual(t, summary.Failed, 1)

	processed := summary.Succeeded + summary.Failed + summary.Skipped
	assert.LessOrEqual(t, processed, len(files)/2,
		"files pending at abort time must never be ingested")
	assert.LessOrEqual(t, len(transport.payloads()), len(files)/2,
		"abort must gate network calls, not just the summary")
}

func TestPlan(t *testing.T) {
	pipeline, transport := newTestPipeline(t)
	_, files := writeFiles(t, map[string]string{
		"a.txt":    "alpha",
		"data.bin": "binary",
	})

	entries := pipeline.Plan(files)
	require.Len(t, entries, 2)

	byName := map[string]string{}
	for _, e := range entries {
		byName[filepath.Base(e.Path)] = e.Loader
	}
	assert.Equal(t, "TextLoader", byName["a.txt"])
	assert.Empty(t, byName["data.bin"])
	assert.Empty(t, transport.payloads(), "planning must not touch the network")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "a.txt -> 3 chunks", Describe(Result{Path: "/tmp/a.txt", Status: StatusSuccess, Chunks: 3}))
	assert.Equal(t, "b.bin (no_loader)", Describe(Result{Path: "b.bin", Status: StatusSkipped, Reason: ReasonNoLoader}))
	assert.Equal(t, "c.txt: boom", Describe(Result{Path: "c.txt", Status: StatusError, Reason: "boom"}))
}
