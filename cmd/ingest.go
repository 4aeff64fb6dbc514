package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/stachelabs/stache-go/internal/config"
	"github.com/stachelabs/stache-go/internal/ingest"
	"github.com/stachelabs/stache-go/internal/loader"
	"github.com/stachelabs/stache-go/internal/log"
	"github.com/stachelabs/stache-go/internal/stache"
)

var chunkingStrategies = []string{"auto", "recursive", "markdown", "semantic", "character", "hierarchical", "transcript"}

var (
	ingestNamespace   string
	ingestRecursive   bool
	ingestChunking    string
	ingestMetaJSON    string
	ingestPrependKeys string
	ingestText        string
	ingestStdin       bool
	ingestBasePath    string
	ingestDryRun      bool
	ingestYes         bool
	ingestSkipErrors  bool
	ingestPattern     string
	ingestParallel    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest files or text into the knowledge base",
	Long: `Ingest files or text into Stache.

PATH can be a file or directory. Use -r for recursive directory processing.
Alternatively, use --text or --stdin to ingest text directly.

Examples:
  stache ingest document.pdf -n docs
  stache ingest ./files/ -r -c markdown
  stache ingest -t "Quick note to remember" -n notes
  echo "Text from pipe" | stache ingest --stdin -n notes
  stache ingest sermon.txt -m '{"speaker":"John"}' -p speaker`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	flags := ingestCmd.Flags()
	flags.StringVarP(&ingestNamespace, "namespace", "n", "", "Target namespace")
	flags.BoolVarP(&ingestRecursive, "recursive", "r", false, "Recursively process directories")
	flags.StringVarP(&ingestChunking, "chunking-strategy", "c", "auto",
		fmt.Sprintf("Chunking strategy (%s)", strings.Join(chunkingStrategies, ", ")))
	flags.StringVarP(&ingestMetaJSON, "metadata", "m", "", `Metadata as JSON (e.g. '{"author": "John"}')`)
	flags.StringVarP(&ingestPrependKeys, "prepend-metadata", "p", "", "Metadata keys to prepend to chunks (comma-separated)")
	flags.StringVarP(&ingestText, "text", "t", "", "Ingest text directly instead of a file")
	flags.BoolVar(&ingestStdin, "stdin", false, "Read text from stdin")
	flags.StringVar(&ingestBasePath, "base-path", "", "Base path to strip from source_path for portable identifiers")
	flags.BoolVar(&ingestDryRun, "dry-run", false, "Show what would be ingested without doing it")
	flags.BoolVarP(&ingestYes, "yes", "y", false, "Skip confirmation prompt")
	flags.BoolVar(&ingestSkipErrors, "skip-errors", false, "Continue on errors instead of stopping")
	flags.StringVar(&ingestPattern, "pattern", "*", "Glob pattern for files")
	flags.IntVarP(&ingestParallel, "parallel", "P", 1, "Number of parallel uploads (1-32)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !validChunkingStrategy(ingestChunking) {
		return fmt.Errorf("invalid chunking strategy %q (choose from %s)",
			ingestChunking, strings.Join(chunkingStrategies, ", "))
	}
	if ingestParallel < ingest.MinWorkers || ingestParallel > ingest.MaxWorkers {
		return fmt.Errorf("parallel must be between %d and %d", ingest.MinWorkers, ingest.MaxWorkers)
	}

	metadata, err := parseJSONFlag(ingestMetaJSON, "metadata")
	if err != nil {
		return err
	}
	prependKeys := splitKeys(ingestPrependKeys)

	// "auto" is a CLI-side default; the backend only takes concrete
	// strategies.
	strategy := ingestChunking
	if strategy == "auto" {
		strategy = ""
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg)

	text := ingestText
	if ingestStdin {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		if len(raw) == 0 {
			return errors.New("no input on stdin")
		}
		text = string(raw)
	}

	if text != "" {
		return ingestDirectText(ctx, cfg, logger, text, metadata, strategy, prependKeys)
	}

	if len(args) == 0 {
		return errors.New("provide a PATH or use --text/--stdin")
	}

	registry := loader.NewRegistry(logger,
		loader.WithOverrides(config.LoaderOverrides()),
		loader.WithProviders(
			loader.OCRImageProvider(logger),
			loader.OCRPDFProvider(logger),
		),
	)

	files, err := ingest.CollectFiles(args[0], ingestPattern, ingestRecursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		color.Yellow("No files to ingest")
		return nil
	}
	if len(files) > 1 && ingestNamespace == "" {
		fmt.Fprintln(os.Stderr, "Error: namespace required for multi-file ingest")
		fmt.Fprintln(os.Stderr, "Specify namespace with -n/--namespace")
		fmt.Fprintf(os.Stderr, "\nExample: stache ingest %s -n my-namespace -r\n", args[0])
		return ErrExit
	}

	pipeline := ingest.New(registry, func(ctx context.Context) (*stache.Client, error) {
		return stache.NewClient(ctx, cfg, logger)
	}, logger)

	fmt.Printf("Found %d file(s) to process\n", len(files))
	if ingestChunking != "auto" {
		fmt.Printf("Chunking strategy: %s\n", ingestChunking)
	}

	if ingestDryRun {
		printPlan(pipeline.Plan(files))
		return nil
	}

	if !ingestYes && len(files) > 1 {
		namespace := ingestNamespace
		if namespace == "" {
			namespace = "default"
		}
		if !confirm(fmt.Sprintf("Ingest %d files to namespace '%s'?", len(files), namespace)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Ingesting..."),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	summary, err := pipeline.Run(ctx, files, ingest.Options{
		Namespace:        ingestNamespace,
		ChunkingStrategy: strategy,
		Metadata:         metadata,
		PrependMetadata:  prependKeys,
		BasePath:         ingestBasePath,
		Workers:          ingestParallel,
		SkipErrors:       ingestSkipErrors,
	}, func(r ingest.Result) {
		printResult(r)
		bar.Add(1)
	})
	bar.Finish()

	if errors.Is(err, ingest.ErrAborted) {
		color.Red("Error: stopping after failure. Use --skip-errors to continue.")
	} else if err != nil {
		return err
	}

	printSummary(summary, ingestNamespace)

	if summary.Failed > 0 || errors.Is(err, ingest.ErrAborted) {
		return ErrExit
	}
	return nil
}

// ingestDirectText handles the --text and --stdin fast path with a single
// client and no pipeline.
func ingestDirectText(ctx context.Context, cfg *config.Config, logger log.Logger, text string, metadata map[string]any, strategy string, prependKeys []string) error {
	client, err := stache.NewClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.IngestText(ctx, text, stache.IngestOptions{
		Namespace:        ingestNamespace,
		Metadata:         metadata,
		ChunkingStrategy: strategy,
		PrependMetadata:  prependKeys,
	})
	if err != nil {
		color.Red("✗ Failed: %v", err)
		return ErrExit
	}

	chunks := 0
	if v, ok := result["chunks_created"].(float64); ok {
		chunks = int(v)
	}
	docID, _ := result["doc_id"].(string)
	if docID == "" {
		docID, _ = result["document_id"].(string)
	}
	color.Green("✓ Ingested text -> %d chunks (doc: %s)", chunks, truncate(docID, 8))
	return nil
}

func printPlan(entries []ingest.PlanEntry) {
	fmt.Printf("\nDry run - would ingest %d files:\n", len(entries))
	shown := entries
	if len(shown) > 20 {
		shown = shown[:20]
	}
	for _, entry := range shown {
		if entry.Loader != "" {
			fmt.Printf("  %s %s\n", color.GreenString("✓"), entry.Path)
		} else {
			fmt.Printf("  %s %s\n", color.YellowString("skip"), entry.Path)
		}
	}
	if len(entries) > 20 {
		fmt.Printf("  ... and %d more\n", len(entries)-20)
	}

	namespace := ingestNamespace
	if namespace == "" {
		namespace = "default"
	}
	fmt.Printf("\nTarget namespace: %s\n", namespace)
}

func printResult(r ingest.Result) {
	switch r.Status {
	case ingest.StatusSuccess:
		fmt.Printf("%s %s\n", color.GreenString("✓"), ingest.Describe(r))
	case ingest.StatusSkipped:
		fmt.Printf("%s %s\n", color.YellowString("○"), ingest.Describe(r))
	default:
		fmt.Printf("%s %s\n", color.RedString("✗"), ingest.Describe(r))
	}
}

func printSummary(s ingest.Summary, namespace string) {
	if namespace == "" {
		namespace = "default"
	}
	divider := strings.Repeat("=", 50)
	fmt.Println()
	fmt.Println(divider)
	color.New(color.Bold).Println("Import Complete")
	fmt.Printf("  Successful: %d files\n", s.Succeeded)
	fmt.Printf("  Failed: %d files\n", s.Failed)
	fmt.Printf("  Skipped: %d files\n", s.Skipped)
	fmt.Printf("  Total chunks: %d\n", s.TotalChunks)
	fmt.Printf("  Namespace: %s\n", namespace)
	fmt.Println(divider)
}

func validChunkingStrategy(s string) bool {
	for _, known := range chunkingStrategies {
		if strings.EqualFold(s, known) {
			return true
		}
	}
	return false
}

func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
