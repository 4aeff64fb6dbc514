package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stachelabs/stache-go/internal/stache"
)

var (
	searchNamespace  string
	searchTopK       int
	searchSynthesize bool
	searchNoRerank   bool
	searchModel      string
	searchFilterJSON string
	searchAsJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchNamespace, "namespace", "n", "", "Limit to namespace")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 10, "Number of results")
	searchCmd.Flags().BoolVar(&searchSynthesize, "synthesize", false, "Enable LLM synthesis (slower)")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "Skip reranking (faster, less accurate)")
	searchCmd.Flags().StringVarP(&searchModel, "model", "m", "", "Override LLM model for synthesis")
	searchCmd.Flags().StringVarP(&searchFilterJSON, "filter", "f", "", `Metadata filter as JSON (e.g. '{"source": "docs"}')`)
	searchCmd.Flags().BoolVar(&searchAsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filter, err := parseJSONFlag(searchFilterJSON, "filter")
	if err != nil {
		return err
	}

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Search(ctx, args[0], stache.SearchOptions{
		Namespace:  searchNamespace,
		TopK:       searchTopK,
		Rerank:     !searchNoRerank,
		Synthesize: searchSynthesize,
		Filter:     filter,
		Model:      searchModel,
	})
	if err != nil {
		return err
	}

	if searchAsJSON {
		return printJSON(result)
	}

	if answer, ok := result["answer"].(string); ok && answer != "" {
		color.New(color.Bold, color.FgGreen).Println("Answer")
		fmt.Println(answer)
		fmt.Println()
	}

	sources, _ := result["sources"].([]any)
	if len(sources) == 0 {
		color.Yellow("No results found.")
		return nil
	}

	color.New(color.Bold).Printf("Found %d sources:\n\n", len(sources))
	for i, raw := range sources {
		source, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		score, _ := source["score"].(float64)
		text, _ := source["content"].(string)

		filename := "Unknown"
		namespace := "default"
		if meta, ok := source["metadata"].(map[string]any); ok {
			if v, ok := meta["filename"].(string); ok && v != "" {
				filename = v
			}
			if v, ok := meta["namespace"].(string); ok && v != "" {
				namespace = v
			}
		}

		color.New(color.FgCyan).Printf("%d. %s", i+1, filename)
		fmt.Printf(" (score: %.3f, namespace: %s)\n", score, namespace)
		fmt.Printf("   %s...\n\n", truncate(text, 300))
	}

	return nil
}
