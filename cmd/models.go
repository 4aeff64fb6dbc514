package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var modelsAsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available LLM models",
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsAsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	if modelsAsJSON {
		return printJSON(result)
	}

	provider := stringValue(result, "provider")
	if provider == "" {
		provider = "unknown"
	}
	defaultModel := stringValue(result, "default")

	fmt.Printf("Provider: %s\n", provider)
	fmt.Printf("Default: %s\n\n", defaultModel)

	models, _ := result["models"].([]any)
	if len(models) == 0 {
		color.Yellow("No models available.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIER\tCONTEXT")
	for _, raw := range models {
		model, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		id := stringValue(model, "id")
		if id == defaultModel {
			id += " *"
		}
		contextWindow := countValue(model, "context_window")

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			id,
			stringValue(model, "name"),
			stringValue(model, "tier"),
			contextWindow,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\n* = default model")
	return nil
}
