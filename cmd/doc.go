package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var (
	docListNamespace string
	docListLimit     int
	docListJSON      bool

	docGetNamespace string
	docGetJSON      bool

	docDeleteNamespace string
	docDeleteYes       bool
)

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE:  runDocList,
}

var docGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Get document details and content",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocGet,
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocDelete,
}

func init() {
	docListCmd.Flags().StringVarP(&docListNamespace, "namespace", "n", "", "Filter by namespace")
	docListCmd.Flags().IntVarP(&docListLimit, "limit", "l", 50, "Max documents (up to 100)")
	docListCmd.Flags().BoolVar(&docListJSON, "json", false, "Output as JSON")

	docGetCmd.Flags().StringVarP(&docGetNamespace, "namespace", "n", "default", "Namespace containing the document")
	docGetCmd.Flags().BoolVar(&docGetJSON, "json", false, "Output as JSON")

	docDeleteCmd.Flags().StringVarP(&docDeleteNamespace, "namespace", "n", "default", "Namespace containing the document")
	docDeleteCmd.Flags().BoolVarP(&docDeleteYes, "yes", "y", false, "Skip confirmation")

	docCmd.AddCommand(docListCmd, docGetCmd, docDeleteCmd)
	rootCmd.AddCommand(docCmd)
}

func runDocList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.ListDocuments(ctx, docListNamespace, docListLimit, "")
	if err != nil {
		return err
	}

	if docListJSON {
		return printJSON(result)
	}

	documents, _ := result["documents"].([]any)
	if len(documents) == 0 {
		color.Yellow("No documents found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tNAMESPACE\tCHUNKS")
	for _, raw := range documents {
		doc, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		namespace := stringValue(doc, "namespace")
		if namespace == "" {
			namespace = "default"
		}
		chunks := countValue(doc, "chunk_count")
		if chunks == "-" {
			chunks = countValue(doc, "total_chunks")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncate(stringValue(doc, "doc_id"), 36),
			truncate(stringValue(doc, "filename"), 30),
			namespace,
			chunks,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if nextKey := stringValue(result, "next_key"); nextKey != "" {
		fmt.Println("\nMore results available. Use --limit to fetch more.")
	}
	return nil
}

func runDocGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.GetDocument(ctx, args[0], docGetNamespace)
	if err != nil {
		return err
	}

	if docGetJSON {
		return printJSON(result)
	}

	filename := stringValue(result, "filename")
	if filename == "" {
		filename = "Untitled"
	}
	namespace := stringValue(result, "namespace")
	if namespace == "" {
		namespace = "default"
	}
	chunks := countValue(result, "chunk_count")
	if chunks == "-" {
		chunks = countValue(result, "total_chunks")
	}

	color.New(color.FgCyan, color.Bold).Println(filename)
	fmt.Printf("  ID: %s\n", stringValue(result, "doc_id"))
	fmt.Printf("  Namespace: %s\n", namespace)
	fmt.Printf("  Chunks: %s\n", chunks)
	fmt.Printf("  Created: %s\n", timestampValue(result, "created_at"))

	text := stringValue(result, "reconstructed_text")
	if text == "" {
		text = stringValue(result, "text")
	}
	if text != "" {
		fmt.Println("\nContent:")
		fmt.Println(truncate(text, 2000))
		if len(text) > 2000 {
			fmt.Printf("\n... (%d more characters)\n", len(text)-2000)
		}
	}
	return nil
}

func runDocDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !docDeleteYes {
		if !confirm(fmt.Sprintf("Delete document '%s'?", args[0])) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.DeleteDocument(ctx, args[0], docDeleteNamespace)
	if err != nil {
		return err
	}

	if success, _ := result["success"].(bool); !success {
		color.Red("Error: %s", stringValue(result, "error"))
		return ErrExit
	}
	color.Green("Deleted document (%d chunks)", intValue(result, "chunks_deleted"))
	return nil
}
