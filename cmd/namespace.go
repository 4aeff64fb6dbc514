package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stachelabs/stache-go/internal/stache"
)

var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Manage namespaces",
}

var (
	nsListJSON bool
	nsGetJSON  bool

	nsCreateName     string
	nsCreateDesc     string
	nsCreateParent   string
	nsCreateMetaJSON string

	nsUpdateName     string
	nsUpdateDesc     string
	nsUpdateMetaJSON string

	nsDeleteCascade bool
	nsDeleteYes     bool
)

var nsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all namespaces",
	RunE:  runNamespaceList,
}

var nsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get namespace details",
	Args:  cobra.ExactArgs(1),
	RunE:  runNamespaceGet,
}

var nsCreateCmd = &cobra.Command{
	Use:   "create [id]",
	Short: "Create a namespace",
	Args:  cobra.ExactArgs(1),
	RunE:  runNamespaceCreate,
}

var nsUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a namespace",
	Args:  cobra.ExactArgs(1),
	RunE:  runNamespaceUpdate,
}

var nsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a namespace",
	Args:  cobra.ExactArgs(1),
	RunE:  runNamespaceDelete,
}

func init() {
	nsListCmd.Flags().BoolVar(&nsListJSON, "json", false, "Output as JSON")
	nsGetCmd.Flags().BoolVar(&nsGetJSON, "json", false, "Output as JSON")

	nsCreateCmd.Flags().StringVarP(&nsCreateName, "name", "n", "", "Display name (required)")
	nsCreateCmd.Flags().StringVarP(&nsCreateDesc, "description", "d", "", "Description")
	nsCreateCmd.Flags().StringVarP(&nsCreateParent, "parent", "p", "", "Parent namespace ID")
	nsCreateCmd.Flags().StringVarP(&nsCreateMetaJSON, "metadata", "m", "", "Metadata as JSON")
	nsCreateCmd.MarkFlagRequired("name")

	nsUpdateCmd.Flags().StringVarP(&nsUpdateName, "name", "n", "", "New display name")
	nsUpdateCmd.Flags().StringVarP(&nsUpdateDesc, "description", "d", "", "New description")
	nsUpdateCmd.Flags().StringVarP(&nsUpdateMetaJSON, "metadata", "m", "", "New metadata as JSON")

	nsDeleteCmd.Flags().BoolVar(&nsDeleteCascade, "cascade", false, "Delete all documents in namespace")
	nsDeleteCmd.Flags().BoolVarP(&nsDeleteYes, "yes", "y", false, "Skip confirmation")

	namespaceCmd.AddCommand(nsListCmd, nsGetCmd, nsCreateCmd, nsUpdateCmd, nsDeleteCmd)
	rootCmd.AddCommand(namespaceCmd)
}

func runNamespaceList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.ListNamespaces(ctx)
	if err != nil {
		return err
	}

	if nsListJSON {
		return printJSON(result)
	}

	namespaces, _ := result["namespaces"].([]any)
	if len(namespaces) == 0 {
		color.Yellow("No namespaces found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION\tDOCS\tCHUNKS")
	for _, raw := range namespaces {
		ns, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			stringValue(ns, "id"),
			stringValue(ns, "name"),
			truncate(stringValue(ns, "description"), 40),
			countValue(ns, "doc_count"),
			countValue(ns, "chunk_count"),
		)
	}
	return w.Flush()
}

func runNamespaceGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.GetNamespace(ctx, args[0])
	if err != nil {
		return err
	}

	if nsGetJSON {
		return printJSON(result)
	}

	ns := result
	if nested, ok := result["namespace"].(map[string]any); ok {
		ns = nested
	}

	parent := stringValue(ns, "parent_id")
	if parent == "" {
		parent = "None"
	}

	color.New(color.FgCyan, color.Bold).Println(args[0])
	fmt.Printf("  Name: %s\n", stringValue(ns, "name"))
	fmt.Printf("  Description: %s\n", stringValue(ns, "description"))
	fmt.Printf("  Parent: %s\n", parent)
	fmt.Printf("  Documents: %s\n", countValue(ns, "doc_count"))
	fmt.Printf("  Chunks: %s\n", countValue(ns, "chunk_count"))
	fmt.Printf("  Created: %s\n", timestampValue(ns, "created_at"))
	fmt.Printf("  Updated: %s\n", timestampValue(ns, "updated_at"))
	return nil
}

func runNamespaceCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	metadata, err := parseJSONFlag(nsCreateMetaJSON, "metadata")
	if err != nil {
		return err
	}

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.CreateNamespace(ctx, args[0], nsCreateName, nsCreateDesc, nsCreateParent, metadata); err != nil {
		return err
	}
	color.Green("Created namespace: %s", args[0])
	return nil
}

func runNamespaceUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	metadata, err := parseJSONFlag(nsUpdateMetaJSON, "metadata")
	if err != nil {
		return err
	}

	if nsUpdateName == "" && nsUpdateDesc == "" && metadata == nil {
		color.Yellow("Nothing to update. Provide --name, --description, or --metadata")
		return nil
	}

	update := stache.NamespaceUpdate{Metadata: metadata}
	if nsUpdateName != "" {
		update.Name = &nsUpdateName
	}
	if nsUpdateDesc != "" {
		update.Description = &nsUpdateDesc
	}

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.UpdateNamespace(ctx, args[0], update); err != nil {
		return err
	}
	color.Green("Updated namespace: %s", args[0])
	return nil
}

func runNamespaceDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !nsDeleteYes {
		prompt := fmt.Sprintf("Delete namespace '%s'?", args[0])
		if nsDeleteCascade {
			prompt = fmt.Sprintf("Delete namespace '%s' and ALL its documents?", args[0])
		}
		if !confirm(prompt) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	client, _, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.DeleteNamespace(ctx, args[0], nsDeleteCascade)
	if err != nil {
		return err
	}

	if nsDeleteCascade {
		docs := intValue(result, "documents_deleted")
		chunks := intValue(result, "chunks_deleted")
		color.Green("Deleted namespace: %s (%d docs, %d chunks)", args[0], docs, chunks)
	} else {
		color.Green("Deleted namespace: %s", args[0])
	}
	return nil
}

// stringValue reads a string field from a decoded JSON object.
func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// intValue reads a numeric field; JSON numbers decode as float64.
func intValue(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// countValue renders an optional count, "-" when absent.
func countValue(m map[string]any, key string) string {
	if v, ok := m[key].(float64); ok {
		return fmt.Sprintf("%d", int(v))
	}
	return "-"
}

// timestampValue trims an ISO timestamp to seconds precision for display.
func timestampValue(m map[string]any, key string) string {
	s := stringValue(m, key)
	if s == "" {
		return "-"
	}
	return truncate(s, 19)
}
