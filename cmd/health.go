package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	healthCheckAuth bool
	healthAsJSON    bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API connectivity and health",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthCheckAuth, "check-auth", false, "Validate authentication")
	healthCmd.Flags().BoolVar(&healthAsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, cfg, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if !healthAsJSON {
		fmt.Printf("Transport: %s\n", cfg.ResolvedTransport())
		fmt.Printf("Target: %s\n", cfg.Target())
		if cfg.ResolvedTransport() == "http" {
			oauth := "disabled"
			if cfg.OAuthEnabled() {
				oauth = "enabled"
			}
			fmt.Printf("OAuth: %s\n", oauth)
		}
		fmt.Println()
	}

	result, err := client.Health(ctx, healthCheckAuth || cfg.OAuthEnabled())
	if err != nil {
		color.Red("Health check failed: %v", err)
		return ErrExit
	}

	if healthAsJSON {
		return printJSON(result)
	}

	status := stringValue(result, "status")
	if status == "" {
		status = "unknown"
	}
	if status == "healthy" {
		color.Green("Status: %s", status)
	} else {
		color.Yellow("Status: %s", status)
	}

	if auth := stringValue(result, "auth_status"); auth != "" {
		if auth == "valid" {
			color.Green("Auth: %s", auth)
		} else {
			color.Red("Auth: %s", auth)
		}
	}

	if providers, ok := result["providers"].(map[string]any); ok && len(providers) > 0 {
		fmt.Println("\nProviders:")
		fmt.Printf("  VectorDB: %s\n", providerValue(providers, "vectordb_provider"))
		fmt.Printf("  Embedding: %s\n", providerValue(providers, "embedding_provider"))
		fmt.Printf("  LLM: %s\n", providerValue(providers, "llm_provider"))
	}

	if requestID := client.LastRequestID(); requestID != "" {
		fmt.Printf("\nRequest ID: %s\n", requestID)
	}
	return nil
}

func providerValue(providers map[string]any, key string) string {
	if s := stringValue(providers, key); s != "" {
		return s
	}
	return "unknown"
}
