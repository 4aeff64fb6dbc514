package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stachelabs/stache-go/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("stache %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		// Version must print even with a broken environment.
		fmt.Printf("\nConfiguration: unavailable (%v)\n", err)
		return nil
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Transport: %s\n", cfg.ResolvedTransport())
	fmt.Printf("  Target: %s\n", cfg.Target())
	oauth := "disabled"
	if cfg.OAuthEnabled() {
		oauth = "enabled"
	}
	fmt.Printf("  OAuth: %s\n", oauth)
	return nil
}
