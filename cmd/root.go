// Package cmd implements the stache command-line interface.
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stachelabs/stache-go/internal/config"
	"github.com/stachelabs/stache-go/internal/log"
	"github.com/stachelabs/stache-go/internal/stache"
)

var verbose bool

// ErrExit signals a non-zero exit after a command already printed its own
// failure report. main suppresses the generic error line for it.
var ErrExit = errors.New("command failed")

var rootCmd = &cobra.Command{
	Use:   "stache",
	Short: "Stache CLI - interact with your knowledge base",
	Long: `Stache lets you search, ingest, and manage documents in a remote
knowledge base, over HTTP or direct Lambda invocation.

Configure via STACHE_* environment variables or ~/.stache/config.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// newLogger builds the CLI logger. Debug when --verbose, otherwise the
// configured level. Logs go to stderr so stdout stays parseable.
func newLogger(cfg *config.Config) log.Logger {
	level := log.ParseLevel(cfg.LogLevel)
	if verbose {
		level = log.ParseLevel("debug")
	}
	return log.NewWithWriter(os.Stderr, log.Config{Level: level})
}

// newClient loads configuration and opens a client with the resolved
// transport. The caller owns the returned client and must close it.
func newClient(ctx context.Context) (*stache.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	client, err := stache.NewClient(ctx, cfg, newLogger(cfg))
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// parseJSONFlag parses an optional JSON object flag value.
func parseJSONFlag(raw, name string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("invalid %s JSON: %w", name, err)
	}
	return parsed, nil
}

// printJSON writes a payload as indented JSON to stdout.
func printJSON(payload any) error {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// confirm prompts on stdin and returns true only on an explicit yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// truncate shortens s to at most n runes for table display.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
