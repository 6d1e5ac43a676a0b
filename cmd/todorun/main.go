// Package main implements the todorun CLI: interactive planning and
// execution in the terminal, the toolset as an MCP server, and checks
// against a running todorund.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config location.
	configPath string
	// serverURL is the base URL of a todorund server.
	serverURL string

	// Version information (set via ldflags during build)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "todorun",
		Short: "Plan a goal into tasks and let an agent work through them",
		Long: `todorun turns a goal into a phased task list, lets you review and edit it,
then executes each task with a reasoning model and a small sandboxed toolset.

Examples:
  # Plan and run interactively
  todorun run

  # Skip the prompts you already know the answer to
  todorun run --goal "Write a haiku to poem.txt" --mode auto

  # Serve the toolset to an MCP client over stdio
  todorun tools`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/todorun/config.yaml)")

	health := &cobra.Command{
		Use:   "health",
		Short: "Check todorund server health",
		Long: `Check the health status of a todorund server.

Examples:
  todorun health
  todorun health --server http://localhost:9000`,
		RunE: runHealth,
	}
	health.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8000", "todorund server URL")

	root.AddCommand(newRunCmd(), newToolsCmd(), health, &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "todorun by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	})
	return root
}

// healthEnvelope matches the todorund response envelope for /health.
type healthEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		Status   string `json:"status"`
		Events   string `json:"events"`
		Sessions int    `json:"sessions"`
	} `json:"data"`
}

func runHealth(cmd *cobra.Command, _ []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health healthEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", health.Data.Status)
	fmt.Fprintf(out, "Event Bus:     %s\n", health.Data.Events)
	fmt.Fprintf(out, "Sessions:      %d\n", health.Data.Sessions)
	fmt.Fprintf(out, "Server URL:    %s\n", serverURL)
	return nil
}
