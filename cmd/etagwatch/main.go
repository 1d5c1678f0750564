// Package main is the entry point for the etagwatch CLI.
//
// The watcher can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	etagwatch serve -c config.yaml    # Start the watcher
//	etagwatch validate -c config.yaml # Validate configuration
//	etagwatch version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "etagwatch",
	Short: "Watch an HTTP resource for ETag changes",
	Long: `etagwatch polls a single HTTP resource and notifies when its ETag moves.

It persists the last observed ETag to disk, so restarts never re-announce
a state that was already seen. Notifications go out over email, a live
websocket subscription endpoint, and the process keeps itself alive across
poll-loop crashes with a restart backoff.

Quick start:
  1. Create a config file (etagwatch.yaml)
  2. Run: etagwatch serve -c etagwatch.yaml
  3. Check http://localhost:8080/health

Example config:
  watch_url: https://example.com/resource
  poll_interval: 30s
  state_file: /var/lib/etagwatch/state.json
  email:
    host: smtp.example.com
    from: watcher@example.com
    username: ${SMTP_USER}
    password: ${SMTP_PASS}
    recipients:
      - ops@example.com`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this etagwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("etagwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
