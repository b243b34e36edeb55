// Package main is the entry point for the flowcache CLI.
//
// FlowCache can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach:
// a reactive entry store served over HTTP with live updates via SSE.
//
// Usage:
//
//	flowcache serve -c config.yaml    # Start the entry server
//	flowcache validate -c config.yaml # Validate configuration
//	flowcache version                 # Show version info
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
	Use:   "flowcache",
	Short: "A reactive in-memory key-value store served over HTTP",
	Long: `FlowCache is a reactive in-memory key-value store.

It holds a keyed collection of entries and pushes every change to
subscribers: a REST API for reads and writes, and Server-Sent Events
streams that deliver the current state first, then live updates.

Quick start:
  1. Create a config file (flowcache.yaml)
  2. Run: flowcache serve -c flowcache.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  seed:
    - key: checkout-v2
      data:
        enabled: "true"`,
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
	Long:  `Print the version, commit hash, and build date of this flowcache binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flowcache %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
