// Package main is the entry point for the monitorfeed CLI.
//
// monitorfeed can be embedded as a library (SDK) or run as a standalone
// binary with YAML configuration. This CLI provides the standalone binary.
//
// Usage:
//
//	monitorfeed serve -c config.yaml                # Start the broadcast server
//	monitorfeed validate -c config.yaml             # Validate configuration
//	monitorfeed publish -c config.yaml --id vps-1   # Write and announce a state
//	monitorfeed version                             # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "monitorfeed",
	Short: "Live monitor status over WebSockets",
	Long: `monitorfeed pushes live monitor status to connected clients.

Monitor state lives in Redis under "<namespace>:<monitorId>". Producers
announce a change by publishing the monitor ID on the update topic; every
connected client receives a snapshot on connect and one frame per change.

Quick start:
  1. Create a config file (monitorfeed.yaml)
  2. Run: monitorfeed serve -c monitorfeed.yaml
  3. Connect to ws://localhost:3333/ws/monitors

Example config:
  port: 3333
  namespace: vps-monitor
  topic: monitor:update
  store:
    redis:
      addr: ${REDIS_HOST:-localhost}:6379`,
}

// Execute runs the root command.
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
	Long:  `Print the version, commit hash, and build date of this monitorfeed binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "monitorfeed %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
