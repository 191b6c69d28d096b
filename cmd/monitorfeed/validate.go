package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/monitorfeed/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a monitorfeed configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It does not connect to the store. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  monitorfeed validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// catches monitor-level errors Parse leaves to the SDK
	if _, err := config.BuildOptions(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store := cfg.Store.Backend
	if store == config.BackendRedis {
		store += " (" + cfg.Store.Redis.Addr + ")"
	}
	auth := "disabled"
	if cfg.RequireAuth {
		auth = "jwt"
	}
	producer := "disabled"
	if cfg.Producer.Enabled {
		producer = fmt.Sprintf("%d monitors every %s", len(cfg.Producer.Monitors), cfg.Producer.Interval.Duration())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  Path:      %s\n", cfg.WSPath)
	fmt.Fprintf(out, "  Store:     %s\n", store)
	fmt.Fprintf(out, "  Keys:      %s:*\n", cfg.Namespace)
	fmt.Fprintf(out, "  Topic:     %s\n", cfg.Topic)
	fmt.Fprintf(out, "  Frames:    %s\n", cfg.Frames)
	fmt.Fprintf(out, "  Auth:      %s\n", auth)
	fmt.Fprintf(out, "  Producer:  %s\n", producer)

	return nil
}
