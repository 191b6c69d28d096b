package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/monitorfeed/config"
	"github.com/jpalmerr/monitorfeed/internal/producer"
	"github.com/jpalmerr/monitorfeed/internal/store"
)

// publishCmd writes one monitor state and announces it.
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Write a monitor state and announce it",
	Long: `Write a JSON monitor state to "<namespace>:<id>" and publish the id on
the update topic, the same way an external producer would.

The state is read from a file, or from stdin when --state is "-".
Requires the redis backend.

Example:
  echo '{"status":"down"}' | monitorfeed publish -c config.yaml --id vps-1 --state -`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	publishCmd.Flags().String("id", "", "monitor id (required)")
	publishCmd.Flags().String("state", "-", "path to a JSON state document, or - for stdin")
	_ = publishCmd.MarkFlagRequired("config")
	_ = publishCmd.MarkFlagRequired("id")
}

func runPublish(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Store.Backend != config.BackendRedis {
		return errors.New("publish requires the redis backend")
	}

	id, _ := cmd.Flags().GetString("id")
	statePath, _ := cmd.Flags().GetString("state")
	state, err := readState(cmd.InOrStdin(), statePath)
	if err != nil {
		return err
	}

	st := store.NewRedisStore(store.RedisOptions{
		Addr:     cfg.Store.Redis.Addr,
		Username: cfg.Store.Redis.Username,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.StoreTimeout.Duration())
	defer cancel()

	if err := producer.Announce(ctx, st, cfg.Namespace, cfg.Topic, id, state); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %s:%s on %s\n", cfg.Namespace, id, cfg.Topic)
	return nil
}

func readState(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read state from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return data, nil
}
