package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/txn2/pipeline-relay/internal/server"
	"github.com/txn2/pipeline-relay/pkg/platform"
)

// configEnv names the config file when --config is not given.
const configEnv = "PIPELINE_RELAY_CONFIG"

var errNoDatabase = errors.New("database.dsn is not configured")

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "pipeline-relay",
		Short:        "Relay agent pipeline sessions to live viewers",
		SilenceUsage: true,
		Version:      server.Version,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (env: "+configEnv+")")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	cmd.AddCommand(newAgentTokenCmd(&configPath))
	cmd.AddCommand(newHashPasswordCmd())

	cmd.SetVersionTemplate("pipeline-relay {{.Version}}\n")
	return cmd
}

// loadConfig reads the config file and installs its logger as the default.
func loadConfig(cmd *cobra.Command, path string) (*platform.Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return nil, fmt.Errorf("--config or %s is required", configEnv)
	}
	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger, err := platform.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}
