package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txn2/pipeline-relay/internal/server"
	"github.com/txn2/pipeline-relay/pkg/platform"
)

func newServeCmd(configPath *string) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			p, err := platform.New(platform.WithConfig(cfg))
			if err != nil {
				return fmt.Errorf("creating platform: %w", err)
			}
			return server.Run(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Listen address, overriding server.address")
	return cmd
}
