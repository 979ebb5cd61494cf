package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/txn2/pipeline-relay/pkg/database/migrate"
	"github.com/txn2/pipeline-relay/pkg/platform"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withDB := func(fn func(cmd *cobra.Command, db *sql.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errNoDatabase
			}
			db, err := platform.OpenDB(cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return fn(cmd, db, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: withDB(func(_ *cobra.Command, db *sql.DB, _ []string) error {
			return migrate.Run(db)
		}),
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all relay data",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *sql.DB, _ []string) error {
			if !confirm {
				return errors.New("refusing to drop all data without --yes")
			}
			if err := migrate.Down(db); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "all migrations rolled back")
			return nil
		}),
	}
	down.Flags().BoolVar(&confirm, "yes", false, "Confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or roll back when N is negative",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(_ *cobra.Command, db *sql.DB, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
			}
			return migrate.Steps(db, n)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withDB(func(cmd *cobra.Command, db *sql.DB, _ []string) error {
			version, dirty, err := migrate.Version(db)
			if err != nil {
				return fmt.Errorf("reading schema version: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
			return nil
		}),
	})
	return cmd
}
