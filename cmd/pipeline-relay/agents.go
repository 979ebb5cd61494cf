package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
	"github.com/txn2/pipeline-relay/pkg/audit"
	"github.com/txn2/pipeline-relay/pkg/platform"
)

// cliActor names the operator in audit events recorded by the CLI.
const cliActor = "cli"

func newAgentTokenCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent-token",
		Short: "Manage agent bearer tokens",
	}

	withPlatform := func(fn func(cmd *cobra.Command, p *platform.Platform, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return fmt.Errorf("agent tokens are stored in the database: %w", errNoDatabase)
			}
			p, err := platform.New(platform.WithConfig(cfg))
			if err != nil {
				return fmt.Errorf("creating platform: %w", err)
			}
			defer func() { _ = p.Close() }()
			return fn(cmd, p, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create AGENT",
		Short: "Create a bearer token for AGENT",
		Args:  cobra.ExactArgs(1),
		RunE: withPlatform(func(cmd *cobra.Command, p *platform.Platform, args []string) error {
			issued, err := p.Agents().Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p.Audit().Record(cmd.Context(), audit.NewEvent(audit.ActionAgentTokenCreated).
				WithActor(cliActor).WithTarget(issued.Agent).WithDetail("token_id", issued.ID))
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Token for %s (id %s). It will not be shown again:\n\n", issued.Agent, issued.ID)
			_, _ = fmt.Fprintln(out, "  "+issued.Token)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List bearer tokens",
		Args:  cobra.NoArgs,
		RunE: withPlatform(func(cmd *cobra.Command, p *platform.Platform, _ []string) error {
			tokens, err := p.Agents().List(cmd.Context())
			if err != nil {
				return err
			}
			return printTokens(cmd, tokens)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke the bearer token with ID",
		Args:  cobra.ExactArgs(1),
		RunE: withPlatform(func(cmd *cobra.Command, p *platform.Platform, args []string) error {
			if err := p.Agents().Revoke(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("revoking %s: %w", args[0], err)
			}
			p.Audit().Record(cmd.Context(), audit.NewEvent(audit.ActionAgentTokenRevoked).
				WithActor(cliActor).WithTarget(args[0]))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		}),
	})
	return cmd
}

func printTokens(cmd *cobra.Command, tokens []*agentkey.BearerToken) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tAGENT\tCREATED\tSTATUS")
	for _, t := range tokens {
		status := "active"
		if !t.Active() {
			status = "revoked " + t.RevokedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Agent, t.CreatedAt.Format(time.RFC3339), status)
	}
	return tw.Flush()
}
