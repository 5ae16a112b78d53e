// Package cmd provides the CLI commands for the cookbook service.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/cookbook/internal/config"
	"github.com/kailas-cloud/cookbook/internal/version"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:   "cookbook",
		Short: "Recipe catalog with hybrid lexical and vector search",
		Long: `cookbook serves a recipe catalog stored in PostgreSQL and keeps a full-text
index and a vector index consistent with it. Searches combine both rankings.

Configuration is read from config/<env>.yaml; env defaults to $ENV or "local".`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("cookbook version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "Configuration environment (local, dev, prod)")

	cmd.AddCommand(newServeCmd(&env))
	cmd.AddCommand(newReconcileCmd(&env))
	cmd.AddCommand(newReindexCmd(&env))
	cmd.AddCommand(newMigrateCmd(&env))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
