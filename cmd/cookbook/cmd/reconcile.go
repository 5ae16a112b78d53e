package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReconcileCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Index every pending recipe once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *env)
			if err != nil {
				return err
			}
			defer a.close()

			if a.volatileIndexes() {
				return fmt.Errorf("reconcile needs persistent indexes: set lexical.path and vector.driver %q", "valkey")
			}
			if err := a.openIndexes(ctx); err != nil {
				return err
			}

			n, err := a.reconciler(a.indexer()).Drain(ctx)
			if err != nil {
				return fmt.Errorf("drain backlog: %w", err)
			}
			a.logger.Info("Backlog drained", zap.Int("indexed", n))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d recipes\n", n)
			return err
		},
	}
}
