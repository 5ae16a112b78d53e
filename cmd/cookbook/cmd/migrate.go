package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *env)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.logger.Info("Schema applied")
			return nil
		},
	}
}
