package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/cookbook/internal/config"
	"github.com/kailas-cloud/cookbook/internal/repository/vector"
)

func newReindexCmd(env *string) *cobra.Command {
	var recreate bool

	cmd := &cobra.Command{
		Use:   "reindex [id]",
		Short: "Mark one recipe, or all of them, for reindexing",
		Long: `Mark recipes as not indexed. A running server picks them up on its
next reconcile cycle; 'cookbook reconcile' indexes them immediately.

--recreate-index drops and recreates the Valkey vector index, which is needed
after changing vector.hnsw_m or vector.hnsw_ef_construction.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id *int64
			if len(args) == 1 {
				v, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid recipe id %q: %w", args[0], err)
				}
				id = &v
			}
			if recreate && id != nil {
				return errors.New("--recreate-index applies to the whole catalog, drop the id argument")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, *env)
			if err != nil {
				return err
			}
			defer a.close()

			if recreate {
				if a.cfg.Vector.Driver != config.VectorDriverValkey {
					return fmt.Errorf("--recreate-index requires vector.driver %q", config.VectorDriverValkey)
				}
				if err := a.openIndexes(ctx); err != nil {
					return err
				}
				vs, ok := a.vector.(*vector.Store)
				if !ok {
					return errors.New("vector index is not valkey-backed")
				}
				if err := vs.RecreateCollection(ctx); err != nil {
					return fmt.Errorf("recreate vector index: %w", err)
				}
			}

			n, err := a.recipes.MarkDirty(ctx, id)
			if err != nil {
				return fmt.Errorf("mark dirty: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "marked %d recipes for reindexing\n", n)
			return err
		},
	}
	cmd.Flags().BoolVar(&recreate, "recreate-index", false, "Drop and recreate the vector index first")
	return cmd
}
