package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitDBCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create the catalog schema",
		Long: `Creates the categories, dishes and image_queue tables when missing.
With --seed, also loads the starter categories and dishes; the seed is
guarded by existence checks and safe to rerun.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			if err := a.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			if seed {
				if err := a.SeedCatalog(cmd.Context()); err != nil {
					return fmt.Errorf("seed catalog: %w", err)
				}
			}

			a.Logger().Info("database initialized")
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "load starter categories and dishes")

	return cmd
}
