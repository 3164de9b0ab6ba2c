package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Maintain catalog categories",
	}
	cmd.AddCommand(newCategoriesRefreshImagesCmd())
	return cmd
}

func newCategoriesRefreshImagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-images",
		Short: "Recompute category cover images from their dishes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			updated, err := a.RefreshCategoryImages(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh category images: %w", err)
			}

			a.Logger().Info("category images refreshed", zap.Int("updated", updated))
			return nil
		},
	}
}
