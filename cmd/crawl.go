package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd() *cobra.Command {
	var (
		sectionURL  string
		sectionName string
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the menu site and persist dishes",
		Long: `Crawls every discovered menu section (or a single section when --section
is given), extracts dish candidates and writes them to the catalog.
Image URLs found along the way are registered in the download queue.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			out, err := a.CrawlAndPersist(cmd.Context(), sectionURL, sectionName)
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}

			a.Logger().Info("crawl finished",
				zap.Int("dishes_found", out.DishesFound),
				zap.Int("added", out.Added),
				zap.Int("skipped", out.Skipped))
			return nil
		},
	}

	cmd.Flags().StringVar(&sectionURL, "section", "", "crawl only this section URL")
	cmd.Flags().StringVar(&sectionName, "name", "", "display name for --section (derived from the URL slug when empty)")

	return cmd
}
