package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage the dish image download queue",
	}
	cmd.AddCommand(newImagesProcessCmd())
	cmd.AddCommand(newImagesStatsCmd())
	cmd.AddCommand(newImagesClearCmd())
	return cmd
}

func newImagesProcessCmd() *cobra.Command {
	var (
		limit   int
		cleanup bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Download queued dish images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			out, err := a.ProcessImageQueue(cmd.Context(), limit, cleanup)
			if err != nil {
				return fmt.Errorf("process image queue: %w", err)
			}

			a.Logger().Info("image queue processed",
				zap.Int("total", out.Total),
				zap.Int("downloaded", out.Downloaded),
				zap.Int("skipped", out.Skipped),
				zap.Int("failed", out.Failed))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum items to process")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "sweep expired queue items first")

	return cmd
}

func newImagesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue item counts per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			stats, err := a.QueueStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue stats: %w", err)
			}

			cmd.Printf("total: %d\npending: %d\ndownloading: %d\ncompleted: %d\nfailed: %d\nskipped: %d\n",
				stats.Total, stats.Pending, stats.Downloading,
				stats.Completed, stats.Failed, stats.Skipped)
			return nil
		},
	}
}

func newImagesClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every item from the image queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			deleted, err := a.ClearImageQueue(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear image queue: %w", err)
			}

			a.Logger().Info("image queue cleared", zap.Int64("deleted", deleted))
			return nil
		},
	}
}
