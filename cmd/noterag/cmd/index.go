package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the note index",
		Long: `Scan the notes directory, chunk and embed every Markdown file,
and write the vector index and metadata store to the data directory.
An existing index is replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			svc, err := buildServices(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			svc.index.ShowProgress = true
			if err := svc.index.Build(cmd.Context()); err != nil {
				return fmt.Errorf("build index: %w", err)
			}

			stats, err := svc.index.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d documents (%d chunks, %d tags)\n",
				stats.TotalDocuments, stats.TotalChunks, stats.TotalTags)
			fmt.Fprintf(out, "Index size: %.2f MB\n", stats.IndexSizeMB)
			return nil
		},
	}

	return cmd
}
