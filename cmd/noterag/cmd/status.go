package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
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

			out := cmd.OutOrStdout()

			if !svc.index.IndexExists() {
				fmt.Fprintln(out, "No index found. Run 'noterag index' to build one.")
				return nil
			}

			if err := svc.index.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load index: %w", err)
			}

			stats, err := svc.index.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Notes directory: %s\n", cfg.Notes.Directory)
			fmt.Fprintf(out, "Documents:       %d\n", stats.TotalDocuments)
			fmt.Fprintf(out, "Chunks:          %d\n", stats.TotalChunks)
			fmt.Fprintf(out, "Tags:            %d\n", stats.TotalTags)
			fmt.Fprintf(out, "Vectors:         %d\n", stats.VectorCount)
			fmt.Fprintf(out, "Index size:      %.2f MB\n", stats.IndexSizeMB)
			fmt.Fprintf(out, "Last update:     %s\n", stats.LastUpdate)
			return nil
		},
	}

	return cmd
}
