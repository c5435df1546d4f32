package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/noterag/internal/search"
)

const snippetRunes = 200

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var localRatio float64
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search notes and the web from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			svc, err := buildServices(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.index.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load index (run 'noterag index' first): %w", err)
			}

			query := strings.Join(args, " ")
			results, err := svc.retriever.HybridSearch(cmd.Context(), query, localRatio)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			printResults(cmd, query, results)
			return nil
		},
	}

	cmd.Flags().Float64Var(&localRatio, "local-ratio", -1, "Share of results from local notes, 0 to 1 (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printResults(cmd *cobra.Command, query string, results []search.Result) {
	out := cmd.OutOrStdout()

	if len(results) == 0 {
		fmt.Fprintf(out, "No results for %q\n", query)
		return
	}

	fmt.Fprintf(out, "%d results for %q\n\n", len(results), query)
	for i, r := range results {
		location := r.FilePath
		if r.Source == search.SourceWeb {
			location = r.URL
		}
		fmt.Fprintf(out, "%2d. [%.3f] %s (%s)\n", i+1, r.Score, r.Title, r.Source)
		if location != "" {
			fmt.Fprintf(out, "    %s\n", location)
		}
		if snippet := snip(r.Content); snippet != "" {
			fmt.Fprintf(out, "    %s\n", snippet)
		}
		fmt.Fprintln(out)
	}
}

// snip flattens content to one line and truncates it for display.
func snip(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "..."
}
