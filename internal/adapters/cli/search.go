package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

func (a *app) searchCommand() *cobra.Command {
	var (
		limit     int
		threshold float64
		asJSON    bool
		diagnose  bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Query the corpus",
		Long: `Embeds the query and returns the nearest chunks within the distance threshold,
closest first. --diagnose prints the candidate set and the threshold that filtered it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			req := domain.SearchRequest{Query: args[0], Limit: limit}
			if cmd.Flags().Changed("threshold") {
				req.DistanceThreshold = &threshold
			}

			if diagnose {
				diag, err := svc.Searcher.Diagnose(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				diag.Embedding = nil
				return printJSON(cmd, diag)
			}

			results, err := svc.Searcher.Search(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				if results == nil {
					results = []domain.SearchResult{}
				}
				return printJSON(cmd, results)
			}
			printResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (0 = server default)")
	cmd.Flags().Float64Var(&threshold, "threshold", domain.DefaultDistanceThreshold, "cosine distance cutoff override")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	cmd.Flags().BoolVar(&diagnose, "diagnose", false, "print retrieval diagnostics")
	return cmd
}

func printResults(cmd *cobra.Command, results []domain.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Results:")
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s #%d (distance %.4f)\n", i+1, r.SourceName, r.ChunkNumber, r.Distance)
		fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", snippet(r.Text, 160))
	}
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func (a *app) purgeCommand() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every chunk in the corpus",
		Long:  `Removes all indexed chunks in bounded batches. Source records are kept and can be re-processed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to purge without --yes")
			}
			svc, release, err := a.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			removed, err := svc.Admin.PurgeAllChunks(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge stopped after %d chunks: %w", removed, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the purge")
	return cmd
}

func (a *app) thresholdCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Show or change the retrieval distance threshold",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the active retrieval settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, release, err := a.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()
			return printJSON(cmd, svc.Admin.RetrievalConfig(cmd.Context()))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [value]",
		Short: "Persist a new distance threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("threshold must be a number: %w", err)
			}
			svc, release, err := a.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			cfg, err := svc.Admin.SetDistanceThreshold(cmd.Context(), value)
			if err != nil {
				return fmt.Errorf("set threshold: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Distance threshold set to %g\n", cfg.DistanceThreshold)
			return nil
		},
	})
	return cmd
}
