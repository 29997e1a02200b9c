package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

func (a *app) statusCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [source-id]",
		Short: "Show the ingestion status of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			source, err := svc.Sources.GetSourceStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			if asJSON {
				return printJSON(cmd, source)
			}
			printSource(cmd, *source)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, release, err := a.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			sources, err := svc.Sources.ListSources(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			if len(sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources.")
				return nil
			}
			for _, source := range sources {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %-7s  %s\n", source.SourceID, source.Status, source.Level, source.SourceName)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of sources")
	return cmd
}

func (a *app) processCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process [source-id]",
		Short: "Run ingestion for a source in this process",
		Long: `Extracts, chunks and indexes a stored source synchronously, replacing its
previous chunks. Useful to retry a failed source without going through the queue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			result, err := svc.Processor.ProcessByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load source: %w", err)
			}
			if !result.Success {
				return fmt.Errorf("ingestion failed (%s): %s", result.Kind, result.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks for %s\n", result.ChunksWritten, result.SourceID)
			return nil
		},
	}
}

func (a *app) reindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [source-id]",
		Short: "Queue a source for re-ingestion by the workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd, true)
			if err != nil {
				return err
			}
			defer release()
			if svc.Ingestor == nil {
				return errors.New("reindex requires the message queue")
			}

			source, err := svc.Ingestor.Reindex(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s)\n", source.SourceID, source.SourceName)
			return nil
		},
	}
}

func printSource(cmd *cobra.Command, source domain.Source) {
	fmt.Fprintf(cmd.OutOrStdout(), "Source:  %s\n", source.SourceID)
	fmt.Fprintf(cmd.OutOrStdout(), "Name:    %s\n", source.SourceName)
	fmt.Fprintf(cmd.OutOrStdout(), "Level:   %s\n", source.Level)
	if source.Topic != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Topic:   %s\n", source.Topic)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Status:  %s\n", source.Status)
	if source.ProgressNote != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Note:    %s\n", source.ProgressNote)
	}
	if source.ErrorMessage != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Error:   %s\n", source.ErrorMessage)
	}
	if source.ChunksWritten != nil && source.IndexedAt != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Chunks:  %d (indexed %s)\n", *source.ChunksWritten, source.IndexedAt.Format("2006-01-02 15:04:05"))
	}
}
