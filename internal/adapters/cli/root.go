package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

// Services are the use cases the admin commands drive. Ingestor is nil when
// the loader was asked for a queue-less wiring.
type Services struct {
	Processor ports.DocumentProcessor
	Ingestor  ports.DocumentIngestor
	Sources   ports.SourceReader
	Searcher  ports.CorpusSearcher
	Admin     ports.CorpusAdmin
}

// ServiceLoader wires Services on demand; the returned func releases them.
type ServiceLoader func(ctx context.Context, withQueue bool) (*Services, func(), error)

type app struct {
	load ServiceLoader
}

func NewRootCommand(load ServiceLoader) *cobra.Command {
	a := &app{load: load}

	root := &cobra.Command{
		Use:           "corpusctl",
		Short:         "Operate the grounding corpus",
		Long:          `Inspect sources, run ingestion, query the corpus and tune retrieval from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.statusCommand(),
		a.listCommand(),
		a.processCommand(),
		a.reindexCommand(),
		a.searchCommand(),
		a.purgeCommand(),
		a.thresholdCommand(),
	)
	return root
}

func (a *app) services(cmd *cobra.Command, withQueue bool) (*Services, func(), error) {
	if a.load == nil {
		return nil, nil, errors.New("services not configured")
	}
	svc, release, err := a.load(cmd.Context(), withQueue)
	if err != nil {
		return nil, nil, fmt.Errorf("connect services: %w", err)
	}
	if release == nil {
		release = func() {}
	}
	return svc, release, nil
}

func printJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
