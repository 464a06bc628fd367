package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <keywords...>",
		Short: "List documents that may contain every keyword",
		Long: `Search restores the given dumps and indexes --source, then prints the id
of every document whose filter may contain all keywords, in index order.

Examples:
  bloomindex search -r notes.blm bloom filter
  bloomindex search -s ./notes "hash AND function" --format json
  bloomindex search -r redis://localhost:6379/0/notes --limit 5 cache`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, strings.Join(args, " "), limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results, 0 for all")

	return cmd
}

func runSearch(cmd *cobra.Command, opts *rootOptions, query string, limit int) (err error) {
	if len(opts.restore) == 0 && opts.source == "" {
		return fmt.Errorf("%w: search needs --restore or --source", apperrors.ErrInvalidInput)
	}
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	ctx := cmd.Context()
	store, _, err := a.runner.Run(ctx, indexer.Plan(indexer.RunConfig{
		Restore: opts.restore,
		Source:  opts.source,
		Dump:    opts.dump,
	}))
	if err != nil {
		return err
	}

	exec := executor.New(executor.NewGuarded(store), a.metrics)
	result, err := exec.Execute(ctx, parser.Parse(query, a.runner.Tokenizer()), limit)
	if err != nil {
		return err
	}
	a.logger.Info("search completed", "query", query, "candidates", result.TotalHits)
	return render(cmd.OutOrStdout(), opts.format, result, func(w io.Writer) {
		for _, id := range result.Results {
			fmt.Fprintln(w, id)
		}
	})
}
