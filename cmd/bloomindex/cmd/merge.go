package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/dumpstore"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer"
)

func newMergeCmd(opts *rootOptions) *cobra.Command {
	var into string

	cmd := &cobra.Command{
		Use:   "merge --into <dump> <dump>...",
		Short: "Combine dumps into one",
		Long: `Merge restores each dump in order and writes the combined index to --into.
All dumps must share the same filter geometry. A document id present in
more than one dump is an error unless --overwrite is given, in which case
the later dump wins.

Examples:
  bloomindex merge --into all.blm docs.blm notes.blm
  bloomindex merge --overwrite --into all.blm all.blm fresh.blm`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, opts, into, args)
		},
	}

	cmd.Flags().StringVar(&into, "into", "", "Dump location to write the merged index to")
	_ = cmd.MarkFlagRequired("into")

	return cmd
}

func runMerge(cmd *cobra.Command, opts *rootOptions, into string, dumps []string) (err error) {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	restore := append(append([]string{}, opts.restore...), dumps...)
	_, rep, err := a.runner.Run(cmd.Context(), indexer.Plan(indexer.RunConfig{
		Restore: restore,
		Source:  opts.source,
		Dump:    into,
	}))
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), opts.format, rep, func(w io.Writer) {
		fmt.Fprintf(w, "merged %d dumps: %d documents, m=%d k=%d\n",
			len(restore), rep.Stats.Documents, rep.Stats.Bits, rep.Stats.Hashes)
		fmt.Fprintf(w, "dump: %s (%d bytes)\n", dumpstore.Redact(into), rep.DumpBytes)
	})
}
