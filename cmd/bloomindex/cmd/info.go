package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/dumpstore"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/dump"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
)

// dumpInfo is the output of the info command.
type dumpInfo struct {
	Location string       `json:"location"`
	Size     int          `json:"size"`
	Header   dump.Header  `json:"header"`
	Stats    *index.Stats `json:"stats,omitempty"`
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "info <dump>",
		Short: "Describe a dump",
		Long: `Info prints the header of a dump: format version, filter geometry and
document count. With --verify the whole dump is decoded and checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, opts, args[0], verify)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Decode the whole dump and report filter saturation")

	return cmd
}

func runInfo(cmd *cobra.Command, opts *rootOptions, location string, verify bool) (err error) {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()

	ds, err := dumpstore.Open(cmd.Context(), location, a.cfg)
	if err != nil {
		return err
	}
	defer ds.Close()

	data, err := ds.Load(cmd.Context())
	if err != nil {
		return err
	}
	header, err := dump.Info(data)
	if err != nil {
		return err
	}
	info := dumpInfo{Location: ds.Location(), Size: len(data), Header: header}
	if verify {
		store, err := dump.Decode(data)
		if err != nil {
			return err
		}
		st := store.Stats()
		info.Stats = &st
	}

	return render(cmd.OutOrStdout(), opts.format, info, func(w io.Writer) {
		fmt.Fprintf(w, "location:   %s\n", info.Location)
		fmt.Fprintf(w, "size:       %d bytes\n", info.Size)
		fmt.Fprintf(w, "version:    %d\n", header.Version)
		fmt.Fprintf(w, "bits (m):   %d\n", header.Bits)
		fmt.Fprintf(w, "hashes (k): %d\n", header.Hashes)
		fmt.Fprintf(w, "documents:  %d\n", header.Documents)
		fmt.Fprintf(w, "compressed: %t\n", header.Compressed)
		if info.Stats != nil {
			fmt.Fprintf(w, "avg fill:   %.1f%%\n", info.Stats.AvgFill*100)
			fmt.Fprintf(w, "max fill:   %.1f%%\n", info.Stats.MaxFill*100)
		}
	})
}
