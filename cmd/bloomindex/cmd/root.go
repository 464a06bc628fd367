// Package cmd provides the CLI commands for bloomindex.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/dumpstore"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/metrics"
)

// rootOptions holds the flags shared by every command. It is created per
// NewRootCmd call, so commands never share state.
type rootOptions struct {
	configPath    string
	source        string
	restore       []string
	dump          string
	bits          int
	hashes        int
	errorRate     float64
	expectedTerms int
	compress      bool
	overwrite     bool
	metricsFile   string
	logLevel      string
	format        string
}

// NewRootCmd creates the root command for the bloomindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "bloomindex",
		Short: "Manage a bloom filter index of text files",
		Long: `bloomindex keeps one bloom filter per document and answers keyword
queries with every document that may contain all keywords. Answers can
include false positives but never miss a matching document.

Without a subcommand it restores, indexes and dumps, in that order:

  bloomindex -s ./notes -d notes.blm
  bloomindex -r notes.blm -s ./more-notes -d notes.blm
  bloomindex search -r notes.blm bloom filter`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.source, "source", "s", "", "Path to the file or directory to index")
	pf.StringArrayVarP(&opts.restore, "restore", "r", nil, "Dump location to restore before indexing (repeatable)")
	pf.StringVarP(&opts.dump, "dump", "d", "", "Dump location to write the index to")
	pf.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	pf.IntVar(&opts.bits, "bits", 0, "Filter size in bits (m); requires --hashes")
	pf.IntVar(&opts.hashes, "hashes", 0, "Hash functions per filter (k); requires --bits")
	pf.Float64Var(&opts.errorRate, "error-rate", 0, "Target false positive rate used to size filters")
	pf.IntVar(&opts.expectedTerms, "expected-terms", 0, "Distinct terms per document used to size filters")
	pf.BoolVar(&opts.compress, "compress", false, "Compress dumps with zstd")
	pf.BoolVar(&opts.overwrite, "overwrite", false, "Let later dumps replace documents with the same id instead of failing")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newMergeCmd(opts))
	cmd.AddCommand(newInfoCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig reads the config file and environment, then applies the flags
// the user actually set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	if opts.format != "text" && opts.format != "json" {
		return nil, fmt.Errorf("%w: unknown output format %q", apperrors.ErrInvalidInput, opts.format)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	sizing := flags.Changed("error-rate") || flags.Changed("expected-terms")
	if flags.Changed("bits") || flags.Changed("hashes") {
		cfg.Index.Bits = opts.bits
		cfg.Index.Hashes = opts.hashes
	} else if sizing {
		cfg.Index.Bits, cfg.Index.Hashes = 0, 0
	}
	if flags.Changed("error-rate") {
		cfg.Index.ErrorRate = opts.errorRate
	}
	if flags.Changed("expected-terms") {
		cfg.Index.ExpectedTerms = opts.expectedTerms
	}
	if flags.Changed("compress") {
		cfg.Dump.Compress = opts.compress
	}
	if flags.Changed("overwrite") {
		cfg.Index.Overwrite = opts.overwrite
	}
	if opts.metricsFile != "" {
		cfg.Metrics.TextFile = opts.metricsFile
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is what a command needs once flags are resolved.
type app struct {
	cfg         *config.Config
	metrics     *metrics.Metrics
	notifier    notify.Notifier
	runner      *indexer.Runner
	logger      *slog.Logger
	stopMetrics func(context.Context) error
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return newAppFromConfig(cfg)
}

func newAppFromConfig(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		notifier: notify.New(cfg.Kafka),
		logger:   logger.WithComponent("cli"),
	}
	runnerOpts := []indexer.Option{indexer.WithNotifier(a.notifier)}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		runnerOpts = append(runnerOpts, indexer.WithMetrics(a.metrics))
	}
	runner, err := indexer.NewRunner(cfg, runnerOpts...)
	if err != nil {
		a.notifier.Close()
		return nil, err
	}
	a.runner = runner
	return a, nil
}

// serveMetrics exposes /metrics on the configured port while a long build
// runs.
func (a *app) serveMetrics() {
	if a.metrics != nil && a.cfg.Metrics.Port > 0 {
		a.stopMetrics = a.metrics.StartServer(a.cfg.Metrics.Port)
	}
}

// close flushes metrics and releases the notifier.
func (a *app) close() error {
	var errs []error
	if a.metrics != nil && a.cfg.Metrics.TextFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.TextFile); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if a.stopMetrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.stopMetrics(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping metrics server: %w", err))
		}
	}
	if err := a.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing notifier: %w", err))
	}
	return errors.Join(errs...)
}

func runIndex(cmd *cobra.Command, opts *rootOptions) (err error) {
	ops := indexer.Plan(indexer.RunConfig{
		Restore: opts.restore,
		Source:  opts.source,
		Dump:    opts.dump,
	})
	if len(ops) == 0 {
		return fmt.Errorf("%w: nothing to do, give --source, --restore or --dump", apperrors.ErrInvalidInput)
	}

	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()
	a.serveMetrics()

	_, rep, err := a.runner.Run(cmd.Context(), ops)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), opts.format, rep, func(w io.Writer) {
		fmt.Fprintf(w, "restored %d, indexed %d (%d replaced), skipped %d\n",
			rep.Restored, rep.Indexed, rep.Replaced, rep.Skipped)
		fmt.Fprintf(w, "store: %d documents, m=%d k=%d, avg fill %.1f%%\n",
			rep.Stats.Documents, rep.Stats.Bits, rep.Stats.Hashes, rep.Stats.AvgFill*100)
		if opts.dump != "" {
			fmt.Fprintf(w, "dump: %s (%d bytes)\n", dumpstore.Redact(opts.dump), rep.DumpBytes)
		}
	})
}

// render writes v as indented JSON, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		text(w)
		return nil
	}
}
