// Package indexer runs the restore, build and dump steps that turn source
// files and earlier dumps into a store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/dumpstore"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/bloom"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/dump"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/loader"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/metrics"
)

// ParamsFromConfig returns the explicit geometry when one is configured and
// otherwise sizes filters for ExpectedTerms at ErrorRate.
func ParamsFromConfig(cfg config.IndexConfig) (index.Params, error) {
	if cfg.Bits < 0 || cfg.Hashes < 0 {
		return index.Params{}, fmt.Errorf("%w: negative filter geometry", apperrors.ErrInvalidConfig)
	}
	if cfg.Bits > 0 || cfg.Hashes > 0 {
		p := index.Params{Bits: uint(cfg.Bits), Hashes: uint(cfg.Hashes)}
		return p, p.Validate()
	}
	if cfg.ExpectedTerms <= 0 || cfg.ErrorRate <= 0 || cfg.ErrorRate >= 1 {
		return index.Params{}, fmt.Errorf("%w: cannot size filters for %d terms at rate %v",
			apperrors.ErrInvalidConfig, cfg.ExpectedTerms, cfg.ErrorRate)
	}
	m, k, err := bloom.EstimateParameters(uint(cfg.ExpectedTerms), cfg.ErrorRate)
	if err != nil {
		return index.Params{}, err
	}
	return index.Params{Bits: m, Hashes: k}, nil
}

// TokenizerFromConfig builds the tokenizer shared by documents and queries.
func TokenizerFromConfig(cfg config.IndexConfig) *tokenizer.Tokenizer {
	return tokenizer.New(tokenizer.Options{
		MinLength: cfg.MinTokenLength,
		StopWords: cfg.StopWords,
		Stem:      cfg.Stem,
	})
}

// PolicyFromConfig maps the overwrite switch to a merge policy.
func PolicyFromConfig(cfg config.IndexConfig) index.MergePolicy {
	if cfg.Overwrite {
		return index.MergeOverwrite
	}
	return index.MergeReject
}

// Report summarises a run.
type Report struct {
	Restored  int           `json:"restored"`
	Indexed   int           `json:"indexed"`
	Replaced  int           `json:"replaced"`
	Skipped   int           `json:"skipped"`
	DumpBytes int           `json:"dump_bytes"`
	Stats     index.Stats   `json:"stats"`
	Duration  time.Duration `json:"duration"`
}

// StoreOpener resolves a dump location.
type StoreOpener func(ctx context.Context, location string) (dumpstore.Store, error)

// Runner executes operations. It holds configuration only; every Run starts
// from an empty store.
type Runner struct {
	cfg      *config.Config
	params   index.Params
	tok      *tokenizer.Tokenizer
	policy   index.MergePolicy
	open     StoreOpener
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithNotifier announces dumps through n.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithStoreOpener replaces dumpstore.Open.
func WithStoreOpener(open StoreOpener) Option {
	return func(r *Runner) { r.open = open }
}

// NewRunner validates cfg and prepares a Runner.
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	params, err := ParamsFromConfig(cfg.Index)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:      cfg,
		params:   params,
		tok:      TokenizerFromConfig(cfg.Index),
		policy:   PolicyFromConfig(cfg.Index),
		notifier: notify.Nop{},
		logger:   slog.Default().With("component", "indexer"),
	}
	r.open = func(ctx context.Context, location string) (dumpstore.Store, error) {
		return dumpstore.Open(ctx, location, cfg)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Params returns the geometry used for stores that are not restored.
func (r *Runner) Params() index.Params { return r.params }

// Tokenizer returns the tokenizer used for documents and queries.
func (r *Runner) Tokenizer() *tokenizer.Tokenizer { return r.tok }

// Run executes ops in order and returns the resulting store. Restores must
// come before any build, so that rebuilt documents replace restored ones.
// The first failing operation aborts the run.
func (r *Runner) Run(ctx context.Context, ops []Operation) (*index.Store, Report, error) {
	start := time.Now()
	var rep Report
	if err := checkOrder(ops); err != nil {
		return nil, rep, err
	}

	var store *index.Store
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		var err error
		switch op := op.(type) {
		case OpRestore:
			store, err = r.restore(ctx, store, op.Location, &rep)
		case OpBuild:
			store, err = r.ensureStore(store)
			if err == nil {
				err = r.build(ctx, store, op.Source, &rep)
			}
		case OpDump:
			store, err = r.ensureStore(store)
			if err == nil {
				err = r.dump(ctx, store, op.Location, &rep)
			}
		default:
			err = fmt.Errorf("%w: unknown operation %T", apperrors.ErrInvalidInput, op)
		}
		if err != nil {
			return nil, rep, fmt.Errorf("%s: %w", op, err)
		}
	}

	store, err := r.ensureStore(store)
	if err != nil {
		return nil, rep, err
	}
	rep.Stats = store.Stats()
	rep.Duration = time.Since(start)
	if r.metrics != nil {
		r.metrics.StoreDocuments.Set(float64(rep.Stats.Documents))
		r.metrics.StoreFill.Set(rep.Stats.AvgFill)
	}
	r.logger.Info("run complete",
		"operations", len(ops),
		"documents", rep.Stats.Documents,
		"restored", rep.Restored,
		"indexed", rep.Indexed,
		"replaced", rep.Replaced,
		"skipped", rep.Skipped,
		"params", store.Params().String(),
		"duration", rep.Duration,
	)
	return store, rep, nil
}

func checkOrder(ops []Operation) error {
	built := false
	for _, op := range ops {
		switch op.Kind() {
		case KindBuild:
			built = true
		case KindRestore:
			if built {
				return fmt.Errorf("%w: %s after a build would discard rebuilt documents", apperrors.ErrInvalidInput, op)
			}
		}
	}
	return nil
}

func (r *Runner) ensureStore(s *index.Store) (*index.Store, error) {
	if s != nil {
		return s, nil
	}
	return index.NewStore(r.params, index.WithTokenizer(r.tok))
}

// Load reads and decodes the dump at location. The result is a new store;
// nothing the caller holds is touched on failure.
func (r *Runner) Load(ctx context.Context, location string) (*index.Store, error) {
	ds, err := r.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	data, err := ds.Load(ctx)
	r.observeDump("load", len(data), err)
	if err != nil {
		return nil, err
	}
	store, err := dump.Decode(data, dump.WithTokenizer(r.tok))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ds.Location(), err)
	}
	if store.Params() != r.params {
		r.logger.Debug("restored dump overrides configured geometry",
			"location", ds.Location(), "dump", store.Params().String(), "configured", r.params.String())
	}
	return store, nil
}

func (r *Runner) restore(ctx context.Context, current *index.Store, location string, rep *Report) (*index.Store, error) {
	restored, err := r.Load(ctx, location)
	if err != nil {
		return nil, err
	}
	rep.Restored += restored.Len()
	r.logger.Info("dump restored", "location", dumpstore.Redact(location), "documents", restored.Len(), "params", restored.Params().String())
	if current == nil {
		return restored, nil
	}
	merged, err := current.Merge(restored, r.policy)
	if err != nil {
		return nil, fmt.Errorf("merging %s: %w", dumpstore.Redact(location), err)
	}
	return merged, nil
}

func (r *Runner) build(ctx context.Context, store *index.Store, source string, rep *Report) error {
	start := time.Now()
	opts := loader.OptionsFromConfig(r.cfg.Loader)
	skipped := make(chan loader.SkipReason, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for reason := range skipped {
			rep.Skipped++
			if r.metrics != nil {
				r.metrics.FilesSkippedTotal.WithLabelValues(string(reason)).Inc()
			}
		}
	}()
	opts.OnSkip = func(_ string, reason loader.SkipReason) { skipped <- reason }

	docs, err := loader.New(opts).Walk(ctx, source)
	close(skipped)
	<-done
	if err != nil {
		return err
	}

	for _, doc := range docs {
		_, existed := store.Get(doc.ID)
		if err := store.AddDocument(doc.ID, doc.Content); err != nil {
			return err
		}
		rep.Indexed++
		if existed {
			rep.Replaced++
			r.logger.Debug("document replaced", "doc_id", doc.ID)
		}
	}
	if r.metrics != nil {
		r.metrics.DocsIndexedTotal.Add(float64(len(docs)))
		r.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	}
	r.logger.Info("source indexed", "source", source, "documents", len(docs), "skipped", rep.Skipped, "elapsed", time.Since(start))
	return nil
}

func (r *Runner) dump(ctx context.Context, store *index.Store, location string, rep *Report) error {
	data, err := dump.Encode(store, dump.WithCompression(r.cfg.Dump.Compress))
	if err != nil {
		return err
	}
	ds, err := r.open(ctx, location)
	if err != nil {
		return err
	}
	defer ds.Close()

	err = ds.Save(ctx, data)
	r.observeDump("save", len(data), err)
	if err != nil {
		return err
	}
	rep.DumpBytes = len(data)
	r.logger.Info("dump written", "location", ds.Location(), "documents", store.Len(), "bytes", len(data))

	params := store.Params()
	ev := notify.NewDumpWritten(dumpstore.Redact(location), store.Len(), params.Bits, params.Hashes, len(data))
	if err := r.notifier.DumpWritten(ctx, ev); err != nil {
		// the dump itself is durable; a missed announcement only delays followers
		r.logger.Warn("dump announcement failed", "location", ev.Location, "error", err)
	}
	return nil
}

func (r *Runner) observeDump(op string, size int, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, apperrors.ErrDumpNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	default:
		r.metrics.DumpBytes.WithLabelValues(op).Set(float64(size))
	}
	r.metrics.DumpOperationsTotal.WithLabelValues(op, status).Inc()
}
