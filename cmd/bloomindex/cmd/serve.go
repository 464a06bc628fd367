package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/dumpstore"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/handler"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/redis"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	var useCache bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer searches over HTTP",
		Long: `Serve builds the index from --restore and --source once and answers
GET /search?q=<keywords>&limit=<n>. POST /reload rebuilds it from the same
inputs and swaps it in without interrupting searches. When Kafka is enabled
the server also reloads whenever a dump it restores from is rewritten.

Endpoints: /search, /reload, /stats, /healthz, /readyz, /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, port, useCache)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config)")
	cmd.Flags().BoolVar(&useCache, "cache", false, "Cache results in Redis")

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, port int, useCache bool) (err error) {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close()) }()
	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port = port
	}
	if cmd.Flags().Changed("cache") {
		a.cfg.Server.Cache = useCache
	}

	ctx := cmd.Context()
	srv, err := newServer(ctx, a, indexer.RunConfig{Restore: opts.restore, Source: opts.source})
	if err != nil {
		return err
	}
	defer srv.close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      srv.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("search server listening", "addr", httpServer.Addr, "documents", srv.guarded.Stats().Documents)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	for _, location := range opts.restore {
		g.Go(func() error {
			return notify.Follow(gctx, a.cfg.Kafka, location, srv.onDumpWritten)
		})
	}

	err = g.Wait()
	a.logger.Info("search server stopped")
	return err
}

// server holds the live store and everything the HTTP routes share.
type server struct {
	app     *app
	rc      indexer.RunConfig
	guarded *executor.Guarded
	cache   *cache.QueryCache
	redis   *pkgredis.Client
	stores  []dumpstore.Store
	handler http.Handler

	reloadMu sync.Mutex
}

func newServer(ctx context.Context, a *app, rc indexer.RunConfig) (*server, error) {
	if len(rc.Restore) == 0 && rc.Source == "" {
		return nil, fmt.Errorf("%w: serve needs --restore or --source", apperrors.ErrInvalidInput)
	}
	rc.Dump = ""
	s := &server{app: a, rc: rc}

	store, _, err := a.runner.Run(ctx, indexer.Plan(rc))
	if err != nil {
		return nil, err
	}
	s.guarded = executor.NewGuarded(store)

	checker := health.NewChecker()
	checker.Register("store", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", s.guarded.Stats().Documents),
		}
	})
	for _, location := range rc.Restore {
		ds, err := dumpstore.Open(ctx, location, a.cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		s.stores = append(s.stores, ds)
		checker.Register("dump:"+ds.Location(), health.PingCheck(ds))
	}
	if a.cfg.Server.Cache {
		client, err := pkgredis.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			a.logger.Warn("redis unavailable, search caching disabled", "addr", a.cfg.Redis.Addr, "error", err)
		} else {
			s.redis = client
			s.cache = cache.New(client, a.cfg.Redis.CacheTTL)
			checker.Register("cache", health.Degrade(health.PingCheck(client)))
			a.logger.Info("search cache enabled", "addr", a.cfg.Redis.Addr, "ttl", a.cfg.Redis.CacheTTL)
		}
	}

	hcfg := handler.Config{
		Tokenizer:    a.runner.Tokenizer(),
		Cache:        s.cache,
		Stats:        s.guarded.Stats,
		DefaultLimit: a.cfg.Server.DefaultLimit,
		MaxResults:   a.cfg.Server.MaxResults,
	}
	if len(rc.Restore) > 0 {
		hcfg.Reloader = s
	}
	h := handler.New(executor.New(s.guarded, a.metrics), hcfg)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /healthz", checker.LiveHandler())
	mux.HandleFunc("GET /readyz", checker.ReadyHandler())

	var chain http.Handler = mux
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
		chain = middleware.Metrics(a.metrics)(chain)
	}
	chain = middleware.Timeout(a.cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)
	s.handler = chain
	return s, nil
}

// Reload rebuilds the store from the same inputs and swaps it in. Searches
// keep using the previous store until the new one is complete; a failed
// reload leaves it in place.
func (s *server) Reload(ctx context.Context) (index.Stats, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	store, rep, err := s.app.runner.Run(ctx, indexer.Plan(s.rc))
	if err != nil {
		return index.Stats{}, err
	}
	old := s.guarded.Swap(store)
	s.app.logger.Info("store reloaded",
		"documents", rep.Stats.Documents,
		"previous_documents", old.Len(),
		"duration", rep.Duration,
	)
	return rep.Stats, nil
}

func (s *server) onDumpWritten(ctx context.Context, ev notify.DumpWritten) error {
	if _, err := s.Reload(ctx); err != nil {
		return fmt.Errorf("reloading after %s: %w", ev.EventID, err)
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}
	return nil
}

func (s *server) close() {
	for _, ds := range s.stores {
		if err := ds.Close(); err != nil {
			s.app.logger.Warn("closing dump store", "location", ds.Location(), "error", err)
		}
	}
	if s.redis != nil {
		s.redis.Close()
	}
}
