package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/logger"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

// Reloader rebuilds the served store from its dumps and swaps it in.
type Reloader interface {
	Reload(ctx context.Context) (index.Stats, error)
}

// Config wires the optional collaborators. Cache and Reloader may be nil.
type Config struct {
	Tokenizer    *tokenizer.Tokenizer
	Cache        *cache.QueryCache
	Reloader     Reloader
	Stats        func() index.Stats
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	executor SearchExecutor
	cfg      Config
	logger   *slog.Logger
}

func New(exec SearchExecutor, cfg Config) *Handler {
	return &Handler{
		executor: exec,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("POST /reload", h.Reload)
	mux.HandleFunc("GET /stats", h.Stats)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.cfg.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if h.cfg.MaxResults > 0 && (limit <= 0 || limit > h.cfg.MaxResults) {
		limit = h.cfg.MaxResults
	}

	plan := parser.Parse(query, h.cfg.Tokenizer)
	if plan.Empty() {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:   query,
			Terms:   plan.Terms,
			Results: []string{},
		})
		return
	}

	var result *executor.SearchResult
	var err error
	cacheHit := false
	if h.cfg.Cache != nil {
		result, cacheHit, err = h.cfg.Cache.GetOrCompute(ctx, plan, limit, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeErr(w, err)
		return
	}

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Reload swaps in a freshly restored store and invalidates the cache.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Reloader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no dump locations to reload from")
		return
	}
	stats, err := h.cfg.Reloader.Reload(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("reload failed", "error", err)
		h.writeErr(w, err)
		return
	}
	if h.cfg.Cache != nil {
		h.cfg.Cache.Invalidate()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "stats": stats})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if h.cfg.Stats != nil {
		body["store"] = h.cfg.Stats()
	}
	if h.cfg.Cache != nil {
		hits, misses := h.cfg.Cache.Stats()
		var hitRate float64
		if total := hits + misses; total > 0 {
			hitRate = float64(hits) / float64(total) * 100
		}
		body["cache"] = map[string]any{
			"hits":     hits,
			"misses":   misses,
			"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		}
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// 499 Client Closed Request
		status = 499
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	h.writeError(w, status, message)
}
