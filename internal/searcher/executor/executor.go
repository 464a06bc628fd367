// Package executor answers membership queries against a store.
package executor

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/metrics"
)

// SearchResult lists candidate documents in store order. Candidates may
// include false positives; documents containing every term are never missed.
type SearchResult struct {
	Query     string   `json:"query"`
	Terms     []string `json:"terms"`
	TotalHits int      `json:"total_hits"`
	Results   []string `json:"results"`
}

type Executor struct {
	store   *Guarded
	metrics *metrics.Metrics
}

// New returns an Executor reading from store. m may be nil.
func New(store *Guarded, m *metrics.Metrics) *Executor {
	return &Executor{store: store, metrics: m}
}

// Execute runs plan. A limit of zero or less returns every candidate;
// TotalHits always counts all of them.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	start := time.Now()
	result := &SearchResult{
		Query:   plan.RawQuery,
		Terms:   plan.Terms,
		Results: []string{},
	}
	if err := ctx.Err(); err != nil {
		e.observe("error", 0, start)
		return nil, err
	}
	if plan.Empty() {
		e.observe("zero_result", 0, start)
		return result, nil
	}

	var hits []string
	e.store.Read(func(s *index.Store) {
		hits = s.Query(plan.Terms)
	})
	result.TotalHits = len(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	if hits != nil {
		result.Results = hits
	}

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	e.observe(resultType, result.TotalHits, start)
	logger.FromContext(ctx).Debug("query executed",
		"component", "query-executor",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", result.TotalHits,
		"returned", len(result.Results),
	)
	return result, nil
}

func (e *Executor) observe(resultType string, hits int, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.Observe(time.Since(start).Seconds())
	if resultType != "error" {
		e.metrics.SearchResultsCount.Observe(float64(hits))
	}
}
