// Package parser turns a keyword string into the terms of a membership
// query.
package parser

import (
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/tokenizer"
)

// QueryPlan is a conjunctive query: a document matches when it might contain
// every term.
type QueryPlan struct {
	Terms    []string
	RawQuery string
}

// Empty reports whether the plan has no terms.
func (p *QueryPlan) Empty() bool { return len(p.Terms) == 0 }

// Parse tokenizes query with tok, the tokenizer the documents were indexed
// with, so "(Word1) word2, WORD3?" yields word1 word2 word3. Repeated terms
// are kept once. The uppercase keyword AND is accepted and dropped, since
// every query is a conjunction anyway. A nil tok means the default
// tokenizer.
func Parse(query string, tok *tokenizer.Tokenizer) *QueryPlan {
	if tok == nil {
		tok = tokenizer.Default()
	}
	plan := &QueryPlan{
		Terms:    make([]string, 0),
		RawQuery: query,
	}
	for _, word := range strings.Fields(query) {
		if word == "AND" || word == "&&" {
			continue
		}
		for term := range tok.Terms([]byte(word)) {
			if !slices.Contains(plan.Terms, term) {
				plan.Terms = append(plan.Terms, term)
			}
		}
	}
	return plan
}
