package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/bloom"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/tokenizer"
)

// Params is the filter geometry shared by every entry of a store.
type Params struct {
	Bits   uint
	Hashes uint
}

// Validate rejects a geometry no filter could be built with.
func (p Params) Validate() error {
	return bloom.Validate(p.Bits, p.Hashes)
}

func (p Params) String() string {
	return fmt.Sprintf("m=%d k=%d", p.Bits, p.Hashes)
}

// Entry binds a document identifier to the filter of its terms. The filter is
// complete once NewEntry returns and is not modified afterwards.
type Entry struct {
	DocID  string
	Filter *bloom.Filter
}

// NewEntry tokenizes content and inserts every term into a fresh filter with
// the given geometry.
func NewEntry(docID string, content []byte, params Params, tok *tokenizer.Tokenizer) (*Entry, error) {
	filter, err := bloom.New(params.Bits, params.Hashes)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		tok = tokenizer.Default()
	}
	for term := range tok.Terms(content) {
		filter.Add(term)
	}
	return &Entry{DocID: docID, Filter: filter}, nil
}

// Contains reports whether every term might be present in the document.
func (e *Entry) Contains(terms []string) bool {
	for _, term := range terms {
		if !e.Filter.Test(term) {
			return false
		}
	}
	return true
}

func (e *Entry) clone() *Entry {
	return &Entry{DocID: e.DocID, Filter: e.Filter.Clone()}
}
