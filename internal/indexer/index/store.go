package index

import (
	"fmt"
	"iter"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

// MergePolicy decides what Merge does when both stores hold the same
// document identifier.
type MergePolicy int

const (
	// MergeReject fails the merge with ErrDuplicateDocument.
	MergeReject MergePolicy = iota
	// MergeOverwrite keeps the incoming store's entry.
	MergeOverwrite
)

func (p MergePolicy) String() string {
	switch p {
	case MergeReject:
		return "reject"
	case MergeOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Store maps document identifiers to their entries, in insertion order.
//
// A Store has no internal locking. It supports one writer at a time; readers
// (Query, Entries, encoding) may run concurrently with each other but must be
// excluded from writers by the caller.
type Store struct {
	params  Params
	tok     *tokenizer.Tokenizer
	order   []string
	entries map[string]*Entry
}

// Option configures a Store.
type Option func(*Store)

// WithTokenizer sets the tokenizer used by AddDocument.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(s *Store) {
		if tok != nil {
			s.tok = tok
		}
	}
}

// NewStore creates an empty store whose entries all use params.
func NewStore(params Params, opts ...Option) (*Store, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		params:  params,
		tok:     tokenizer.Default(),
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Params returns the filter geometry of the store.
func (s *Store) Params() Params { return s.params }

// Tokenizer returns the tokenizer used for documents and queries.
func (s *Store) Tokenizer() *tokenizer.Tokenizer { return s.tok }

// Len returns the number of documents.
func (s *Store) Len() int { return len(s.order) }

// AddDocument indexes content under docID. An existing entry for docID is
// replaced, not merged, and keeps its position in the store.
func (s *Store) AddDocument(docID string, content []byte) error {
	entry, err := NewEntry(docID, content, s.params, s.tok)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", docID, err)
	}
	s.put(entry)
	return nil
}

// Insert adds a pre-built entry, replacing any entry with the same DocID. The
// entry's filter must match the store geometry.
func (s *Store) Insert(entry *Entry) error {
	if entry == nil || entry.Filter == nil {
		return fmt.Errorf("%w: nil entry", apperrors.ErrInvalidInput)
	}
	if entry.Filter.M() != s.params.Bits || entry.Filter.K() != s.params.Hashes {
		return fmt.Errorf("%w: entry %s has m=%d k=%d, store has %s",
			apperrors.ErrIncompatibleFilter, entry.DocID, entry.Filter.M(), entry.Filter.K(), s.params)
	}
	s.put(entry)
	return nil
}

// RemoveDocument deletes docID and reports whether it was present.
func (s *Store) RemoveDocument(docID string) bool {
	if _, ok := s.entries[docID]; !ok {
		return false
	}
	delete(s.entries, docID)
	if i := slices.Index(s.order, docID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

// Get returns the entry for docID.
func (s *Store) Get(docID string) (*Entry, bool) {
	e, ok := s.entries[docID]
	return e, ok
}

// DocIDs returns the document identifiers in insertion order.
func (s *Store) DocIDs() []string {
	return slices.Clone(s.order)
}

// Entries yields the entries in insertion order.
func (s *Store) Entries() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for _, id := range s.order {
			if !yield(s.entries[id]) {
				return
			}
		}
	}
}

// Query returns, in insertion order, every document whose filter might
// contain all of terms. An empty query matches nothing.
func (s *Store) Query(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	var result []string
	for _, id := range s.order {
		if s.entries[id].Contains(terms) {
			result = append(result, id)
		}
	}
	return result
}

// Merge returns a new store holding the entries of s followed by the entries
// of other that s does not have. Neither input is modified. Identifiers
// present in both are resolved by policy; filters of different documents are
// never combined.
func (s *Store) Merge(other *Store, policy MergePolicy) (*Store, error) {
	if other == nil {
		return nil, fmt.Errorf("%w: nil store", apperrors.ErrInvalidInput)
	}
	if s.params != other.params {
		return nil, fmt.Errorf("%w: merging %s into %s", apperrors.ErrIncompatibleFilter, other.params, s.params)
	}
	if policy != MergeOverwrite {
		for _, id := range other.order {
			if _, dup := s.entries[id]; dup {
				return nil, fmt.Errorf("%w: %s", apperrors.ErrDuplicateDocument, id)
			}
		}
	}
	merged := &Store{
		params:  s.params,
		tok:     s.tok,
		order:   make([]string, 0, len(s.order)+len(other.order)),
		entries: make(map[string]*Entry, len(s.order)+len(other.order)),
	}
	for e := range s.Entries() {
		merged.put(e.clone())
	}
	for e := range other.Entries() {
		merged.put(e.clone())
	}
	return merged, nil
}

// Equal reports whether both stores have the same geometry, the same
// documents in the same order, and identical filters.
func (s *Store) Equal(other *Store) bool {
	if other == nil || s.params != other.params || !slices.Equal(s.order, other.order) {
		return false
	}
	for id, e := range s.entries {
		o, ok := other.entries[id]
		if !ok || !e.Filter.Equal(o.Filter) {
			return false
		}
	}
	return true
}

// Stats summarises the store for reporting.
type Stats struct {
	Documents int     `json:"documents"`
	Bits      uint    `json:"bits"`
	Hashes    uint    `json:"hashes"`
	AvgFill   float64 `json:"avg_fill"`
	MaxFill   float64 `json:"max_fill"`
}

// Stats returns document count and bit saturation across entries.
func (s *Store) Stats() Stats {
	st := Stats{Documents: len(s.order), Bits: s.params.Bits, Hashes: s.params.Hashes}
	if len(s.order) == 0 {
		return st
	}
	var total float64
	for e := range s.Entries() {
		fill := float64(e.Filter.Count()) / float64(s.params.Bits)
		total += fill
		if fill > st.MaxFill {
			st.MaxFill = fill
		}
	}
	st.AvgFill = total / float64(len(s.order))
	return st
}

func (s *Store) put(entry *Entry) {
	if _, exists := s.entries[entry.DocID]; !exists {
		s.order = append(s.order, entry.DocID)
	}
	s.entries[entry.DocID] = entry
}
