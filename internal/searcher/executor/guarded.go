package executor

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
)

// Guarded gives concurrent readers a consistent store while a reload swaps
// in a replacement. The store itself is never mutated through Guarded; a
// reload builds a complete new store first and then replaces the pointer.
type Guarded struct {
	mu    sync.RWMutex
	store *index.Store
}

func NewGuarded(store *index.Store) *Guarded {
	return &Guarded{store: store}
}

// Read calls fn with the current store under a read lock.
func (g *Guarded) Read(fn func(*index.Store)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.store)
}

// Swap installs store and returns the one it replaced.
func (g *Guarded) Swap(store *index.Store) *index.Store {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.store
	g.store = store
	return old
}

// Stats reports on the current store.
func (g *Guarded) Stats() index.Stats {
	var st index.Stats
	g.Read(func(s *index.Store) { st = s.Stats() })
	return st
}
