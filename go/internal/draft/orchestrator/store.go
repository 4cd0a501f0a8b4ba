package orchestrator

import (
	"sort"
	"sync"

	"github.com/mcdev12/fearless/go/internal/draft/engine"
)

// draftEntry holds one draft. mu serializes every read-modify-write on it.
type draftEntry struct {
	mu    sync.Mutex
	state engine.DraftState
}

// Store is the in-memory keyed store of draft snapshots.
type Store struct {
	mu     sync.RWMutex
	drafts map[string]*draftEntry
}

func NewStore() *Store {
	return &Store{drafts: make(map[string]*draftEntry)}
}

// Put inserts or replaces the snapshot stored under state.DraftID.
func (s *Store) Put(state engine.DraftState) {
	s.mu.Lock()
	e, ok := s.drafts[state.DraftID]
	if !ok {
		s.drafts[state.DraftID] = &draftEntry{state: state.Clone()}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.state = state.Clone()
	e.mu.Unlock()
}

// Get returns a copy of the stored snapshot.
func (s *Store) Get(draftID string) (engine.DraftState, bool) {
	e, ok := s.entry(draftID)
	if !ok {
		return engine.DraftState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), true
}

// IDs returns every stored draft id in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.drafts))
	for id := range s.drafts {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// lock returns the entry for draftID with its mutex held. The caller must
// unlock it.
func (s *Store) lock(draftID string) (*draftEntry, bool) {
	e, ok := s.entry(draftID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	return e, true
}

func (s *Store) entry(draftID string) (*draftEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.drafts[draftID]
	return e, ok
}
