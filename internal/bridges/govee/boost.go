package govee

import (
	"slices"
	"sync"
)

// BoostSet holds the entities due for an expedited refresh, typically
// right after a command that returned no state.
type BoostSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewBoostSet creates an empty set.
func NewBoostSet() *BoostSet {
	return &BoostSet{ids: make(map[string]struct{})}
}

// Add marks id as boosted.
func (s *BoostSet) Add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

// Remove clears id. Removing an absent id is a no-op.
func (s *BoostSet) Remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Contains reports whether id is boosted.
func (s *BoostSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of boosted entities.
func (s *BoostSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Drain returns the boosted ids in sorted order and empties the set in
// the same critical section. Ids added afterwards belong to the next drain.
func (s *BoostSet) Drain() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	clear(s.ids)
	s.mu.Unlock()

	slices.Sort(ids)
	return ids
}
