package record

import "sync"

// TimeSet is a mutex-guarded set of time keys. One TimeSet is shared by every
// extraction call in a batch, so additions from concurrent workers must be
// serialized to keep the one-record-per-key invariant.
type TimeSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewTimeSet creates an empty TimeSet.
func NewTimeSet() *TimeSet {
	return &TimeSet{keys: make(map[string]struct{})}
}

// Add inserts a key.
func (s *TimeSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
}

// Contains reports whether a key is present.
func (s *TimeSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// AddIfAbsent inserts the key and reports true, or reports false if it was
// already present. The check and the insert are one critical section so two
// workers can never both claim the same key.
func (s *TimeSet) AddIfAbsent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Len returns the number of keys.
func (s *TimeSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
