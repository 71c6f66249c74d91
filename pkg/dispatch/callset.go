package dispatch

import "sync"

// CallSet tracks the tool-call ids already executed during one turn.
// The zero value is an empty set.
type CallSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewCallSet returns an empty set.
func NewCallSet() *CallSet {
	return &CallSet{seen: make(map[string]struct{})}
}

// CheckAndMark records id and reports whether it had already been recorded.
func (s *CallSet) CheckAndMark(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	s.seen[id] = struct{}{}
	return false
}

// Seen reports whether id has been recorded.
func (s *CallSet) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of recorded ids.
func (s *CallSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
