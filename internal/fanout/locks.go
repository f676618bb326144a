package fanout

import "sync"

// scopeLocks hands out one mutex per conversation scope so that
// authoring and routing of messages in the same scope are serialized.
// Entries are refcounted and removed when idle.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

type scopeLock struct {
	mu   sync.Mutex
	refs int
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*scopeLock)}
}

func (s *scopeLocks) lock(key string) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &scopeLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()
	l.mu.Lock()
}

func (s *scopeLocks) unlock(key string) {
	s.mu.Lock()
	l := s.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
	l.mu.Unlock()
}
