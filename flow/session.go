package flow

import "sync"

// Sessions holds ephemeral per-user UI state. Nothing here is authoritative:
// losing it (for example on restart) only costs continuity, and every entry
// can be rebuilt from storage by presenting the user's next question again.
type Sessions struct {
	mu      sync.Mutex
	pending map[int64]int // user -> open-text question awaiting a typed answer
}

// NewSessions returns empty session state.
func NewSessions() *Sessions {
	return &Sessions{pending: make(map[int64]int)}
}

// SetPending binds the user's next text message to question qIndex.
func (s *Sessions) SetPending(userID int64, qIndex int) {
	s.mu.Lock()
	s.pending[userID] = qIndex
	s.mu.Unlock()
}

// TakePending returns and clears the pending open-text question.
func (s *Sessions) TakePending(userID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.pending[userID]
	delete(s.pending, userID)
	return q, ok
}

// ClearPending drops any pending open-text question.
func (s *Sessions) ClearPending(userID int64) {
	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()
}

// Pending reports the pending open-text question without consuming it.
func (s *Sessions) Pending(userID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.pending[userID]
	return q, ok
}

// userLocks serializes actions of one user. Entries are reference counted so
// idle users do not accumulate.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[int64]*userLock)}
}

func (l *userLocks) lock(userID int64) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}
