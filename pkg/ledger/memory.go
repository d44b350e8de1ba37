package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps ledgers in process memory.
// Each user gets a dedicated mutex so updates for different users never contend.
// A mutex lives only while some Update holds or waits for it.
type MemoryStore struct {
	records map[string]*Ledger
	locks   map[string]*userLock
	mu      sync.RWMutex
}

type userLock struct {
	sync.Mutex
	refs int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Ledger),
		locks:   make(map[string]*userLock),
	}
}

func (s *MemoryStore) lock(userID string) *userLock {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *MemoryStore) unlock(userID string, l *userLock) {
	l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, userID)
	}
}

// Get returns a copy of the user's ledger
func (s *MemoryStore) Get(ctx context.Context, userID string) (*Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	l, ok := s.records[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

// Create stores a new ledger
func (s *MemoryStore) Create(ctx context.Context, l *Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[l.UserID]; exists {
		return ErrAlreadyExists
	}
	s.records[l.UserID] = l.Clone()
	return nil
}

// Update applies fn under the user's lock
func (s *MemoryStore) Update(ctx context.Context, userID string, fn UpdateFunc) (*Ledger, error) {
	lock := s.lock(userID)
	defer s.unlock(userID, lock)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.records[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	work := current.withoutHistory()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UserID = userID
	work.Version = current.Version + 1

	// Readers only look at history up to their own length, so appending in
	// place is safe while the user lock is held.
	next := *work
	next.UsageHistory = append(current.UsageHistory, work.UsageHistory...)

	s.mu.Lock()
	s.records[userID] = &next
	s.mu.Unlock()

	return work.Clone(), nil
}
