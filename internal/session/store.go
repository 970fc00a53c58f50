package session

import (
	"sync"
	"time"
)

// Store keeps session state between turns. Callers hold Lock(id) for the
// whole turn; Get returns the live state and Put commits it.
type Store interface {
	Get(id string) *State
	Put(state *State)
	Lock(id string) (unlock func())
	Sweep(now time.Time) int
	Len() int
}

type Option func(*InMemoryStore)

// WithIdleTTL evicts sessions idle for longer than ttl on Sweep. Zero keeps
// sessions for the life of the process.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *InMemoryStore) { s.idleTTL = ttl }
}

// WithMaxHistory caps the stored history to the most recent n messages.
func WithMaxHistory(n int) Option {
	return func(s *InMemoryStore) { s.maxHistory = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) { s.now = now }
}

type entry struct {
	mu      sync.Mutex
	state   *State
	touched time.Time
}

// InMemoryStore is a process-local Store.
type InMemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	idleTTL    time.Duration
	maxHistory int
	now        func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) entryLocked(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{state: NewState(id), touched: s.now()}
		s.entries[id] = e
	}
	return e
}

// Get returns the state for id, creating the default state when absent.
func (s *InMemoryStore) Get(id string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(id).state
}

func (s *InMemoryStore) Put(state *State) {
	if state == nil {
		return
	}
	if s.maxHistory > 0 && len(state.History) > s.maxHistory {
		state.History = append(state.History[:0:0], state.History[len(state.History)-s.maxHistory:]...)
	}
	now := s.now()
	state.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(state.ID)
	e.state = state
	e.touched = now
}

// Lock serializes turns for one session.
func (s *InMemoryStore) Lock(id string) func() {
	for {
		s.mu.Lock()
		e := s.entryLocked(id)
		s.mu.Unlock()

		e.mu.Lock()

		s.mu.Lock()
		current := s.entries[id]
		if current == e {
			e.touched = s.now()
		}
		s.mu.Unlock()
		if current == e {
			return e.mu.Unlock
		}
		// Evicted between lookup and acquisition.
		e.mu.Unlock()
	}
}

// Sweep evicts sessions idle past the TTL and returns how many were removed.
// Sessions with a turn in flight are skipped.
func (s *InMemoryStore) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if now.Sub(e.touched) < s.idleTTL {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		delete(s.entries, id)
		e.mu.Unlock()
		removed++
	}
	return removed
}

func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
