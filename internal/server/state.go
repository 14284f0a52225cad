package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultStateTTL = 10 * time.Minute

// StateStore hands out single-use OAuth state tokens that expire after a TTL.
type StateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states map[string]time.Time
}

// NewStateStore creates a [StateStore]. A ttl <= 0 selects [DefaultStateTTL].
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{ttl: ttl, now: time.Now, states: make(map[string]time.Time)}
}

// Issue creates and remembers a new state token.
func (s *StateStore) Issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	state := uuid.NewString()
	s.states[state] = s.now().Add(s.ttl)
	return state
}

// Consume reports whether state was issued and has not expired. A state is accepted once.
func (s *StateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.now().Before(expires)
}

// Len is the number of outstanding states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *StateStore) sweep() {
	now := s.now()
	for state, expires := range s.states {
		if !now.Before(expires) {
			delete(s.states, state)
		}
	}
}
