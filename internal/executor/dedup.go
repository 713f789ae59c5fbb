package executor

import (
	"sync"
	"time"
)

// InFlight keeps at most one outstanding venue request per logical
// operation key. An entry older than ttl is considered abandoned and may be
// taken over. It is safe for concurrent use.
type InFlight struct {
	active map[string]time.Time
	ttl    time.Duration
	mu     sync.Mutex
	now    func() time.Time
}

// NewInFlight creates an InFlight guard.
func NewInFlight(ttl time.Duration) *InFlight {
	return &InFlight{
		active: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Acquire marks key as in flight. It returns false when another request
// with the same key is still outstanding.
func (g *InFlight) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if started, ok := g.active[key]; ok && now.Sub(started) < g.ttl {
		return false
	}
	g.active[key] = now
	return true
}

// Release clears key.
func (g *InFlight) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// Len is the number of outstanding keys.
func (g *InFlight) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Cleanup drops abandoned entries.
func (g *InFlight) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, started := range g.active {
		if now.Sub(started) >= g.ttl {
			delete(g.active, key)
		}
	}
}

// issuedSet remembers the most recent order ids handed to the caller so a
// confirm lookup never adopts an order twice.
type issuedSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	limit int
}

func newIssuedSet(limit int) *issuedSet {
	return &issuedSet{ids: make(map[string]struct{}), limit: limit}
}

func (s *issuedSet) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *issuedSet) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
