package invoicing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/billing_layer/internal/metrics"
)

// Session is one user's open draft. Do serialises access to its composer.
type Session struct {
	ID        string
	UserID    string
	CompanyID int64

	mu       sync.Mutex
	composer *Composer
	lastUsed atomic.Int64
}

// Do runs fn with exclusive access to the session's composer.
func (s *Session) Do(now time.Time, fn func(*Composer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed.Store(now.UnixNano())
	return fn(s.composer)
}

// Sessions tracks open drafts by ID.
type Sessions struct {
	mu    sync.RWMutex
	items map[string]*Session
	clock Clock
}

// NewSessions creates an empty session registry.
func NewSessions(clock Clock) *Sessions {
	if clock == nil {
		clock = time.Now
	}
	return &Sessions{items: make(map[string]*Session), clock: clock}
}

// Open registers a new draft session for userID.
func (r *Sessions) Open(userID string, companyID int64, composer *Composer) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CompanyID: companyID,
		composer:  composer,
	}
	s.lastUsed.Store(r.clock().UnixNano())

	r.mu.Lock()
	r.items[s.ID] = s
	n := len(r.items)
	r.mu.Unlock()

	metrics.SetActiveDrafts(n)
	return s
}

// Get returns the session if it exists and belongs to userID.
func (r *Sessions) Get(id, userID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.items[id]
	r.mu.RUnlock()
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close forgets a session.
func (r *Sessions) Close(id string) {
	r.mu.Lock()
	delete(r.items, id)
	n := len(r.items)
	r.mu.Unlock()
	metrics.SetActiveDrafts(n)
}

// Evict closes sessions idle for longer than ttl and returns how many.
func (r *Sessions) Evict(ttl time.Duration) int {
	cutoff := r.clock().Add(-ttl).UnixNano()

	r.mu.Lock()
	removed := 0
	for id, s := range r.items {
		if s.lastUsed.Load() < cutoff {
			delete(r.items, id)
			removed++
		}
	}
	n := len(r.items)
	r.mu.Unlock()

	metrics.SetActiveDrafts(n)
	return removed
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Now returns the registry clock's current time.
func (r *Sessions) Now() time.Time {
	return r.clock()
}
