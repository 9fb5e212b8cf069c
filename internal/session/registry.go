package session

import (
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// Registry is the concurrency-safe map of live sessions keyed by user ID.
// Sessions idle longer than the TTL are evicted; a returning user starts over
// in StateAwaitingDate.
type Registry struct {
	cache *cache.Cache
}

// NewRegistry creates a registry whose sessions expire after ttl of inactivity.
func NewRegistry(ttl time.Duration) *Registry {
	cleanup := ttl / 6
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(userID string, _ interface{}) {
		slog.Debug("Session expired", "user_id", userID)
	})
	return &Registry{cache: c}
}

// Get returns the live session for userID.
func (r *Registry) Get(userID string) (*Session, bool) {
	if x, found := r.cache.Get(userID); found {
		return x.(*Session), true
	}
	return nil, false
}

// GetOrCreate returns the live session for userID, creating it if needed.
func (r *Registry) GetOrCreate(userID string) *Session {
	if s, ok := r.Get(userID); ok {
		return s
	}
	s := New(userID)
	if err := r.cache.Add(userID, s, cache.DefaultExpiration); err != nil {
		// Lost a race with another creator; use theirs.
		if existing, ok := r.Get(userID); ok {
			return existing
		}
		r.cache.Set(userID, s, cache.DefaultExpiration)
	}
	slog.Debug("Session created", "user_id", userID)
	return s
}

// Touch refreshes the idle deadline of s.
func (r *Registry) Touch(s *Session) {
	s.UpdatedAt = time.Now()
	r.cache.Set(s.UserID, s, cache.DefaultExpiration)
}

// Delete drops the session for userID.
func (r *Registry) Delete(userID string) {
	r.cache.Delete(userID)
}

// Count returns the number of live sessions, including expired ones not yet purged.
func (r *Registry) Count() int {
	return r.cache.ItemCount()
}
