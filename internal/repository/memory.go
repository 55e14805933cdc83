package repository

import (
	"context"
	"sync"
	"time"

	"helpr/internal/models"
)

// MemorySessionStore is the in-process fallback used when Redis is not
// configured or unreachable.
type MemorySessionStore struct {
	mu         sync.Mutex
	sessions   map[int64]memorySession
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

type memorySession struct {
	session   models.Session
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:   make(map[int64]memorySession),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemorySessionStore) SaveSession(_ context.Context, session *models.Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.UserID] = memorySession{session: *session, expiresAt: r.now().Add(ttl)}
	return nil
}

func (r *MemorySessionStore) GetSession(_ context.Context, userID int64) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[userID]
	if !ok {
		return nil, nil
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.sessions, userID)
		return nil, nil
	}
	s := entry.session
	return &s, nil
}

func (r *MemorySessionStore) DeleteSession(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}

func (r *MemorySessionStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
