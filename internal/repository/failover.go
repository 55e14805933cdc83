package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSessionStore routes to primary until it errors, then serves from
// fallback and retries primary again on a backoff schedule.
type FailoverSessionStore struct {
	primary  domain.SessionStore
	fallback domain.SessionStore
	logger   *zerolog.Logger
	policy   RetryPolicy
	now      func() time.Time

	isDown    atomic.Bool
	mu        sync.Mutex
	attempts  int
	nextRetry time.Time
}

func NewFailoverSessionStore(primary, fallback domain.SessionStore, policy RetryPolicy, logger *zerolog.Logger) *FailoverSessionStore {
	return &FailoverSessionStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		policy:   policy,
		now:      time.Now,
	}
}

// Degraded reports whether calls are currently served by the fallback.
func (r *FailoverSessionStore) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverSessionStore) markDown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown.Load() {
		r.logger.Error().Err(err).Msg("Primary session store failed, falling back to memory")
		r.attempts = 0
	}
	r.attempts++
	r.nextRetry = r.now().Add(r.policy.NextDelay(r.attempts))
	r.isDown.Store(true)
}

func (r *FailoverSessionStore) markUp() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isDown.Load() {
		r.logger.Info().Int("attempts", r.attempts).Msg("Primary session store recovered")
	}
	r.attempts = 0
	r.isDown.Store(false)
}

func (r *FailoverSessionStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.now().Before(r.nextRetry)
}

func (r *FailoverSessionStore) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session, ttl)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSession(ctx, session, ttl)
}

func (r *FailoverSessionStore) GetSession(ctx context.Context, userID int64) (*models.Session, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, userID)
		if err == nil {
			r.markUp()
			return session, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, userID)
}

func (r *FailoverSessionStore) DeleteSession(ctx context.Context, userID int64) error {
	// Delete from both so a session written during an outage cannot outlive logout.
	fbErr := r.fallback.DeleteSession(ctx, userID)
	if r.usePrimary() {
		err := r.primary.DeleteSession(ctx, userID)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return fbErr
}

func (r *FailoverSessionStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
