// Package session keeps the per-client orchestrators of the networked
// variant.
//
// Every session owns one orchestrator and therefore one task queue. A
// session is busy while a run or an edit holds its guard; busy sessions
// are never evicted and reject further mutating operations with ErrBusy.
// Reads of the queue are always allowed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
)

var (
	// ErrNotFound is returned for unknown or evicted session ids.
	ErrNotFound = errors.New("session not found")

	// ErrBusy is returned when a session already has an operation in flight.
	ErrBusy = errors.New("session is busy")
)

// Eviction reasons recorded in metrics and logs.
const (
	ReasonIdle     = "idle"
	ReasonExplicit = "explicit"
)

// Session is one client's orchestrator plus bookkeeping.
type Session struct {
	ID           string
	Orchestrator *orchestrator.Orchestrator
	CreatedAt    time.Time

	lastAccess atomic.Int64 // unix nanos
	busy       atomic.Bool
	metrics    *Metrics
}

// TryAcquire marks the session busy. It returns ErrBusy if it already is.
func (s *Session) TryAcquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.busy()
		return fmt.Errorf("session %s: %w", s.ID, ErrBusy)
	}
	return nil
}

// Release clears the busy flag set by TryAcquire.
func (s *Session) Release() {
	s.busy.Store(false)
}

// Busy reports whether an operation holds the session.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// LastAccess returns the last time the session was created or fetched.
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastAccess.Store(now.UnixNano())
}

// Info is the listing view of a session.
type Info struct {
	ID         string    `json:"session_id"`
	Goal       string    `json:"goal"`
	Tasks      int       `json:"tasks"`
	Busy       bool      `json:"busy"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
}

// Factory builds the orchestrator for a new session.
type Factory func(ctx context.Context, id string) (*orchestrator.Orchestrator, error)

// Store holds sessions in memory.
type Store struct {
	factory     Factory
	idleTimeout time.Duration
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout sets how long an untouched session survives a sweep.
// Zero disables idle eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) { s.idleTimeout = d }
}

// WithMetrics records store activity.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(factory Factory, opts ...Option) (*Store, error) {
	if factory == nil {
		return nil, errors.New("session factory is required")
	}
	s := &Store{
		factory:  factory,
		logger:   zap.NewNop(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create builds a new session with a random id.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	orch, err := s.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	now := s.now()
	sess := &Session{ID: id, Orchestrator: orch, CreatedAt: now, metrics: s.metrics}
	sess.touch(now)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.metrics.created()
	s.logger.Info("session created", zap.String("session.id", id))
	return sess, nil
}

// Get returns the session and refreshes its last access time.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	sess.touch(s.now())
	return sess, nil
}

// Acquire looks up the session and marks it busy in one step, so an
// acquired session cannot be evicted until it is released.
func (s *Store) Acquire(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err := sess.TryAcquire(); err != nil {
		return nil, err
	}
	sess.touch(s.now())
	return sess, nil
}

// Evict removes the session. A busy session is refused with ErrBusy.
func (s *Store) Evict(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if sess.Busy() {
		s.mu.Unlock()
		s.metrics.busy()
		return fmt.Errorf("session %s: %w", id, ErrBusy)
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	s.metrics.evicted(ReasonExplicit)
	s.logger.Info("session evicted", zap.String("session.id", id), zap.String("reason", ReasonExplicit))
	return nil
}

// List returns every session ordered by creation time.
func (s *Store) List() []Info {
	s.mu.RLock()
	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, Info{
			ID:         sess.ID,
			Goal:       sess.Orchestrator.Goal(),
			Tasks:      sess.Orchestrator.Queue().Len(),
			Busy:       sess.Busy(),
			CreatedAt:  sess.CreatedAt,
			LastAccess: sess.LastAccess(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions and returns how many were removed. Busy
// sessions are skipped regardless of age.
func (s *Store) Sweep() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTimeout)

	var evicted []string
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.Busy() || !sess.LastAccess().Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, id)
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.metrics.evicted(ReasonIdle)
		s.logger.Info("session evicted", zap.String("session.id", id), zap.String("reason", ReasonIdle))
	}
	return len(evicted)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("idle sessions swept", zap.Int("evicted", n))
			}
		}
	}
}
