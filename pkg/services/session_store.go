package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/models"
)

// SessionStore holds mapping sessions between upload and parse. Sessions
// expire TTL after creation; expired sessions behave as absent.
type SessionStore interface {
	// Put stores a session under its token.
	Put(ctx context.Context, session *models.MappingSession) error

	// Get retrieves a live session. Returns apperrors.ErrSessionNotFound
	// for unknown or expired tokens.
	Get(ctx context.Context, token string) (*models.MappingSession, error)

	// Update rewrites an existing live session without extending its TTL
	// position. Returns apperrors.ErrSessionNotFound when absent.
	Update(ctx context.Context, session *models.MappingSession) error

	// Delete removes a session. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error
}

// NewSessionToken returns a 32-hex-char opaque session token.
func NewSessionToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return hex.EncodeToString(b)
}

// memorySessionStore is the default single-process store. A background
// sweeper transitions overdue sessions to expired and evicts them.
type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	logger   *zap.Logger
}

type sessionEntry struct {
	session   *models.MappingSession
	expiresAt time.Time
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore(ttl time.Duration, logger *zap.Logger) SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		logger:   logger.Named("sessions"),
	}
}

func (s *memorySessionStore) Put(ctx context.Context, session *models.MappingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Token] = &sessionEntry{
		session:   session,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *memorySessionStore) Get(ctx context.Context, token string) (*models.MappingSession, error) {
	s.mu.RLock()
	entry, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, apperrors.ErrSessionNotFound
	}

	return entry.session, nil
}

func (s *memorySessionStore) Update(ctx context.Context, session *models.MappingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[session.Token]
	if !ok || time.Now().After(entry.expiresAt) {
		return apperrors.ErrSessionNotFound
	}

	entry.session = session
	return nil
}

func (s *memorySessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// Sweep evicts expired sessions. RunSweeper calls it periodically; it is
// exported so tests can trigger a pass directly.
func (s *memorySessionStore) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for token, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			entry.session.State = models.SessionExpired
			delete(s.sessions, token)
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Info("expired sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}

// RunSweeper evicts expired sessions every interval until ctx is done.
// Only the in-memory store needs this; Redis expires keys itself.
func RunSweeper(ctx context.Context, store SessionStore, interval time.Duration) {
	mem, ok := store.(*memorySessionStore)
	if !ok {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem.Sweep()
		}
	}
}

var _ SessionStore = (*memorySessionStore)(nil)
