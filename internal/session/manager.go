package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/metrics"
	"github.com/Rorqualx/proxydl/internal/security"
	"github.com/Rorqualx/proxydl/internal/types"
)

// closeTimeout bounds the shutdown of a single session.
const closeTimeout = 15 * time.Second

// Factory builds the resources of a new session.
type Factory func(ctx context.Context, id string) (*Session, error)

// Manager handles session lifecycle and cleanup.
// It maintains a map of active sessions and periodically cleans up expired ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	pending  int // Creations in progress, counted against MaxSessions
	config   *config.Config
	factory  Factory
	stopCh   chan struct{}
	wg       sync.WaitGroup // Track background goroutines for clean shutdown
}

// NewManager creates a new session manager.
// It starts a background goroutine for session cleanup.
func NewManager(cfg *config.Config, factory Factory) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		config:   cfg,
		factory:  factory,
		stopCh:   make(chan struct{}),
	}

	// Start cleanup routine with WaitGroup tracking for clean shutdown
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupRoutine()
	}()

	log.Info().
		Dur("ttl", cfg.SessionTTL).
		Dur("cleanup_interval", cfg.SessionCleanupInterval).
		Int("max_sessions", cfg.MaxSessions).
		Msg("Session manager initialized")

	return m
}

// Create starts a new session. An empty id gets a generated one.
// Returns an error if the session already exists or max sessions is reached.
func (m *Manager) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = security.GenerateSessionID()
	} else if msg := security.ValidateSessionID(id); msg != "" {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidRequest, msg)
	}

	m.mu.Lock()
	if m.sessions == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: manager closed", types.ErrInvalidRequest)
	}
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, types.ErrSessionAlreadyExists
	}
	if len(m.sessions)+m.pending >= m.config.MaxSessions {
		m.mu.Unlock()
		return nil, types.ErrTooManySessions
	}
	m.pending++
	m.mu.Unlock()

	// Browser start-up is slow; do it outside the lock.
	sess, err := m.factory(ctx, id)

	m.mu.Lock()
	m.pending--
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("create session: %w", err)
	}
	_, exists := m.sessions[id]
	if exists || m.sessions == nil {
		m.mu.Unlock()
		m.closeSession(sess, "rejected")
		if exists {
			return nil, types.ErrSessionAlreadyExists
		}
		return nil, fmt.Errorf("%w: manager closed", types.ErrInvalidRequest)
	}
	m.sessions[id] = sess
	total := len(m.sessions)
	m.mu.Unlock()

	metrics.UpdateSessionMetrics(total)
	log.Info().
		Str("session_id", id).
		Int("total_sessions", total).
		Msg("Session created")

	return sess, nil
}

// Get retrieves a session by ID.
// Returns ErrSessionNotFound if the session doesn't exist.
// Updates the LastUsed timestamp on access using atomic operation.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists {
		return nil, types.ErrSessionNotFound
	}

	// Update last used time atomically - no lock needed
	session.Touch()

	return session, nil
}

// Destroy removes a session and closes its browser and proxy.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return types.ErrSessionNotFound
	}
	metrics.UpdateSessionMetrics(total)

	m.closeSession(session, "destroyed")
	return nil
}

// List returns all active session IDs in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Infos describes all active sessions, ordered by ID.
func (m *Manager) Infos() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) closeSession(s *Session, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		log.Debug().Err(err).Str("session_id", s.ID).Msg("Error closing session")
	}
	log.Info().
		Str("session_id", s.ID).
		Str("reason", reason).
		Dur("lifetime", time.Since(s.CreatedAt)).
		Msg("Session closed")
}

// cleanupRoutine periodically removes expired sessions.
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.config.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stopCh:
			return
		}
	}
}

// cleanupExpired removes sessions that have exceeded their TTL.
// Uses two-phase cleanup to avoid holding lock during slow I/O.
func (m *Manager) cleanupExpired() {
	now := time.Now()

	// Phase 1: Collect expired sessions under lock
	m.mu.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if session.Busy() {
			continue
		}
		if now.Sub(session.LastUsedTime()) > m.config.SessionTTL {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	metrics.UpdateSessionMetrics(remaining)

	// Phase 2: Clean up resources in parallel WITHOUT holding lock
	m.closeAll(expired, "expired")

	log.Debug().
		Int("expired_count", len(expired)).
		Int("remaining", remaining).
		Msg("Session cleanup completed")
}

func (m *Manager) closeAll(sessions []*Session, reason string) {
	eg := new(errgroup.Group)
	eg.SetLimit(4)

	for _, sess := range sessions {
		eg.Go(func() error {
			m.closeSession(sess, reason)
			return nil
		})
	}
	_ = eg.Wait()
}

// Close shuts down the session manager and closes all sessions.
func (m *Manager) Close() error {
	close(m.stopCh)

	// Wait for cleanup goroutine to finish
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = nil
	m.mu.Unlock()

	m.closeAll(sessions, "shutdown")
	metrics.UpdateSessionMetrics(0)

	log.Info().Msg("Session manager closed")
	return nil
}
