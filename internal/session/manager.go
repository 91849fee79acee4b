package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/docsync/pkg/api"
)

// Common session errors
var (
	// ErrQuotaExceeded indicates that the identity reached its concurrent
	// session quota; terminal for the connection attempt
	ErrQuotaExceeded = errors.New("session quota exceeded")

	// ErrSessionNotFound indicates that the session is not registered
	ErrSessionNotFound = errors.New("session not found")
)

// Manager owns every live session. It is an explicit instance passed by
// handle into the protocol engine, so multiple independent engines can
// coexist in one process.
type Manager struct {
	logger        *slog.Logger
	sessions      map[string]*Session
	byUser        map[string]map[string]*Session
	maxPerUser    int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	mu            sync.RWMutex
}

// NewManager creates a session manager.
// maxPerUser of zero disables the quota; idleTimeout of zero disables
// idle eviction.
func NewManager(logger *slog.Logger, maxPerUser int, idleTimeout, sweepInterval time.Duration) *Manager {
	return &Manager{
		logger:        logger,
		sessions:      make(map[string]*Session),
		byUser:        make(map[string]map[string]*Session),
		maxPerUser:    maxPerUser,
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
	}
}

// Register creates a session for an authenticated connection.
// Returns ErrQuotaExceeded if the identity is at its quota; already-live
// sessions are never disturbed.
func (m *Manager) Register(userID, nodeID string, metadata map[string]string, sender Sender) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxPerUser > 0 && len(m.byUser[userID]) >= m.maxPerUser {
		return nil, ErrQuotaExceeded
	}

	sess := newSession(userID, nodeID, metadata, sender)
	m.sessions[sess.ID] = sess

	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Session)
	}
	m.byUser[userID][sess.ID] = sess

	m.logger.Info("Session registered",
		"session_id", sess.ID,
		"user_id", userID,
		"node_id", nodeID,
		"user_sessions", len(m.byUser[userID]),
	)

	return sess, nil
}

// Unregister removes a session. Safe to call twice.
func (m *Manager) Unregister(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	delete(m.sessions, sessionID)
	delete(m.byUser[sess.UserID], sessionID)
	if len(m.byUser[sess.UserID]) == 0 {
		delete(m.byUser, sess.UserID)
	}

	m.logger.Info("Session unregistered", "session_id", sessionID, "user_id", sess.UserID)
}

// Get returns a session by id
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CountForUser returns the number of live sessions for an identity
func (m *Manager) CountForUser(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID])
}

// Subscribed returns sessions subscribed to the collection, excluding
// excludeID (the origin session of a broadcast)
func (m *Manager) Subscribed(collection, excludeID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subscribed []*Session
	for id, sess := range m.sessions {
		if id == excludeID {
			continue
		}
		if sess.IsSubscribed(collection) {
			subscribed = append(subscribed, sess)
		}
	}
	return subscribed
}

// Run executes the idle-eviction sweep until ctx is canceled.
// The sweep is periodic and independent of message traffic.
func (m *Manager) Run(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}

	interval := m.sweepInterval
	if interval <= 0 {
		interval = m.idleTimeout / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle evicts sessions whose last activity exceeds the idle timeout
func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.RLock()
	var idle []*Session
	for _, sess := range m.sessions {
		if sess.LastActivity().Before(cutoff) {
			idle = append(idle, sess)
		}
	}
	m.mu.RUnlock()

	for _, sess := range idle {
		m.logger.Info("Evicting idle session",
			"session_id", sess.ID,
			"user_id", sess.UserID,
			"last_activity", sess.LastActivity(),
		)
		sess.Close(api.CloseIdleTimeout, "idle timeout")
		m.Unregister(sess.ID)
	}
}
