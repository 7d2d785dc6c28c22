// Package session keeps one cart controller per browsing session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/izahid19/ekart/internal/cartsync"
)

// Factory builds the controller for a new session.
type Factory func(sessionID string) *cartsync.Controller

type entry struct {
	ctrl     *cartsync.Controller
	lastSeen time.Time
}

// Manager hands out controllers keyed by session ID and evicts the ones
// idle longer than the configured timeout. An evicted session comes back
// anonymous; its guest cart survives in storage.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  Factory
	idle     time.Duration
	logger   *slog.Logger
	nowFunc  func() time.Time // injectable clock for testing
}

// NewManager creates a manager. Call Run to start eviction.
func NewManager(factory Factory, idle time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		factory:  factory,
		idle:     idle,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// NewID mints a session identifier.
func NewID() string {
	return uuid.NewString()
}

// Get returns the controller for sessionID, creating it on first use.
func (m *Manager) Get(sessionID string) *cartsync.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	if e, ok := m.sessions[sessionID]; ok {
		e.lastSeen = now
		return e.ctrl
	}

	ctrl := m.factory(sessionID)
	m.sessions[sessionID] = &entry{ctrl: ctrl, lastSeen: now}
	return ctrl
}

// Lookup returns the controller for sessionID without creating one.
func (m *Manager) Lookup(sessionID string) (*cartsync.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.nowFunc()
	return e.ctrl, true
}

// Rotate moves the session under oldID to a freshly minted ID and forgets
// oldID. The caller must present the old session's credential in ctx when
// it is signed in.
func (m *Manager) Rotate(ctx context.Context, oldID string) (string, *cartsync.Controller, error) {
	old := m.Get(oldID)

	newID := NewID()
	next := m.Get(newID)
	if err := old.HandOver(ctx, next); err != nil {
		m.remove(newID)
		return "", nil, fmt.Errorf("rotate session: %w", err)
	}
	m.remove(oldID)

	m.logger.DebugContext(ctx, "session rotated", slog.String("session_id", newID))
	return newID, next, nil
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run evicts idle sessions every idle/2 until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.evictIdle(); n > 0 {
				m.logger.Debug("evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

// evictIdle removes sessions not seen within the idle timeout.
func (m *Manager) evictIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	var n int
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.idle {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
