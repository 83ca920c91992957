package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"image-converter/internal/util"
	"image-converter/internal/workflow"
)

const (
	defaultIdleTimeout = 30 * time.Minute
	sweepDelay         = 5 * time.Second
)

// Session is one browser tab working through the workflow.
type Session struct {
	ID        string
	CreatedAt time.Time
	ctrl      *workflow.Controller
}

// Controller returns the workflow controller of the session.
func (s *Session) Controller() *workflow.Controller {
	return s.ctrl
}

// SessionManager keeps sessions in memory and closes the idle ones.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newController func() *workflow.Controller
	idleTimeout   time.Duration

	sweepSoon func(time.Time)
	stopSweep func()
}

func NewSessionManager(newController func() *workflow.Controller, idleTimeout time.Duration) *SessionManager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	m := &SessionManager{
		sessions:      make(map[string]*Session),
		newController: newController,
		idleTimeout:   idleTimeout,
	}
	// bursts of new sessions trigger a single sweep
	m.sweepSoon, m.stopSweep = util.Debounce(func(time.Time) {
		m.Sweep(time.Now())
	}, sweepDelay)
	return m
}

func (m *SessionManager) Create() *Session {
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		ctrl:      m.newController(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.sweepSoon(session.CreatedAt)
	return session
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	return session, ok
}

// Delete closes and forgets the session.
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		session.ctrl.Close()
	}
	return ok
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns how
// many were closed.
func (m *SessionManager) Sweep(now time.Time) int {
	var idle []*Session

	m.mu.Lock()
	for id, session := range m.sessions {
		if now.Sub(session.ctrl.LastActive()) > m.idleTimeout {
			idle = append(idle, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range idle {
		session.ctrl.Close()
	}
	if len(idle) > 0 {
		log.Printf("sessions: closed %d idle session(s)", len(idle))
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Close shuts every session down.
func (m *SessionManager) Close() {
	m.stopSweep()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.ctrl.Close()
	}
}
