package api

import (
	"context"
	"testing"
	"time"

	"image-converter/internal/workflow"
)

func newTestManager(idle time.Duration) *SessionManager {
	return NewSessionManager(func() *workflow.Controller {
		return workflow.NewController(nil, nil)
	}, idle)
}

func TestSessionManagerCreateGetDelete(t *testing.T) {
	m := newTestManager(time.Minute)
	defer m.Close()

	session := m.Create()
	if session.ID == "" {
		t.Fatal("expected session id")
	}
	if got, ok := m.Get(session.ID); !ok || got != session {
		t.Fatal("expected to find created session")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 session, got %d", m.Len())
	}

	if !m.Delete(session.ID) {
		t.Error("expected delete to report removal")
	}
	if m.Delete(session.ID) {
		t.Error("expected second delete to be a no-op")
	}
	if _, ok := m.Get(session.ID); ok {
		t.Error("expected session to be gone")
	}
}

func TestSessionManagerSweep(t *testing.T) {
	m := newTestManager(time.Minute)
	defer m.Close()

	stale := m.Create()
	fresh := m.Create()

	if n := m.Sweep(time.Now()); n != 0 {
		t.Fatalf("expected nothing swept, got %d", n)
	}

	later := time.Now().Add(2 * time.Minute)
	if n := m.Sweep(later); n != 2 {
		t.Fatalf("expected both sessions idle relative to %v, got %d", later, n)
	}
	for _, s := range []*Session{stale, fresh} {
		if _, ok := m.Get(s.ID); ok {
			t.Errorf("expected session %s swept", s.ID)
		}
	}
	if m.Len() != 0 {
		t.Errorf("expected no sessions left, got %d", m.Len())
	}
}

func TestSessionManagerSweepKeepsActive(t *testing.T) {
	m := newTestManager(time.Minute)
	defer m.Close()

	session := m.Create()
	if n := m.Sweep(time.Now().Add(30 * time.Second)); n != 0 {
		t.Errorf("expected active session kept, got %d swept", n)
	}
	if _, ok := m.Get(session.ID); !ok {
		t.Error("expected session to survive sweep")
	}
}

func TestSessionManagerRunClosesOnCancel(t *testing.T) {
	m := newTestManager(time.Minute)
	m.Create()
	m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if m.Len() != 0 {
		t.Errorf("expected all sessions closed, got %d", m.Len())
	}
}

func TestSessionManagerDefaultIdle(t *testing.T) {
	m := newTestManager(0)
	defer m.Close()
	if m.idleTimeout != defaultIdleTimeout {
		t.Errorf("expected default idle timeout, got %v", m.idleTimeout)
	}
}
