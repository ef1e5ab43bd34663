package gateway

import (
	"testing"
	"time"

	"lattice/internal/models"
)

func TestSessionTransitionTable(t *testing.T) {
	testCases := []struct {
		name string
		from SessionState
		to   SessionState
		ok   bool
	}{
		{name: "connected_to_authenticated", from: SessionConnected, to: SessionAuthenticated, ok: true},
		{name: "connected_to_closing", from: SessionConnected, to: SessionClosing, ok: true},
		{name: "authenticated_to_closing", from: SessionAuthenticated, to: SessionClosing, ok: true},
		{name: "closing_to_closed", from: SessionClosing, to: SessionClosed, ok: true},
		{name: "authenticated_to_connected_invalid", from: SessionAuthenticated, to: SessionConnected, ok: false},
		{name: "closed_to_anything_invalid", from: SessionClosed, to: SessionAuthenticated, ok: false},
		{name: "connected_to_closed_invalid", from: SessionConnected, to: SessionClosed, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isValidSessionTransition(tc.from, tc.to); got != tc.ok {
				t.Fatalf("isValidSessionTransition(%v, %v) = %v, want %v", tc.from, tc.to, got, tc.ok)
			}
		})
	}
}

func TestSessionAuthenticateOnlyOnce(t *testing.T) {
	s := NewSession()
	user := &models.User{ID: "usr_1", Username: "alice", Role: models.RoleMember}

	if !s.Authenticate(user) {
		t.Fatal("expected first Authenticate to succeed")
	}
	if s.Authenticate(user) {
		t.Fatal("expected second Authenticate to fail, session already authenticated")
	}
	if s.UserID() != "usr_1" {
		t.Fatalf("expected userID usr_1, got %q", s.UserID())
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := NewSession()
	s.Close()
	s.Close() // must not panic on a double close

	if !s.IsClosed() {
		t.Fatal("expected session to be closed")
	}
	if s.TrySend(newFrame(KindPong, struct{}{})) {
		t.Fatal("expected TrySend to fail on a closed session")
	}
}

func TestSetVoiceSelfStateDeafenedImpliesMuted(t *testing.T) {
	s := NewSession()
	deafened := true
	m, d := s.SetVoiceSelfState(nil, &deafened)
	if !m || !d {
		t.Fatalf("expected deafened=true to force muted=true, got muted=%v deafened=%v", m, d)
	}

	muted := false
	m, d = s.SetVoiceSelfState(&muted, nil)
	if m {
		t.Fatal("expected an explicit unmute to take effect independent of deafened")
	}
	if !d {
		t.Fatal("expected deafened to stay true untouched")
	}
}

func TestAllowSignalBudgetAndSingleNotify(t *testing.T) {
	s := NewSession()
	now := time.Now()
	window := 5 * time.Second
	budget := 3

	for i := 0; i < budget; i++ {
		allowed, notify := s.AllowSignal(now, window, budget)
		if !allowed || notify {
			t.Fatalf("frame %d: expected allowed=true notify=false, got allowed=%v notify=%v", i, allowed, notify)
		}
	}

	allowed, notify := s.AllowSignal(now, window, budget)
	if allowed || !notify {
		t.Fatalf("first over-budget frame: expected allowed=false notify=true, got allowed=%v notify=%v", allowed, notify)
	}

	allowed, notify = s.AllowSignal(now, window, budget)
	if allowed || notify {
		t.Fatalf("second over-budget frame: expected allowed=false notify=false (silent), got allowed=%v notify=%v", allowed, notify)
	}

	// A fresh window resets the budget entirely.
	allowed, notify = s.AllowSignal(now.Add(window), window, budget)
	if !allowed || notify {
		t.Fatalf("new window: expected allowed=true notify=false, got allowed=%v notify=%v", allowed, notify)
	}
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	s := NewSession()
	for i := 0; i < sendBufferSize; i++ {
		if !s.TrySend(newFrame(KindPong, struct{}{})) {
			t.Fatalf("expected send %d to succeed, buffer should not be full yet", i)
		}
	}
	if s.TrySend(newFrame(KindPong, struct{}{})) {
		t.Fatal("expected send to a full buffer to be dropped, not block")
	}
}
