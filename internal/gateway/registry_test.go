package gateway

import (
	"testing"

	"lattice/internal/models"
)

func authedSession(t *testing.T, userID string) *Session {
	t.Helper()
	s := NewSession()
	if !s.Authenticate(&models.User{ID: userID, Username: userID, Role: models.RoleMember}) {
		t.Fatalf("failed to authenticate session for %s", userID)
	}
	return s
}

func TestRegistryMultiTabAttachDetach(t *testing.T) {
	r := NewRegistry()

	tab1 := authedSession(t, "usr_1")
	tab2 := authedSession(t, "usr_1")
	r.Add(tab1)
	r.Add(tab2)

	if count := r.Attach(tab1, "usr_1"); count != 1 {
		t.Fatalf("expected 1 session after first attach, got %d", count)
	}
	if count := r.Attach(tab2, "usr_1"); count != 2 {
		t.Fatalf("expected 2 sessions after second attach, got %d", count)
	}

	if offline := r.Detach(tab1); offline {
		t.Fatal("expected user to stay online with one tab remaining")
	}
	if offline := r.Detach(tab2); !offline {
		t.Fatal("expected user to go offline after last tab detaches")
	}
	if count := r.SessionCount("usr_1"); count != 0 {
		t.Fatalf("expected 0 sessions after both tabs detach, got %d", count)
	}
}

func TestRegistryChannelMembershipClearedOnDetach(t *testing.T) {
	r := NewRegistry()
	s := authedSession(t, "usr_1")
	r.Add(s)
	r.Attach(s, "usr_1")
	r.ChannelAdd(s, "chan_general")

	if members := r.SessionsOfChannel("chan_general"); len(members) != 1 {
		t.Fatalf("expected 1 member of chan_general, got %d", len(members))
	}

	r.Detach(s)

	if members := r.SessionsOfChannel("chan_general"); len(members) != 0 {
		t.Fatalf("expected channel membership cleared after detach, got %d", len(members))
	}
}

func TestRegistryOnlineUserIDs(t *testing.T) {
	r := NewRegistry()
	a := authedSession(t, "usr_a")
	b := authedSession(t, "usr_b")
	r.Add(a)
	r.Add(b)
	r.Attach(a, "usr_a")
	r.Attach(b, "usr_b")

	ids := r.OnlineUserIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(ids))
	}

	r.Detach(a)
	ids = r.OnlineUserIDs()
	if len(ids) != 1 || ids[0] != "usr_b" {
		t.Fatalf("expected only usr_b online, got %v", ids)
	}
}
