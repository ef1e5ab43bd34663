package models

import (
	"testing"
	"time"
)

func TestGetAvatarURLReturnsEmptyWhenUnset(t *testing.T) {
	u := &User{}
	if got := u.GetAvatarURL(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestGetAvatarURLReturnsValueWhenSet(t *testing.T) {
	avatar := "https://cdn.example.com/a.png"
	u := &User{AvatarURL: &avatar}
	if got := u.GetAvatarURL(); got != avatar {
		t.Fatalf("expected %q, got %q", avatar, got)
	}
}

func TestSuspendedReflectsSuspendedAt(t *testing.T) {
	u := &User{}
	if u.Suspended() {
		t.Fatal("expected a user with no SuspendedAt to not be suspended")
	}

	now := time.Now()
	u.SuspendedAt = &now
	if !u.Suspended() {
		t.Fatal("expected a user with SuspendedAt set to be suspended")
	}
}

func TestRoleAtLeastOrdersTheLadder(t *testing.T) {
	if !RoleMember.AtLeast(RoleMember) {
		t.Fatal("expected a role to satisfy its own minimum")
	}
	if RoleMember.AtLeast(RoleModerator) {
		t.Fatal("expected member to not satisfy a moderator minimum")
	}
	if !RoleOwner.AtLeast(RoleModerator) {
		t.Fatal("expected owner to satisfy a moderator minimum")
	}
	if !RoleMember.AtLeast("") {
		t.Fatal("expected an empty minimum to impose no restriction")
	}
}
