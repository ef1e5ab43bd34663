package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"lattice/internal/models"
)

// idleSweepInterval is the cadence of the single periodic idle-demotion
// task (spec.md §4.2) — one ticker for every session, not one timer per
// session.
const idleSweepInterval = 60 * time.Second

const defaultIdleTimeout = 15 * time.Minute

// presenceRank orders states for cross-session aggregation: a user with one
// tab set to dnd and another idle shows as dnd everywhere (spec.md §8
// property 8).
func presenceRank(state string) int {
	switch state {
	case "dnd":
		return 3
	case "online":
		return 2
	case "idle":
		return 1
	default:
		return 0
	}
}

// PresenceTracker aggregates per-session presence into a per-user view and
// demotes idle sessions on a fixed sweep. The idle threshold is sourced
// from SettingsProvider, not static config, and is refreshed on boot and
// whenever a settings-updated broadcast is observed.
type PresenceTracker struct {
	registry *Registry
	settings SettingsProvider
	log      *slog.Logger

	idleThreshold atomic.Int64 // nanoseconds
}

func NewPresenceTracker(registry *Registry, settings SettingsProvider, log *slog.Logger) *PresenceTracker {
	p := &PresenceTracker{registry: registry, settings: settings, log: log}
	p.idleThreshold.Store(int64(defaultIdleTimeout))
	return p
}

// RefreshIdleThreshold polls the settings collaborator; a failure keeps the
// last-known threshold rather than reverting to the hardcoded default
// (spec.md §7 recovery policy: degrade, don't fail closed).
func (p *PresenceTracker) RefreshIdleThreshold(ctx context.Context) {
	minutes, err := p.settings.IdleTimeoutMinutes(ctx)
	if err != nil {
		p.log.Warn("idle timeout refresh failed, keeping cached value", "component", "presence", "error", err)
		return
	}
	p.idleThreshold.Store(int64(time.Duration(minutes) * time.Minute))
}

func (p *PresenceTracker) idleTimeout() time.Duration {
	return time.Duration(p.idleThreshold.Load())
}

// SetSelfState applies an explicit presence:set frame. dnd and online are
// sticky until the next explicit set or a disconnect; idle is the only
// state the sweep assigns on its own.
func (p *PresenceTracker) SetSelfState(s *Session, state string) {
	s.SetPresence(state)
	s.Touch()
}

// NoteActivity flips an idle session back to online on any non-auth frame,
// per spec.md §4.2. dnd is left untouched — activity doesn't override an
// explicit do-not-disturb.
func (p *PresenceTracker) NoteActivity(s *Session) {
	s.Touch()
	if s.Presence() == "idle" {
		s.SetPresence("online")
	}
}

// SweepIdle demotes every authenticated session that's been silent past the
// idle threshold and is currently online. Returns true if any session
// changed state, so the caller knows whether a presence:update broadcast is
// warranted.
func (p *PresenceTracker) SweepIdle(now time.Time) bool {
	threshold := p.idleTimeout()
	changed := false

	p.registry.IterateAllSessions(func(s *Session) {
		if !s.IsAuthenticated() {
			return
		}
		if s.Presence() != "online" {
			return
		}
		if now.Sub(s.LastActivity()) < threshold {
			return
		}
		s.SetPresence("idle")
		changed = true
	})

	return changed
}

// aggregate picks the highest-ranked presence across a user's open tabs.
func (p *PresenceTracker) aggregate(userID string) string {
	best := ""
	bestRank := -1
	for _, s := range p.registry.SessionsOfUser(userID) {
		rank := presenceRank(s.Presence())
		if rank > bestRank {
			bestRank = rank
			best = s.Presence()
		}
	}
	if best == "" {
		return "online"
	}
	return best
}

// ComputeSnapshot builds the full presence:update payload: the sorted list
// of online users (spec.md §4.2), aggregated across tabs, enriched with the
// cached profile fields carried on session state.
func (p *PresenceTracker) ComputeSnapshot() []PresenceUser {
	userIDs := p.registry.OnlineUserIDs()
	out := make([]PresenceUser, 0, len(userIDs))

	for _, userID := range userIDs {
		sessions := p.registry.SessionsOfUser(userID)
		if len(sessions) == 0 {
			continue
		}
		lead := sessions[0]
		out = append(out, PresenceUser{
			ID:        userID,
			Username:  lead.Username(),
			AvatarURL: lead.AvatarURL(),
			State:     p.aggregate(userID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SnapshotUser returns a single user's aggregated presence entry, used when
// only one user's state changed and a full broadcast would be wasteful —
// kept here instead of inlined so callers can unit test the aggregation
// rule alone.
func (p *PresenceTracker) SnapshotUser(user *models.User) PresenceUser {
	return PresenceUser{
		ID:        user.ID,
		Username:  user.Username,
		AvatarURL: user.GetAvatarURL(),
		State:     p.aggregate(user.ID),
	}
}
