package gateway

import (
	"sync"
	"time"
)

// GracePeriod is how long a user's voice participation survives a full
// disconnect (their last session closing) before it's torn down for real.
// A reconnect within the window cancels the pending timer with no visible
// interruption (spec.md §4.4).
const GracePeriod = 15 * time.Second

type graceEntry struct {
	timer     *time.Timer
	channelID string
}

// GraceTimer arms one pending-departure timer per user rather than one per
// session, so a disconnect/reconnect across different tabs of the same
// voice channel doesn't race two timers against each other.
type GraceTimer struct {
	mu      sync.Mutex
	pending map[string]*graceEntry
}

func NewGraceTimer() *GraceTimer {
	return &GraceTimer{pending: make(map[string]*graceEntry)}
}

// Arm starts (or restarts) the grace timer for a user's departure from
// channelID. onExpire fires at most once, and only if neither Cancel nor a
// later Arm for the same user has replaced this entry in the meantime — the
// fire-time check is the entry's identity; the channel id is not compared.
// A reconnect cancels the timer from the auth handler.
func (g *GraceTimer) Arm(userID, channelID string, onExpire func(userID, channelID string)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.pending[userID]; ok {
		existing.timer.Stop()
	}

	entry := &graceEntry{channelID: channelID}
	g.pending[userID] = entry

	entry.timer = time.AfterFunc(GracePeriod, func() {
		g.fire(userID, channelID, entry, onExpire)
	})
}

// fire only proceeds if the entry it was scheduled for is still the one
// registered for userID — a cancel or a re-Arm swaps the map entry out
// from under a stale timer, which this identity check catches.
func (g *GraceTimer) fire(userID, channelID string, scheduledFor *graceEntry, onExpire func(userID, channelID string)) {
	g.mu.Lock()
	entry, ok := g.pending[userID]
	if !ok || entry != scheduledFor {
		g.mu.Unlock()
		return
	}
	delete(g.pending, userID)
	g.mu.Unlock()

	onExpire(userID, channelID)
}

// Cancel stops a pending departure timer, e.g. because the user reconnected
// and rejoined the same voice channel before it fired.
func (g *GraceTimer) Cancel(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.pending[userID]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(g.pending, userID)
}

// Pending reports whether a user currently has a grace timer running, and
// for which channel — used to decide whether a reconnect should cancel it.
func (g *GraceTimer) Pending(userID string) (channelID string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.pending[userID]
	if !ok {
		return "", false
	}
	return entry.channelID, true
}
