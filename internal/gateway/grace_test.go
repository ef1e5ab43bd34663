package gateway

import (
	"sync"
	"testing"
	"time"
)

func TestGraceTimerFiresAfterPeriod(t *testing.T) {
	g := &GraceTimer{pending: make(map[string]*graceEntry)}

	fired := make(chan string, 1)
	entry := &graceEntry{channelID: "chan_voice"}
	entry.timer = time.AfterFunc(10*time.Millisecond, func() {
		g.fire("usr_1", "chan_voice", entry, func(userID, channelID string) {
			fired <- channelID
		})
	})
	g.pending["usr_1"] = entry

	select {
	case channelID := <-fired:
		if channelID != "chan_voice" {
			t.Fatalf("expected expiry for chan_voice, got %q", channelID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected grace timer to fire")
	}

	if _, ok := g.Pending("usr_1"); ok {
		t.Fatal("expected pending entry to be cleared after firing")
	}
}

func TestGraceTimerCancelPreventsExpiry(t *testing.T) {
	g := NewGraceTimer()
	var mu sync.Mutex
	expired := false

	g.Arm("usr_1", "chan_voice", func(userID, channelID string) {
		mu.Lock()
		expired = true
		mu.Unlock()
	})
	g.Cancel("usr_1")

	if _, ok := g.Pending("usr_1"); ok {
		t.Fatal("expected Cancel to clear the pending entry immediately")
	}

	time.Sleep(GracePeriod + 50*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if expired {
		t.Fatal("expected cancelled timer to never fire")
	}
}

func TestGraceTimerReArmSupersedesStaleTimer(t *testing.T) {
	g := NewGraceTimer()

	firstFired := make(chan struct{}, 1)
	g.Arm("usr_1", "chan_a", func(userID, channelID string) { firstFired <- struct{}{} })

	// Re-arming for a different channel before the first timer's real
	// GracePeriod elapses must make the stale first entry a no-op when it
	// eventually runs — exercised directly against fire's pointer-identity
	// check rather than waiting out the real GracePeriod.
	g.mu.Lock()
	stale := g.pending["usr_1"]
	g.mu.Unlock()

	secondFired := make(chan string, 1)
	g.Arm("usr_1", "chan_b", func(userID, channelID string) { secondFired <- channelID })

	g.fire("usr_1", "chan_a", stale, func(userID, channelID string) { firstFired <- struct{}{} })

	select {
	case <-firstFired:
		t.Fatal("expected the stale timer's fire to be a no-op")
	default:
	}

	if channelID, ok := g.Pending("usr_1"); !ok || channelID != "chan_b" {
		t.Fatalf("expected chan_b still pending, got %q ok=%v", channelID, ok)
	}
}
