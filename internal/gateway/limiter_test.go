package gateway

import (
	"testing"
	"time"
)

func TestLimiterCheckVerdicts(t *testing.T) {
	l := NewLimiter(5*time.Second, 2)
	s := NewSession()
	now := time.Now()

	if got := l.Check(s, now); got != LimitAllow {
		t.Fatalf("frame 1: expected LimitAllow, got %v", got)
	}
	if got := l.Check(s, now); got != LimitAllow {
		t.Fatalf("frame 2: expected LimitAllow, got %v", got)
	}
	if got := l.Check(s, now); got != LimitNotify {
		t.Fatalf("frame 3 (first over budget): expected LimitNotify, got %v", got)
	}
	if got := l.Check(s, now); got != LimitSilent {
		t.Fatalf("frame 4 (still over budget): expected LimitSilent, got %v", got)
	}
}

func TestNewLimiterFallsBackToDefaults(t *testing.T) {
	l := NewLimiter(0, 0)
	if l.window != SignalRateWindow {
		t.Fatalf("expected default window %v, got %v", SignalRateWindow, l.window)
	}
	if l.budget != SignalRateBudget {
		t.Fatalf("expected default budget %d, got %d", SignalRateBudget, l.budget)
	}
}
