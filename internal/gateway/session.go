package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lattice/internal/models"
)

// sendBufferSize bounds how far a slow reader can lag before frames are
// dropped rather than blocking the component that produced them.
const sendBufferSize = 64

// SessionState is the connection lifecycle from spec.md §4.9:
// Connected(unauth) -> Authenticated -> Closed.
type SessionState int32

const (
	SessionConnected SessionState = iota
	SessionAuthenticated
	SessionClosing
	SessionClosed
)

// Session is one WebSocket connection. A user may hold several concurrently
// (multi-tab); Registry is what ties sessions back to a user id.
type Session struct {
	id   string
	send chan Frame

	closeOnce    sync.Once
	sendCloseOnce sync.Once
	state        atomic.Int32

	mu        sync.RWMutex
	userID    string
	username  string
	avatarURL string
	role      models.Role

	presence     atomic.Value // string: online|idle|dnd
	lastActivity atomic.Int64 // unix nanos

	channelsMu sync.RWMutex
	channels   map[string]struct{}

	voiceMu          sync.RWMutex
	voiceChannelID   string
	voiceMuted       bool
	voiceDeafened    bool

	signalMu        sync.Mutex
	signalWindowAt  time.Time
	signalCount     int
	signalNotified  bool
}

// NewSession creates an unauthenticated session; Authenticate populates the
// user fields and flips state to Authenticated.
func NewSession() *Session {
	s := &Session{
		id:       uuid.New().String(),
		send:     make(chan Frame, sendBufferSize),
		channels: make(map[string]struct{}),
	}
	s.presence.Store("online")
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

// Authenticate binds the session to a user after a successful `auth` frame.
// Returns false if the session was not in the Connected state (replay or
// already-authenticated attempt — spec.md error ALREADY_AUTHENTICATED).
func (s *Session) Authenticate(user *models.User) bool {
	if !s.transitionTo(SessionAuthenticated) {
		return false
	}
	s.mu.Lock()
	s.userID = user.ID
	s.username = user.Username
	s.avatarURL = user.GetAvatarURL()
	s.role = user.Role
	s.mu.Unlock()
	return true
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) AvatarURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatarURL
}

func (s *Session) Role() models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// RefreshProfile updates the cached username/avatar/role snapshot without
// touching lifecycle state — used after a profile-changed refresh.
func (s *Session) RefreshProfile(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = user.Username
	s.avatarURL = user.GetAvatarURL()
	s.role = user.Role
}

func (s *Session) Presence() string {
	return s.presence.Load().(string)
}

func (s *Session) SetPresence(state string) {
	s.presence.Store(state)
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Touch records activity and is called for every inbound frame other than
// `auth`, and on an explicit presence:set, per spec.md §4.2 idle-reset rule.
func (s *Session) Touch() {
	s.touch()
}

func (s *Session) JoinChannel(channelID string) {
	s.channelsMu.Lock()
	s.channels[channelID] = struct{}{}
	s.channelsMu.Unlock()
}

func (s *Session) LeaveChannel(channelID string) {
	s.channelsMu.Lock()
	delete(s.channels, channelID)
	s.channelsMu.Unlock()
}

func (s *Session) InChannel(channelID string) bool {
	s.channelsMu.RLock()
	defer s.channelsMu.RUnlock()
	_, ok := s.channels[channelID]
	return ok
}

func (s *Session) Channels() []string {
	s.channelsMu.RLock()
	defer s.channelsMu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for id := range s.channels {
		out = append(out, id)
	}
	return out
}

// VoiceChannelID reports the session's active voice channel, "" if none.
func (s *Session) VoiceChannelID() string {
	s.voiceMu.RLock()
	defer s.voiceMu.RUnlock()
	return s.voiceChannelID
}

func (s *Session) VoiceState() (muted, deafened bool) {
	s.voiceMu.RLock()
	defer s.voiceMu.RUnlock()
	return s.voiceMuted, s.voiceDeafened
}

// SetVoiceChannel records join/leave of a voice channel. Pass "" to clear.
func (s *Session) SetVoiceChannel(channelID string, muted, deafened bool) {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	s.voiceChannelID = channelID
	s.voiceMuted = muted
	s.voiceDeafened = deafened
}

// SetVoiceSelfState applies a partial mute/deafen update, enforcing the
// deafened-implies-muted invariant from spec.md §4.3.
func (s *Session) SetVoiceSelfState(muted, deafened *bool) (m, d bool) {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	if deafened != nil {
		s.voiceDeafened = *deafened
		if *deafened {
			s.voiceMuted = true
		}
	}
	if muted != nil {
		s.voiceMuted = *muted
	}
	return s.voiceMuted, s.voiceDeafened
}

// AllowSignal applies the fixed-window signaling budget (spec.md §4.5) and
// reports whether the frame should proceed, plus whether this is the
// transition frame that should emit VOICE_SIGNAL_RATE_LIMITED (true only
// once per window-over-budget episode; every frame after that is silent).
func (s *Session) AllowSignal(now time.Time, window time.Duration, budget int) (allowed, notify bool) {
	s.signalMu.Lock()
	defer s.signalMu.Unlock()

	if now.Sub(s.signalWindowAt) >= window {
		s.signalWindowAt = now
		s.signalCount = 0
		s.signalNotified = false
	}

	s.signalCount++
	if s.signalCount <= budget {
		return true, false
	}
	if !s.signalNotified {
		s.signalNotified = true
		return false, true
	}
	return false, false
}

// TrySend enqueues an outbound frame, dropping it if the session is closed
// or its outbound buffer is saturated rather than blocking the caller.
func (s *Session) TrySend(f Frame) bool {
	if s.IsClosed() {
		return false
	}
	defer func() { recover() }()
	select {
	case s.send <- f:
		return true
	default:
		return false
	}
}

// Outbound exposes the read side of the send channel for the transport's
// write pump.
func (s *Session) Outbound() <-chan Frame {
	return s.send
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) IsAuthenticated() bool {
	return s.State() == SessionAuthenticated
}

func (s *Session) IsClosed() bool {
	state := s.State()
	return state == SessionClosing || state == SessionClosed
}

func isValidSessionTransition(from, to SessionState) bool {
	switch from {
	case SessionConnected:
		return to == SessionAuthenticated || to == SessionClosing
	case SessionAuthenticated:
		return to == SessionClosing
	case SessionClosing:
		return to == SessionClosed
	case SessionClosed:
		return false
	}
	return false
}

func (s *Session) transitionTo(newState SessionState) bool {
	for {
		current := SessionState(s.state.Load())
		if !isValidSessionTransition(current, newState) {
			return false
		}
		if s.state.CompareAndSwap(int32(current), int32(newState)) {
			return true
		}
	}
}

// Close transitions the session to Closed and closes its outbound channel
// exactly once; safe to call from both the read and write pumps.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.transitionTo(SessionClosing)
		s.sendCloseOnce.Do(func() { close(s.send) })
		s.transitionTo(SessionClosed)
	})
}
