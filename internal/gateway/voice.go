package gateway

import "sync"

// voiceParticipant is one user's aggregate presence in a voice room. A user
// with several tabs joined to the same voice channel counts once here;
// sessions only increments/decrements the refcount (spec.md §4.3's
// resolved Open Question: the first session to join is what creates the
// room entry, the last to leave is what removes it and lets the caller tear
// down the SFU peer, which is itself created lazily on the first SFU
// request).
type voiceParticipant struct {
	userID    string
	username  string
	avatarURL string
	sessions  int
	muted     bool
	deafened  bool
}

// VoiceRoomTable tracks per-channel voice participant sets. It never talks
// to the SFU collaborator directly — callers (voice:join/leave handlers)
// read its mutation results and drive SFUEngine and the broadcaster
// themselves, preserving the ordering rule from spec.md §5: participant
// map mutation, then SFU peer removal, then broadcast, never under the
// same lock.
type VoiceRoomTable struct {
	mu    sync.Mutex
	rooms map[string]map[string]*voiceParticipant
}

func NewVoiceRoomTable() *VoiceRoomTable {
	return &VoiceRoomTable{rooms: make(map[string]map[string]*voiceParticipant)}
}

// Join adds a session's user to a voice channel. firstSession reports
// whether this is the user's first tab in this channel, i.e. whether the
// participant entry was just created. The voice:join handler only logs it;
// no SFU peer is created here.
func (t *VoiceRoomTable) Join(s *Session, channelID string, muted, deafened bool) (firstSession bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[channelID]
	if !ok {
		room = make(map[string]*voiceParticipant)
		t.rooms[channelID] = room
	}

	userID := s.UserID()
	p, exists := room[userID]
	if !exists {
		p = &voiceParticipant{
			userID:    userID,
			username:  s.Username(),
			avatarURL: s.AvatarURL(),
			muted:     muted,
			deafened:  deafened,
		}
		room[userID] = p
		p.sessions = 1
		return true
	}

	p.sessions++
	return false
}

// Leave decrements a user's session count in a channel. lastSession
// reports whether this was their final tab — callers tear down the SFU
// peer only then; the voice:state broadcast follows every leave.
func (t *VoiceRoomTable) Leave(userID, channelID string) (lastSession bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[channelID]
	if !ok {
		return false
	}
	p, ok := room[userID]
	if !ok {
		return false
	}

	p.sessions--
	if p.sessions > 0 {
		return false
	}

	delete(room, userID)
	if len(room) == 0 {
		delete(t.rooms, channelID)
	}
	return true
}

// ForceLeave removes a user from a channel unconditionally, regardless of
// session count — used when a user switches voice channels, where every
// tab's claim on the old channel is dropped at once.
func (t *VoiceRoomTable) ForceLeave(userID, channelID string) (wasPresent bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[channelID]
	if !ok {
		return false
	}
	if _, ok := room[userID]; !ok {
		return false
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(t.rooms, channelID)
	}
	return true
}

// ForceLeaveAll removes every participant from a channel, returning their
// user ids — used when the SFU reports a worker-died event for the room.
func (t *VoiceRoomTable) ForceLeaveAll(channelID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[channelID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room))
	for userID := range room {
		ids = append(ids, userID)
	}
	delete(t.rooms, channelID)
	return ids
}

// UpdateSelfState applies a mute/deafen change and returns the resulting
// state, or ok=false if the user isn't currently in the channel.
func (t *VoiceRoomTable) UpdateSelfState(userID, channelID string, muted, deafened *bool) (m, d bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, exists := t.rooms[channelID]
	if !exists {
		return false, false, false
	}
	p, exists := room[userID]
	if !exists {
		return false, false, false
	}

	if deafened != nil {
		p.deafened = *deafened
		if *deafened {
			p.muted = true
		}
	}
	if muted != nil {
		p.muted = *muted
	}
	return p.muted, p.deafened, true
}

// InChannel reports whether a user currently has at least one session
// joined to the given voice channel.
func (t *VoiceRoomTable) InChannel(userID, channelID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[channelID]
	if !ok {
		return false
	}
	_, ok = room[userID]
	return ok
}

// Snapshot returns the current participant list for a voice:state
// broadcast.
func (t *VoiceRoomTable) Snapshot(channelID string) []VoiceParticipant {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[channelID]
	if !ok {
		return []VoiceParticipant{}
	}
	out := make([]VoiceParticipant, 0, len(room))
	for _, p := range room {
		out = append(out, VoiceParticipant{
			UserID:    p.userID,
			Username:  p.username,
			AvatarURL: p.avatarURL,
			Muted:     p.muted,
			Deafened:  p.deafened,
		})
	}
	return out
}

// ChannelOf returns the single voice channel id a user is currently in, or
// "" — a user can only be in one voice channel at a time (spec.md §4.3).
func (t *VoiceRoomTable) ChannelOf(userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	for channelID, room := range t.rooms {
		if _, ok := room[userID]; ok {
			return channelID
		}
	}
	return ""
}
