package gateway

import "sync"

// Registry is the source of truth for which sessions exist, which user each
// belongs to, and which text channels each session has joined. Multiple
// sessions can map to one user (multi-tab); Registry is what lets the
// gateway fan a per-user action out to every open tab.
//
// Lock ordering: Registry is acquired before VoiceRoomTable, which is
// acquired before PresenceTracker, which is acquired before a Session's own
// fields (spec.md §5). Never call into PresenceTracker or VoiceRoomTable
// while holding Registry's lock.
type Registry struct {
	mu sync.RWMutex

	sessions        map[string]*Session            // session id -> session
	sessionsByUser  map[string]map[string]*Session  // user id -> session id -> session
	channelSessions map[string]map[string]*Session  // channel id -> session id -> session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:        make(map[string]*Session),
		sessionsByUser:  make(map[string]map[string]*Session),
		channelSessions: make(map[string]map[string]*Session),
	}
}

// Add registers a freshly-created session before it authenticates.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

// Attach binds an authenticated session to a user id, recording a second
// (or third, ...) open tab if the user already has sessions. Returns the
// number of sessions the user now holds.
func (r *Registry) Attach(s *Session, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser, ok := r.sessionsByUser[userID]
	if !ok {
		byUser = make(map[string]*Session)
		r.sessionsByUser[userID] = byUser
	}
	byUser[s.id] = s
	return len(byUser)
}

// Detach removes a closed session from every index. It reports whether the
// owning user has no sessions left (i.e. the user went fully offline) —
// callers use that to decide whether to broadcast presence:update with the
// user removed, versus leaving them present for remaining tabs.
func (r *Registry) Detach(s *Session) (userWentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s.id)

	for channelID, members := range r.channelSessions {
		if _, ok := members[s.id]; ok {
			delete(members, s.id)
			if len(members) == 0 {
				delete(r.channelSessions, channelID)
			}
		}
	}

	userID := s.UserID()
	if userID == "" {
		return false
	}
	byUser, ok := r.sessionsByUser[userID]
	if !ok {
		return false
	}
	delete(byUser, s.id)
	if len(byUser) == 0 {
		delete(r.sessionsByUser, userID)
		return true
	}
	return false
}

func (r *Registry) ChannelAdd(s *Session, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channelSessions[channelID]
	if !ok {
		members = make(map[string]*Session)
		r.channelSessions[channelID] = members
	}
	members[s.id] = s
}

func (r *Registry) ChannelRemove(s *Session, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channelSessions[channelID]
	if !ok {
		return
	}
	delete(members, s.id)
	if len(members) == 0 {
		delete(r.channelSessions, channelID)
	}
}

// SessionsOfUser returns every open session (tab) for a user.
func (r *Registry) SessionsOfUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser, ok := r.sessionsByUser[userID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, s)
	}
	return out
}

// SessionCount reports how many open tabs a user currently holds.
func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessionsByUser[userID])
}

func (r *Registry) SessionsOfChannel(channelID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channelSessions[channelID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// IterateAllSessions invokes fn for every registered session (authenticated
// or not). Used by the idle sweep and by toAll broadcasts.
func (r *Registry) IterateAllSessions(fn func(*Session)) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}

// OnlineUserIDs returns every user id with at least one open session.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessionsByUser))
	for userID := range r.sessionsByUser {
		out = append(out, userID)
	}
	return out
}
