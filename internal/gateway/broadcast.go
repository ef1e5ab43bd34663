package gateway

// Broadcaster fans frames out to sessions via Registry lookups. Every
// method marshals its payload once and writes the same Frame value to each
// recipient — TrySend is non-blocking per session, so one slow socket never
// stalls delivery to the rest.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// ToChannel delivers a frame to every session currently joined to a text
// channel.
func (b *Broadcaster) ToChannel(channelID string, f Frame) {
	for _, s := range b.registry.SessionsOfChannel(channelID) {
		s.TrySend(f)
	}
}

// ToChannelExcept is ToChannel with the originating session skipped — used
// for typing indicators, where a client never needs an echo of its own
// signal.
func (b *Broadcaster) ToChannelExcept(channelID string, exclude *Session, f Frame) {
	for _, s := range b.registry.SessionsOfChannel(channelID) {
		if s == exclude {
			continue
		}
		s.TrySend(f)
	}
}

// ToUsers delivers a frame to every open session (every tab) of each given
// user id — deduplicated against a user appearing twice in the slice.
func (b *Broadcaster) ToUsers(userIDs []string, f Frame) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		for _, s := range b.registry.SessionsOfUser(userID) {
			s.TrySend(f)
		}
	}
}

// ToUser delivers a frame to every tab of a single user.
func (b *Broadcaster) ToUser(userID string, f Frame) {
	for _, s := range b.registry.SessionsOfUser(userID) {
		s.TrySend(f)
	}
}

// ToAll delivers a frame to every authenticated session on the gateway —
// used for presence:update and voice:state broadcasts,
// since the sidebar needs voice state even for channels a session hasn't
// joined (spec.md §4.7).
func (b *Broadcaster) ToAll(f Frame) {
	b.registry.IterateAllSessions(func(s *Session) {
		if !s.IsAuthenticated() {
			return
		}
		s.TrySend(f)
	})
}
