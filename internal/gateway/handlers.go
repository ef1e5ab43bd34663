package gateway

import (
	"context"
	"encoding/json"
	"time"

	"lattice/internal/apperr"
	"lattice/internal/models"
)

func decode[T any](raw json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	if err := validate.Struct(v); err != nil {
		return v, false
	}
	return v, true
}

func (g *Gateway) handleAuth(ctx context.Context, s *Session, raw json.RawMessage) {
	if s.IsAuthenticated() {
		g.sendError(s, apperr.CodeAlreadyAuthenticated, "session is already authenticated")
		return
	}

	payload, ok := decode[AuthPayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidAuth, "missing or malformed token")
		return
	}

	userID, err := g.tokens.Authenticate(payload.Token)
	if err != nil {
		g.sendError(s, apperr.CodeInvalidAuth, "invalid or expired token")
		return
	}

	user, err := g.users.FindByID(userID)
	if err != nil {
		g.sendError(s, apperr.CodeInvalidSession, "user not found")
		return
	}
	if user.Suspended() {
		g.sendError(s, apperr.CodeAccountSuspended, "account is suspended")
		return
	}

	if !s.Authenticate(user) {
		g.sendError(s, apperr.CodeAlreadyAuthenticated, "session is already authenticated")
		return
	}

	g.registry.Attach(s, user.ID)

	// A reconnect within the voice grace window cancels the pending
	// departure. VoiceRoomTable membership was never touched, but this
	// session's own voiceChannelID field was zero-valued on creation, so it
	// still needs to be restored before a voice:self-state or
	// voice:sfu:request frame from this tab would otherwise be wrongly
	// rejected as VOICE_NOT_JOINED (spec.md §4.8).
	g.grace.Cancel(user.ID)

	s.TrySend(newFrame(KindAuthOK, AuthOKPayload{UserID: user.ID}))
	g.broadcastPresence()
	g.restoreVoiceChannel(s, user.ID)
}

// restoreVoiceChannel re-attaches a reconnecting session to the voice
// channel VoiceRoomTable already has it present in, and sends a fresh
// voice:state snapshot for that channel — spec.md §4.8's auth row and the
// literal S1 scenario both require one voice:state frame per active voice
// channel after auth, possibly zero.
func (g *Gateway) restoreVoiceChannel(s *Session, userID string) {
	channelID := g.voice.ChannelOf(userID)
	if channelID == "" {
		return
	}

	muted, deafened, _ := g.voice.UpdateSelfState(userID, channelID, nil, nil)
	if g.registry.SessionCount(userID) > 1 {
		// Other open tabs already hold their own claims on the channel's
		// session count; this tab adds one of its own.
		g.voice.Join(s, channelID, muted, deafened)
	}
	s.SetVoiceChannel(channelID, muted, deafened)
	s.JoinChannel(channelID)
	g.registry.ChannelAdd(s, channelID)

	s.TrySend(newFrame(KindVoiceState, VoiceStatePayload{
		ChannelID:    channelID,
		Participants: g.voice.Snapshot(channelID),
	}))
}

func (g *Gateway) handlePresenceSet(s *Session, raw json.RawMessage) {
	payload, ok := decode[PresenceSetPayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidEvent, "invalid presence state")
		return
	}
	g.presence.SetSelfState(s, payload.State)
	g.broadcastPresence()
}

func (g *Gateway) handleChannelJoin(s *Session, raw json.RawMessage) {
	payload, ok := decode[ChannelJoinPayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidChannel, "invalid channel id")
		return
	}

	channel, err := g.channels.FindByID(payload.ChannelID)
	if err != nil {
		g.sendError(s, apperr.CodeChannelNotFound, "channel does not exist")
		return
	}
	if err := g.channels.Authorize(channel.ID, s.Role()); err != nil {
		code, message := channelAuthErrorParts(err)
		g.sendError(s, code, message)
		return
	}

	s.JoinChannel(channel.ID)
	g.registry.ChannelAdd(s, channel.ID)
	s.TrySend(newFrame(KindChannelJoined, ChannelJoinedPayload{ChannelID: channel.ID}))
}

func (g *Gateway) handleChannelLeave(s *Session, raw json.RawMessage) {
	payload, ok := decode[ChannelLeavePayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidChannel, "invalid channel id")
		return
	}

	s.LeaveChannel(payload.ChannelID)
	g.registry.ChannelRemove(s, payload.ChannelID)
	s.TrySend(newFrame(KindChannelLeft, ChannelLeftPayload{ChannelID: payload.ChannelID}))
}

func (g *Gateway) handleVoiceJoin(s *Session, raw json.RawMessage) {
	payload, ok := decode[VoiceJoinPayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidVoiceChannel, "invalid voice join payload")
		return
	}

	channel, err := g.channels.FindByID(payload.ChannelID)
	if err != nil || channel.Type != models.ChannelTypeVoice {
		g.sendError(s, apperr.CodeInvalidVoiceChannel, "not a voice channel")
		return
	}

	// Switching channels forces a leave of whatever voice channel the user
	// was already in, from any of their tabs (spec.md §4.3 — a user is only
	// ever in one at a time).
	if current := g.voice.ChannelOf(s.UserID()); current != "" && current != channel.ID {
		for _, other := range g.registry.SessionsOfUser(s.UserID()) {
			if other.VoiceChannelID() == current {
				other.SetVoiceChannel("", false, false)
			}
		}
		if g.voice.ForceLeave(s.UserID(), current) {
			g.teardownVoicePeer(s.UserID(), current)
		}
		g.broadcastVoiceState(current)
	}

	deafened := payload.Deafened
	muted := payload.Muted || deafened

	g.grace.Cancel(s.UserID())
	// SFU peer creation is lazy: it happens on the first SFU request
	// (get-rtp-capabilities/create-transport), not as a side effect of
	// joining, so firstSession only matters for logging here. A repeat join
	// from a tab that already holds this channel only updates mute/deafen.
	firstSession := false
	if s.VoiceChannelID() == channel.ID && g.voice.InChannel(s.UserID(), channel.ID) {
		muted, deafened, _ = g.voice.UpdateSelfState(s.UserID(), channel.ID, &muted, &deafened)
	} else {
		firstSession = g.voice.Join(s, channel.ID, muted, deafened)
	}
	s.SetVoiceChannel(channel.ID, muted, deafened)
	s.JoinChannel(channel.ID)
	g.registry.ChannelAdd(s, channel.ID)

	if firstSession {
		g.log.Debug("user joined voice channel", "component", "gateway", "channel_id", channel.ID, "user_id", s.UserID())
	}

	g.broadcastVoiceState(channel.ID)
}

func (g *Gateway) handleVoiceLeave(s *Session, raw json.RawMessage) {
	channelID := s.VoiceChannelID()
	if channelID == "" {
		return
	}
	if payload, ok := decode[VoiceLeavePayload](raw); ok && payload.ChannelID != "" && payload.ChannelID != channelID {
		return
	}
	g.leaveVoiceSession(s, channelID)
}

// leaveVoiceSession is the single-session leave path: it only tears down
// the user's room membership once their last session in the channel is
// gone, per the ordering rule in spec.md §5 — participant map mutation,
// then SFU peer removal, then broadcast.
func (g *Gateway) leaveVoiceSession(s *Session, channelID string) {
	s.SetVoiceChannel("", false, false)
	userID := s.UserID()
	if g.voice.Leave(userID, channelID) {
		g.teardownVoicePeer(userID, channelID)
	}
	g.broadcastVoiceState(channelID)
}

// leaveVoice is the grace-expiry path: the session is already gone, so
// there's no Session to clear voice state on.
func (g *Gateway) leaveVoice(userID, channelID string) {
	if g.voice.Leave(userID, channelID) {
		g.teardownVoicePeer(userID, channelID)
	}
	g.broadcastVoiceState(channelID)
}

func (g *Gateway) teardownVoicePeer(userID, channelID string) {
	if g.sfu.engine == nil {
		return
	}
	removed := g.sfu.engine.RemovePeer(channelID, userID)
	if len(removed) == 0 {
		return
	}
	members := g.voice.Snapshot(channelID)
	targets := make([]string, 0, len(members))
	for _, m := range members {
		targets = append(targets, m.UserID)
	}
	for _, descriptor := range removed {
		g.broadcaster.ToUsers(targets, newFrame(KindVoiceSfuEvent, VoiceSfuEventPayload{
			ChannelID: channelID,
			Event:     "producer-removed",
			Data: struct {
				UserID     string `json:"userId"`
				ProducerID string `json:"producerId"`
			}{descriptor.UserID, descriptor.ProducerID},
		}))
	}
}

func (g *Gateway) handleVoiceSelfState(s *Session, raw json.RawMessage) {
	channelID := s.VoiceChannelID()
	if channelID == "" {
		g.sendError(s, apperr.CodeVoiceNotJoined, "not joined to a voice channel")
		return
	}

	payload, ok := decode[VoiceSelfStatePayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidEvent, "invalid voice self-state payload")
		return
	}
	if payload.ChannelID != "" && payload.ChannelID != channelID {
		g.sendError(s, apperr.CodeVoiceNotJoined, "channel id does not match active voice channel")
		return
	}

	muted, deafened, ok := g.voice.UpdateSelfState(s.UserID(), channelID, payload.Muted, payload.Deafened)
	if !ok {
		g.sendError(s, apperr.CodeVoiceNotJoined, "not joined to a voice channel")
		return
	}
	s.SetVoiceChannel(channelID, muted, deafened)
	g.broadcastVoiceState(channelID)
}

func (g *Gateway) handleVoiceSfuRequest(s *Session, raw json.RawMessage) {
	payload, ok := decode[VoiceSfuRequestPayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidSFURequest, "invalid SFU request payload")
		return
	}
	response := g.sfu.Dispatch(s, payload)
	s.TrySend(newFrame(KindVoiceSfuResp, response))
}

func (g *Gateway) handleVoiceSignal(s *Session, raw json.RawMessage) {
	payload, ok := decode[VoiceSignalPayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidSignal, "invalid signal payload")
		return
	}

	if s.VoiceChannelID() != payload.ChannelID {
		g.sendError(s, apperr.CodeVoiceNotJoined, "not joined to this voice channel")
		return
	}

	switch g.limiter.Check(s, time.Now()) {
	case LimitSilent:
		return
	case LimitNotify:
		g.sendError(s, apperr.CodeVoiceSignalRateLimited, "signaling rate limit exceeded")
		return
	}

	if !g.voice.InChannel(payload.TargetUserID, payload.ChannelID) {
		g.sendError(s, apperr.CodeVoiceTargetNotAvailable, "target user is not in this voice channel")
		return
	}

	g.broadcaster.ToUser(payload.TargetUserID, newFrame(KindVoiceSignalOut, VoiceSignalOutPayload{
		ChannelID:  payload.ChannelID,
		FromUserID: s.UserID(),
		Data:       payload.Data,
	}))
}

func (g *Gateway) handleMessageSend(s *Session, raw json.RawMessage) {
	payload, ok := decode[MessageSendPayload](raw)
	if !ok {
		g.sendError(s, apperr.CodeInvalidEvent, "invalid message payload")
		return
	}
	if !s.InChannel(payload.ChannelID) {
		g.sendError(s, apperr.CodeChannelNotFound, "not joined to this channel")
		return
	}

	content := g.sanitize.Sanitize(payload.Content)
	if content == "" {
		return
	}

	message, err := g.messages.Create(payload.ChannelID, s.UserID(), content)
	if err != nil {
		g.sendError(s, apperr.CodeWSError, "failed to persist message")
		return
	}

	author, err := g.users.FindByID(s.UserID())
	if err != nil {
		g.sendError(s, apperr.CodeWSError, "failed to load author")
		return
	}

	g.broadcaster.ToChannelExcept(payload.ChannelID, s, newFrame(KindTypingStop, TypingEventPayload{
		ChannelID: payload.ChannelID,
		UserID:    s.UserID(),
	}))

	g.broadcaster.ToChannel(payload.ChannelID, newFrame(KindMessageNew, MessageNewPayload{
		Message: g.messageView(message, author),
	}))
}

func (g *Gateway) handleTypingStart(s *Session, raw json.RawMessage) {
	payload, ok := decode[TypingStartPayload](raw)
	if !ok || !s.InChannel(payload.ChannelID) {
		return
	}
	g.broadcaster.ToChannelExcept(payload.ChannelID, s, newFrame(KindTypingStart, TypingEventPayload{
		ChannelID: payload.ChannelID,
		UserID:    s.UserID(),
		Username:  s.Username(),
	}))
}

func (g *Gateway) handleTypingStop(s *Session, raw json.RawMessage) {
	payload, ok := decode[TypingStopPayload](raw)
	if !ok || !s.InChannel(payload.ChannelID) {
		return
	}
	g.broadcaster.ToChannelExcept(payload.ChannelID, s, newFrame(KindTypingStop, TypingEventPayload{
		ChannelID: payload.ChannelID,
		UserID:    s.UserID(),
	}))
}

// channelAuthErrorParts relays a typed AppError from the channel collaborator
// verbatim, the same pattern sfuErrorParts uses for SFU errors.
func channelAuthErrorParts(err error) (code, message string) {
	if appErr, ok := apperr.As(err); ok {
		return appErr.Code, appErr.Message
	}
	return apperr.CodeForbidden, err.Error()
}

// broadcastVoiceState reaches every connected session, not just channel
// subscribers — a sidebar that isn't currently viewing this voice channel
// still needs to know who's in it (spec.md §4.7).
func (g *Gateway) broadcastVoiceState(channelID string) {
	g.broadcaster.ToAll(newFrame(KindVoiceState, VoiceStatePayload{
		ChannelID:    channelID,
		Participants: g.voice.Snapshot(channelID),
	}))
}
