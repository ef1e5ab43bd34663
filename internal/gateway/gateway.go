// Package gateway implements the realtime WebSocket hub: session
// bookkeeping, presence aggregation, voice room membership, SFU request
// dispatch, signaling rate limiting and frame broadcast. It never touches
// gorilla/websocket directly — Gateway drives an already-accepted
// connection through the transport's read/write pumps (internal/transport/ws).
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"lattice/internal/apperr"
	"lattice/internal/models"
)

var validate = validator.New()

// Gateway wires every gateway collaborator together and is the single
// entry point a transport layer calls into for each connection.
type Gateway struct {
	registry    *Registry
	presence    *PresenceTracker
	voice       *VoiceRoomTable
	grace       *GraceTimer
	limiter     *Limiter
	broadcaster *Broadcaster
	sfu         *SfuDispatcher

	users    UserStore
	channels ChannelStore
	messages MessageStore
	tokens   TokenVerifier
	sanitize Sanitizer

	log *slog.Logger

	stopSweep chan struct{}
}

type Config struct {
	Users    UserStore
	Channels ChannelStore
	Messages MessageStore
	Settings SettingsProvider
	Tokens   TokenVerifier
	Sanitize Sanitizer
	SFU      SFUEngine

	SignalRateWindow time.Duration
	SignalRateBudget int

	Log *slog.Logger
}

func New(cfg Config) *Gateway {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	registry := NewRegistry()
	voice := NewVoiceRoomTable()
	broadcaster := NewBroadcaster(registry)

	g := &Gateway{
		registry:    registry,
		presence:    NewPresenceTracker(registry, cfg.Settings, log),
		voice:       voice,
		grace:       NewGraceTimer(),
		limiter:     NewLimiter(cfg.SignalRateWindow, cfg.SignalRateBudget),
		broadcaster: broadcaster,
		sfu:         NewSfuDispatcher(cfg.SFU, voice, broadcaster),
		users:       cfg.Users,
		channels:    cfg.Channels,
		messages:    cfg.Messages,
		tokens:      cfg.Tokens,
		sanitize:    cfg.Sanitize,
		log:         log,
		stopSweep:   make(chan struct{}),
	}
	return g
}

// Run starts the periodic idle sweep. It blocks until Stop is called, so
// callers should run it in its own goroutine.
func (g *Gateway) Run(ctx context.Context) {
	g.presence.RefreshIdleThreshold(ctx)

	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopSweep:
			return
		case <-ticker.C:
			if g.presence.SweepIdle(time.Now()) {
				g.broadcastPresence()
			}
		}
	}
}

func (g *Gateway) Stop() {
	close(g.stopSweep)
}

// NotifySettingsUpdated re-polls the idle threshold — called by whatever
// observes a settings-updated system event.
func (g *Gateway) NotifySettingsUpdated(ctx context.Context) {
	g.presence.RefreshIdleThreshold(ctx)
}

// NotifyProfileUpdated re-reads a user's identity snapshot from the user
// collaborator and pushes it onto every open tab that user holds, then
// rebroadcasts presence so other clients see the new username/avatar —
// called by whatever observes a profile-changed notification from outside
// the gateway (spec.md §3's "external profile-update notifications").
func (g *Gateway) NotifyProfileUpdated(userID string) {
	user, err := g.users.FindByID(userID)
	if err != nil {
		g.log.Warn("profile refresh failed to load user", "component", "gateway", "user_id", userID, "error", err)
		return
	}
	for _, s := range g.registry.SessionsOfUser(userID) {
		s.RefreshProfile(user)
	}
	g.broadcastPresence()
}

// NewConnection registers a fresh, unauthenticated session for an accepted
// socket. The transport owns reading/writing; it calls HandleFrame for
// every inbound frame and Disconnect exactly once when the socket closes.
func (g *Gateway) NewConnection() *Session {
	s := NewSession()
	g.registry.Add(s)
	return s
}

// HandleFrame decodes and dispatches one inbound frame. It never returns an
// error to the transport — every failure is translated into an `error`
// frame written back to the session, per spec.md §7.
func (g *Gateway) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		g.sendError(s, apperr.CodeInvalidEvent, "malformed frame")
		return
	}

	if f.Type != KindAuth {
		g.presence.NoteActivity(s)
	}

	switch f.Type {
	case KindAuth:
		g.handleAuth(ctx, s, f.Payload)
	case KindPresenceSet:
		g.requireAuth(s, func() { g.handlePresenceSet(s, f.Payload) })
	case KindChannelJoin:
		g.requireAuth(s, func() { g.handleChannelJoin(s, f.Payload) })
	case KindChannelLeave:
		g.requireAuth(s, func() { g.handleChannelLeave(s, f.Payload) })
	case KindVoiceJoin:
		g.requireAuth(s, func() { g.handleVoiceJoin(s, f.Payload) })
	case KindVoiceLeave:
		g.requireAuth(s, func() { g.handleVoiceLeave(s, f.Payload) })
	case KindVoiceSelfState:
		g.requireAuth(s, func() { g.handleVoiceSelfState(s, f.Payload) })
	case KindVoiceSfuRequest:
		g.requireAuth(s, func() { g.handleVoiceSfuRequest(s, f.Payload) })
	case KindVoiceSignal:
		g.requireAuth(s, func() { g.handleVoiceSignal(s, f.Payload) })
	case KindMessageSend:
		g.requireAuth(s, func() { g.handleMessageSend(s, f.Payload) })
	case KindTypingStart:
		g.requireAuth(s, func() { g.handleTypingStart(s, f.Payload) })
	case KindTypingStop:
		g.requireAuth(s, func() { g.handleTypingStop(s, f.Payload) })
	case KindPing:
		s.TrySend(newFrame(KindPong, struct{}{}))
	default:
		g.sendError(s, apperr.CodeUnknownEvent, "unrecognized frame type")
	}
}

func (g *Gateway) requireAuth(s *Session, fn func()) {
	if !s.IsAuthenticated() {
		g.sendError(s, apperr.CodeUnauthorized, "authenticate before sending this frame")
		return
	}
	fn()
}

// Disconnect tears down everything owned by a closed session: registry
// membership, and — if the user's last tab just closed — arms the voice
// grace timer instead of immediately dropping their voice participation.
func (g *Gateway) Disconnect(s *Session) {
	s.Close()

	voiceChannelID := s.VoiceChannelID()
	userID := s.UserID()

	userWentOffline := g.registry.Detach(s)
	for _, channelID := range s.Channels() {
		g.registry.ChannelRemove(s, channelID)
	}

	if userWentOffline && userID != "" {
		g.broadcastPresence()
	}

	if voiceChannelID == "" || userID == "" {
		return
	}
	if g.registry.SessionCount(userID) > 0 {
		// Other tabs still open: this tab still had its own claim on the
		// voice channel's session count, and that needs releasing now,
		// independent of whatever the grace timer ends up doing for the
		// user's last tab. Only tears down the SFU peer and removes the
		// participant if this was that channel's last session too.
		g.leaveVoice(userID, voiceChannelID)
		return
	}

	g.grace.Arm(userID, voiceChannelID, g.expireVoiceGrace)
}

func (g *Gateway) expireVoiceGrace(userID, channelID string) {
	if g.registry.SessionCount(userID) > 0 {
		// A reconnect raced the timer; the new session's voice:join (if any)
		// already re-armed or cleared state.
		return
	}
	g.leaveVoice(userID, channelID)
}

func (g *Gateway) sendError(s *Session, code, message string) {
	s.TrySend(newFrame(KindError, ErrorPayload{Code: code, Message: message}))
}

func (g *Gateway) broadcastPresence() {
	g.broadcaster.ToAll(newFrame(KindPresenceUpdate, PresenceUpdatePayload{
		Users: g.presence.ComputeSnapshot(),
	}))
}

func (g *Gateway) messageView(m *models.Message, author *models.User) MessageView {
	return MessageView{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Author: MessageAuthor{
			ID:        author.ID,
			Username:  author.Username,
			AvatarURL: author.GetAvatarURL(),
		},
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
}
