package gateway

import (
	"context"

	"lattice/internal/models"
	"lattice/internal/sfumedia"
)

// UserStore is the narrow view of user persistence the gateway needs at
// handshake time and for profile-snapshot refreshes.
type UserStore interface {
	FindByID(id string) (*models.User, error)
}

// ChannelStore validates channel access and kind without exposing CRUD.
type ChannelStore interface {
	FindByID(id string) (*models.Channel, error)
	// Authorize reports whether a session holding role may join this
	// channel, delegating the role-gated moderation check to the
	// collaborator rather than hardcoding it in the gateway (spec.md §3's
	// role ladder).
	Authorize(channelID string, role models.Role) error
}

// MessageStore persists chat messages; history replay is an HTTP concern,
// not the gateway's.
type MessageStore interface {
	Create(channelID, authorID, content string) (*models.Message, error)
}

// SettingsProvider is consulted on boot and on a settings-updated broadcast
// for the presence idle threshold; outages are tolerated with the cached
// value (spec.md §7 recovery policy).
type SettingsProvider interface {
	IdleTimeoutMinutes(ctx context.Context) (int, error)
}

// TokenVerifier authenticates the bearer token carried on an `auth` frame.
type TokenVerifier interface {
	Authenticate(token string) (userID string, err error)
}

// Sanitizer strips unsafe markup from user-authored message content before
// persistence and broadcast.
type Sanitizer interface {
	Sanitize(html string) string
}

// SFUEngine is the narrow mediasoup-shaped contract the SfuDispatcher
// depends on. internal/sfumedia.Engine is the concrete implementation; the
// gateway never imports pion or touches a PeerConnection directly.
type SFUEngine interface {
	Enabled() bool
	RTPCapabilities(channelID, userID string) (sfumedia.RawPayload, error)
	CreateTransport(channelID, userID string, direction sfumedia.Direction) (sfumedia.RawPayload, error)
	ConnectTransport(channelID, userID, transportID string, data sfumedia.RawPayload) (sfumedia.RawPayload, error)
	Produce(channelID, userID, transportID string, kind sfumedia.ProducerKind) (string, error)
	CloseProducer(channelID, userID, producerID string) error
	ListProducers(channelID, userID string, excludeSelf bool) ([]sfumedia.ProducerDescriptor, error)
	Consume(channelID, userID, transportID, producerID string) (sfumedia.RawPayload, error)
	ResumeConsumer(channelID, userID, consumerID string) error
	RestartICE(channelID, userID, transportID string) (sfumedia.RawPayload, error)
	TransportStats(channelID, userID, transportID string) (sfumedia.RawPayload, error)
	RemovePeer(channelID, userID string) []sfumedia.ProducerDescriptor
	OnWorkerDied(fn sfumedia.WorkerDiedFunc)
	OnRenegotiationNeeded(fn sfumedia.RenegotiationFunc)
	OnICECandidateTrickle(fn sfumedia.ICECandidateFunc)
}
