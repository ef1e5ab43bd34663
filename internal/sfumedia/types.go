// Package sfumedia is the concrete SFU collaborator: a pion/webrtc-backed
// media router exposing the mediasoup-shaped capability set the gateway's
// SfuDispatcher depends on (rooms, per-user peers, send/recv transports,
// producers, consumers). The gateway only ever calls through the narrow
// gateway.SFUEngine interface this package implements.
package sfumedia

import "encoding/json"

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

type ProducerKind string

const (
	ProducerKindAudio ProducerKind = "audio"
	ProducerKindVideo ProducerKind = "video"
)

// ProducerDescriptor identifies one producer for producer-added/removed
// broadcasts; it never carries RTP parameters, only enough to address it.
type ProducerDescriptor struct {
	ProducerID string       `json:"producerId"`
	UserID     string       `json:"userId"`
	Kind       ProducerKind `json:"kind"`
}

// RawPayload is the opaque mediasoup-client-shaped JSON the gateway passes
// through between client and collaborator without interpreting it.
type RawPayload = json.RawMessage
