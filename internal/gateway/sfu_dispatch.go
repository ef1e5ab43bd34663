package gateway

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"

	"lattice/internal/apperr"
	"lattice/internal/sfumedia"
)

// SfuDispatcher turns a validated voice:sfu:request frame into a call
// against SFUEngine and always responds exactly once with the request's
// requestId, per spec.md §4.6 — including on every error path, so a client
// never has an in-flight request with no resolution.
type SfuDispatcher struct {
	engine       SFUEngine
	voice        *VoiceRoomTable
	broadcaster  *Broadcaster
}

func NewSfuDispatcher(engine SFUEngine, voice *VoiceRoomTable, broadcaster *Broadcaster) *SfuDispatcher {
	d := &SfuDispatcher{engine: engine, voice: voice, broadcaster: broadcaster}
	if engine != nil {
		engine.OnWorkerDied(d.handleWorkerDied)
		engine.OnRenegotiationNeeded(d.handleRenegotiationNeeded)
		engine.OnICECandidateTrickle(d.handleICECandidateTrickle)
	}
	return d
}

// handleRenegotiationNeeded relays a server-initiated SDP offer (e.g. after
// a new Consume call attached a track) to the affected user as a
// voice:sfu:event, since renegotiation isn't something the client asked
// for with a requestId of its own.
func (d *SfuDispatcher) handleRenegotiationNeeded(channelID, userID, offerSDP string) {
	d.broadcaster.ToUser(userID, newFrame(KindVoiceSfuEvent, VoiceSfuEventPayload{
		ChannelID: channelID,
		Event:     "renegotiate",
		Data: struct {
			SDP string `json:"sdp"`
		}{offerSDP},
	}))
}

func (d *SfuDispatcher) handleICECandidateTrickle(channelID, userID string, candidate webrtc.ICECandidateInit) {
	d.broadcaster.ToUser(userID, newFrame(KindVoiceSfuEvent, VoiceSfuEventPayload{
		ChannelID: channelID,
		Event:     "ice-candidate",
		Data:      candidate,
	}))
}

// Dispatch executes one SFU action for an authenticated, voice-joined
// session and returns the voice:sfu:response payload to send back.
func (d *SfuDispatcher) Dispatch(s *Session, req VoiceSfuRequestPayload) VoiceSfuResponsePayload {
	fail := func(err error) VoiceSfuResponsePayload {
		code, message := sfuErrorParts(err)
		return VoiceSfuResponsePayload{RequestID: req.RequestID, OK: false, Code: code, Message: message}
	}

	if d.engine == nil || !d.engine.Enabled() {
		return fail(apperr.New(apperr.CodeSFUDisabled, "voice infrastructure is disabled"))
	}

	userID := s.UserID()
	if s.VoiceChannelID() != req.ChannelID || !d.voice.InChannel(userID, req.ChannelID) {
		return fail(apperr.New(apperr.CodeVoiceNotJoined, "not joined to this voice channel"))
	}

	data, err := d.execute(userID, req)
	if err != nil {
		return fail(err)
	}
	return VoiceSfuResponsePayload{RequestID: req.RequestID, OK: true, Data: data}
}

func (d *SfuDispatcher) execute(userID string, req VoiceSfuRequestPayload) (json.RawMessage, error) {
	channelID := req.ChannelID

	switch req.Action {
	case "get-rtp-capabilities":
		return toRaw(d.engine.RTPCapabilities(channelID, userID))

	case "create-transport":
		var params struct {
			Direction string `json:"direction"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid create-transport payload")
		}
		direction := sfumedia.DirectionRecv
		if params.Direction == "send" {
			direction = sfumedia.DirectionSend
		}
		return toRaw(d.engine.CreateTransport(channelID, userID, direction))

	case "connect-transport":
		var params struct {
			TransportID     string          `json:"transportId"`
			DtlsParameters  json.RawMessage `json:"dtlsParameters"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil || params.TransportID == "" {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid connect-transport payload")
		}
		return toRaw(d.engine.ConnectTransport(channelID, userID, params.TransportID, params.DtlsParameters))

	case "produce":
		var params struct {
			TransportID string `json:"transportId"`
			Kind        string `json:"kind"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil || params.TransportID == "" {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid produce payload")
		}
		kind := sfumedia.ProducerKindAudio
		if params.Kind == "video" {
			kind = sfumedia.ProducerKindVideo
		}
		producerID, err := d.engine.Produce(channelID, userID, params.TransportID, kind)
		if err != nil {
			return nil, err
		}
		d.broadcastProducerAdded(channelID, userID, producerID, kind)
		return toRaw(struct {
			ProducerID string `json:"producerId"`
		}{producerID}, nil)

	case "close-producer":
		var params struct {
			ProducerID string `json:"producerId"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil || params.ProducerID == "" {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid close-producer payload")
		}
		if err := d.engine.CloseProducer(channelID, userID, params.ProducerID); err != nil {
			return nil, err
		}
		d.broadcastProducerRemoved(channelID, userID, params.ProducerID)
		return toRaw(struct{}{}, nil)

	case "list-producers":
		var params struct {
			ExcludeSelf bool `json:"excludeSelf"`
		}
		json.Unmarshal(req.Data, &params)
		descriptors, err := d.engine.ListProducers(channelID, userID, params.ExcludeSelf)
		if err != nil {
			return nil, err
		}
		return toRaw(descriptors, nil)

	case "consume":
		var params struct {
			TransportID string `json:"transportId"`
			ProducerID  string `json:"producerId"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil || params.TransportID == "" || params.ProducerID == "" {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid consume payload")
		}
		return toRaw(d.engine.Consume(channelID, userID, params.TransportID, params.ProducerID))

	case "resume-consumer":
		var params struct {
			ConsumerID string `json:"consumerId"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil || params.ConsumerID == "" {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid resume-consumer payload")
		}
		if err := d.engine.ResumeConsumer(channelID, userID, params.ConsumerID); err != nil {
			return nil, err
		}
		return toRaw(struct{}{}, nil)

	case "restart-ice":
		var params struct {
			TransportID string `json:"transportId"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil || params.TransportID == "" {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid restart-ice payload")
		}
		return toRaw(d.engine.RestartICE(channelID, userID, params.TransportID))

	case "get-transport-stats":
		var params struct {
			TransportID string `json:"transportId"`
		}
		if err := json.Unmarshal(req.Data, &params); err != nil || params.TransportID == "" {
			return nil, apperr.New(apperr.CodeInvalidSFURequest, "invalid get-transport-stats payload")
		}
		return toRaw(d.engine.TransportStats(channelID, userID, params.TransportID))

	default:
		return nil, apperr.New(apperr.CodeInvalidSFURequest, "unknown SFU action")
	}
}

func (d *SfuDispatcher) broadcastProducerAdded(channelID, userID, producerID string, kind sfumedia.ProducerKind) {
	members := d.voice.Snapshot(channelID)
	targets := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID != userID {
			targets = append(targets, m.UserID)
		}
	}
	d.broadcaster.ToUsers(targets, newFrame(KindVoiceSfuEvent, VoiceSfuEventPayload{
		ChannelID: channelID,
		Event:     "producer-added",
		Data: struct {
			UserID     string `json:"userId"`
			ProducerID string `json:"producerId"`
			Kind       string `json:"kind"`
		}{userID, producerID, string(kind)},
	}))
}

func (d *SfuDispatcher) broadcastProducerRemoved(channelID, userID, producerID string) {
	members := d.voice.Snapshot(channelID)
	targets := make([]string, 0, len(members))
	for _, m := range members {
		targets = append(targets, m.UserID)
	}
	d.broadcaster.ToUsers(targets, newFrame(KindVoiceSfuEvent, VoiceSfuEventPayload{
		ChannelID: channelID,
		Event:     "producer-removed",
		Data: struct {
			UserID     string `json:"userId"`
			ProducerID string `json:"producerId"`
		}{userID, producerID},
	}))
}

// handleWorkerDied invalidates an entire voice room when its SFU worker
// dies: every participant is treated as force-left (spec.md §4.6), and the
// resulting empty voice:state is broadcast to whoever's left watching the
// channel (none, after this, but the broadcast still needs to reach
// everyone who had it open as a sidebar).
func (d *SfuDispatcher) handleWorkerDied(channelID string) {
	departed := d.voice.ForceLeaveAll(channelID)
	if len(departed) == 0 {
		return
	}
	d.broadcaster.ToAll(newFrame(KindVoiceState, VoiceStatePayload{
		ChannelID:    channelID,
		Participants: []VoiceParticipant{},
	}))
}

func toRaw(payload any, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return b, nil
}

func sfuErrorParts(err error) (code, message string) {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}

	var peerErr *sfumedia.PeerError
	if errors.As(err, &peerErr) {
		message := peerErr.Message
		if message == "" {
			message = peerErr.Error()
		}
		return peerErr.Code, message
	}

	return apperr.CodeSFURequestFailed, err.Error()
}
