package sfumedia

import (
	"github.com/google/uuid"
)

// Produce registers that the peer's send transport is now carrying a
// producer of the given kind. The actual RTP track is attached by the
// PeerConnection's OnTrack callback (see peer.go); this call only performs
// admission control and hands back the producer's announce-facing ID.
func (e *Engine) Produce(channelID, userID, transportID string, kind ProducerKind) (string, error) {
	if kind == ProducerKindVideo && e.audioOnly {
		return "", transient(userID, "Produce", "SFU_AUDIO_ONLY", ErrAudioOnly)
	}

	p := e.getPeer(channelID, userID)
	if p == nil {
		return "", fatal(userID, "Produce", "SFU_TRANSPORT_NOT_FOUND", ErrPeerNotFound)
	}
	if p.isClosed() {
		return "", closed(userID, "Produce")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.transports[transportID]
	if !ok || t.direction != DirectionSend {
		return "", transient(userID, "Produce", "SFU_TRANSPORT_NOT_FOUND", ErrTransportNotFound)
	}
	if len(p.producers) >= maxProducersPerPeer {
		return "", transient(userID, "Produce", "SFU_PRODUCER_LIMIT", ErrProducerLimit)
	}

	id := uuid.NewString()
	p.producers[id] = &localProducer{id: id, kind: kind}
	return id, nil
}

func (e *Engine) CloseProducer(channelID, userID, producerID string) error {
	p := e.getPeer(channelID, userID)
	if p == nil {
		return fatal(userID, "CloseProducer", "SFU_TRANSPORT_NOT_FOUND", ErrPeerNotFound)
	}

	p.mu.Lock()
	_, ok := p.producers[producerID]
	if ok {
		delete(p.producers, producerID)
	}
	p.mu.Unlock()

	if !ok {
		return transient(userID, "CloseProducer", "SFU_TRANSPORT_NOT_FOUND", ErrProducerNotFound)
	}
	return nil
}

// ListProducers enumerates live producers across the room, optionally
// excluding the requester's own.
func (e *Engine) ListProducers(channelID, userID string, excludeSelf bool) ([]ProducerDescriptor, error) {
	r := e.roomFor(channelID)

	e.mu.RLock()
	peers := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	e.mu.RUnlock()

	var out []ProducerDescriptor
	for _, p := range peers {
		if excludeSelf && p.userID == userID {
			continue
		}
		out = append(out, p.producerDescriptors()...)
	}
	return out, nil
}

// Consume subscribes the requesting peer's recv transport to another peer's
// producer, attaching the source's forwarded local track and triggering a
// renegotiation offer to the consumer.
func (e *Engine) Consume(channelID, userID, transportID, producerID string) (RawPayload, error) {
	if userID == "" {
		return nil, transient(userID, "Consume", "INVALID_SFU_REQUEST", nil)
	}

	consumer := e.getPeer(channelID, userID)
	if consumer == nil {
		return nil, fatal(userID, "Consume", "SFU_TRANSPORT_NOT_FOUND", ErrPeerNotFound)
	}
	if consumer.isClosed() {
		return nil, closed(userID, "Consume")
	}

	consumer.mu.RLock()
	t, ok := consumer.transports[transportID]
	consumer.mu.RUnlock()
	if !ok || t.direction != DirectionRecv {
		return nil, transient(userID, "Consume", "SFU_TRANSPORT_NOT_FOUND", ErrTransportNotFound)
	}

	source, sourceKind := e.findProducer(channelID, producerID)
	if source == nil {
		return nil, transient(userID, "Consume", "SFU_CANNOT_CONSUME", ErrProducerNotFound)
	}
	if source.userID == userID {
		return nil, transient(userID, "Consume", "SFU_CANNOT_CONSUME", ErrCannotConsume)
	}

	track := source.localTrackFor(sourceKind)
	if track == nil {
		return nil, transient(userID, "Consume", "SFU_CANNOT_CONSUME", ErrCannotConsume)
	}

	sender, err := consumer.conn.AddTrack(track)
	if err != nil {
		return nil, transient(userID, "Consume", "SFU_REQUEST_FAILED", err)
	}

	consumerID := uuid.NewString()
	consumer.mu.Lock()
	consumer.consumers[consumerID] = &remoteConsumption{id: consumerID, producerID: producerID, sender: sender}
	consumer.mu.Unlock()

	if e.onRenegotiate != nil {
		offer, err := consumer.conn.CreateOffer(nil)
		if err == nil && consumer.conn.SetLocalDescription(offer) == nil {
			e.onRenegotiate(channelID, userID, offer.SDP)
		}
	}

	return marshalConsumer(consumerID, producerID, sourceKind)
}

// ResumeConsumer is a no-op on this engine: tracks forward continuously once
// attached, there is no separate paused state to lift. Kept so the
// capability surface matches what a real mediasoup deployment exposes.
func (e *Engine) ResumeConsumer(channelID, userID, consumerID string) error {
	p := e.getPeer(channelID, userID)
	if p == nil {
		return fatal(userID, "ResumeConsumer", "SFU_TRANSPORT_NOT_FOUND", ErrPeerNotFound)
	}
	p.mu.RLock()
	_, ok := p.consumers[consumerID]
	p.mu.RUnlock()
	if !ok {
		return transient(userID, "ResumeConsumer", "SFU_TRANSPORT_NOT_FOUND", ErrProducerNotFound)
	}
	return nil
}

func (e *Engine) findProducer(channelID, producerID string) (*peer, ProducerKind) {
	r := e.roomFor(channelID)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range r.peers {
		p.mu.RLock()
		prod, ok := p.producers[producerID]
		p.mu.RUnlock()
		if ok {
			return p, prod.kind
		}
	}
	return nil, ""
}
