package sfumedia

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

type rtpCapabilities struct {
	Codecs    []string `json:"codecs"`
	AudioOnly bool     `json:"audioOnly"`
}

// RTPCapabilities reports the codec set this room negotiates, so the client
// knows whether to offer a video m-line at all.
func (e *Engine) RTPCapabilities(channelID, userID string) (RawPayload, error) {
	if !e.enabled {
		return nil, fatal(userID, "RTPCapabilities", "SFU_DISABLED", nil)
	}
	codecs := []string{webrtc.MimeTypeOpus}
	if !e.audioOnly {
		codecs = append(codecs, webrtc.MimeTypeVP9)
	}
	return json.Marshal(rtpCapabilities{Codecs: codecs, AudioOnly: e.audioOnly})
}

type transportInfo struct {
	ID        string    `json:"transportId"`
	Direction Direction `json:"direction"`
}

// CreateTransport allocates a send or recv transport handle for the peer.
// Both directions ride the peer's single underlying PeerConnection; the
// transport record exists so the dispatcher can address connect/stats calls
// per-direction the way a mediasoup client expects.
func (e *Engine) CreateTransport(channelID, userID string, direction Direction) (RawPayload, error) {
	if !e.enabled {
		return nil, fatal(userID, "CreateTransport", "SFU_DISABLED", nil)
	}
	p, err := e.peerFor(channelID, userID)
	if err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, closed(userID, "CreateTransport")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.transports) >= maxTransportsPerPeer {
		return nil, transient(userID, "CreateTransport", "SFU_TRANSPORT_LIMIT", ErrTransportLimit)
	}

	id := uuid.NewString()
	p.transports[id] = &transport{id: id, direction: direction}

	return json.Marshal(transportInfo{ID: id, Direction: direction})
}

type connectParams struct {
	SDP string `json:"sdp"`
}

type connectResult struct {
	SDP string `json:"sdp,omitempty"`
}

// ConnectTransport carries the client's SDP offer (send transport) or
// answer (recv transport) under the mediasoup-shaped "dtlsParameters" call;
// the gateway never inspects the payload, it just threads it through.
func (e *Engine) ConnectTransport(channelID, userID, transportID string, dtlsParameters RawPayload) (RawPayload, error) {
	p := e.getPeer(channelID, userID)
	if p == nil {
		return nil, fatal(userID, "ConnectTransport", "SFU_TRANSPORT_NOT_FOUND", ErrPeerNotFound)
	}
	if p.isClosed() {
		return nil, closed(userID, "ConnectTransport")
	}

	p.mu.Lock()
	t, ok := p.transports[transportID]
	p.mu.Unlock()
	if !ok {
		return nil, transient(userID, "ConnectTransport", "SFU_TRANSPORT_NOT_FOUND", ErrTransportNotFound)
	}

	var params connectParams
	if err := json.Unmarshal(dtlsParameters, &params); err != nil || params.SDP == "" {
		return nil, transient(userID, "ConnectTransport", "INVALID_SFU_REQUEST", fmt.Errorf("missing sdp"))
	}

	if t.direction == DirectionSend {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: params.SDP}
		if err := p.conn.SetRemoteDescription(offer); err != nil {
			return nil, transient(userID, "ConnectTransport.SetRemoteDescription", "SFU_REQUEST_FAILED", err)
		}
		answer, err := p.conn.CreateAnswer(nil)
		if err != nil {
			return nil, transient(userID, "ConnectTransport.CreateAnswer", "SFU_REQUEST_FAILED", err)
		}
		if err := p.conn.SetLocalDescription(answer); err != nil {
			return nil, transient(userID, "ConnectTransport.SetLocalDescription", "SFU_REQUEST_FAILED", err)
		}
		p.mu.Lock()
		t.connected = true
		p.mu.Unlock()
		return json.Marshal(connectResult{SDP: answer.SDP})
	}

	// recv transport: the client is answering a server-initiated offer.
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: params.SDP}
	if err := p.conn.SetRemoteDescription(answer); err != nil {
		return nil, transient(userID, "ConnectTransport.SetRemoteDescription", "SFU_REQUEST_FAILED", err)
	}
	p.mu.Lock()
	t.connected = true
	p.mu.Unlock()
	return json.Marshal(connectResult{})
}

// RestartICE forces a fresh ICE gathering pass on the peer's connection and
// returns a new server offer the client must answer through ConnectTransport.
func (e *Engine) RestartICE(channelID, userID, transportID string) (RawPayload, error) {
	p := e.getPeer(channelID, userID)
	if p == nil {
		return nil, fatal(userID, "RestartICE", "SFU_TRANSPORT_NOT_FOUND", ErrPeerNotFound)
	}
	if p.isClosed() {
		return nil, closed(userID, "RestartICE")
	}

	p.mu.Lock()
	_, ok := p.transports[transportID]
	p.mu.Unlock()
	if !ok {
		return nil, transient(userID, "RestartICE", "SFU_TRANSPORT_NOT_FOUND", ErrTransportNotFound)
	}

	offer, err := p.conn.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return nil, transient(userID, "RestartICE", "SFU_REQUEST_FAILED", err)
	}
	if err := p.conn.SetLocalDescription(offer); err != nil {
		return nil, transient(userID, "RestartICE", "SFU_REQUEST_FAILED", err)
	}
	return json.Marshal(connectResult{SDP: offer.SDP})
}

type transportStats struct {
	ConnectionState string `json:"connectionState"`
	ICEState        string `json:"iceState"`
}

func (e *Engine) TransportStats(channelID, userID, transportID string) (RawPayload, error) {
	p := e.getPeer(channelID, userID)
	if p == nil {
		return nil, fatal(userID, "TransportStats", "SFU_TRANSPORT_NOT_FOUND", ErrPeerNotFound)
	}

	p.mu.RLock()
	_, ok := p.transports[transportID]
	p.mu.RUnlock()
	if !ok {
		return nil, transient(userID, "TransportStats", "SFU_TRANSPORT_NOT_FOUND", ErrTransportNotFound)
	}

	return json.Marshal(transportStats{
		ConnectionState: p.conn.ConnectionState().String(),
		ICEState:        p.conn.ICEConnectionState().String(),
	})
}
