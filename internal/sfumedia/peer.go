package sfumedia

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

type peerState int32

const (
	peerStateConnecting peerState = iota
	peerStateActive
	peerStateClosing
	peerStateClosed
)

const (
	peerCloseTimeout  = 3 * time.Second
	rtpBufferBytes    = 1500
)

// peer is one user's WebRTC session within a room. Mirrors the teacher's
// single-PeerConnection-per-user design: one underlying connection carries
// both the send and recv transports exposed to the dispatcher, since pion
// renegotiates in place rather than opening a second ICE session.
type peer struct {
	userID    string
	channelID string
	conn      *webrtc.PeerConnection
	engine    *Engine

	mu    sync.RWMutex
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	transports map[string]*transport          // transportID -> transport
	producers  map[string]*localProducer      // producerID -> producer (this peer's own tracks)
	consumers  map[string]*remoteConsumption  // consumerID -> subscription to another peer's track

	localAudioTrack *webrtc.TrackLocalStaticRTP
	localVideoTrack *webrtc.TrackLocalStaticRTP
}

type transport struct {
	id        string
	direction Direction
	connected bool
}

type localProducer struct {
	id   string
	kind ProducerKind
}

type remoteConsumption struct {
	id         string
	producerID string
	sender     *webrtc.RTPSender
}

func newPeer(userID, channelID string, e *Engine) (*peer, error) {
	conn, err := e.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &peer{
		userID:     userID,
		channelID:  channelID,
		conn:       conn,
		engine:     e,
		ctx:        ctx,
		cancel:     cancel,
		transports: make(map[string]*transport),
		producers:  make(map[string]*localProducer),
		consumers:  make(map[string]*remoteConsumption),
	}
	p.state.Store(int32(peerStateConnecting))

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || e.onICECandidate == nil {
			return
		}
		e.onICECandidate(channelID, userID, c.ToJSON())
	})

	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.close()
		case webrtc.PeerConnectionStateConnected:
			p.transitionTo(peerStateActive)
		}
	})

	conn.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := ProducerKindAudio
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			kind = ProducerKindVideo
		}

		local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, string(kind), userID)
		if err != nil {
			e.log.Error("creating local track", "user", userID, "err", err)
			return
		}

		p.mu.Lock()
		if kind == ProducerKindAudio {
			p.localAudioTrack = local
		} else {
			p.localVideoTrack = local
		}
		p.mu.Unlock()

		p.wg.Add(1)
		go p.forwardTrack(remote, local)
	})

	return p, nil
}

func (p *peer) forwardTrack(remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP) {
	defer p.wg.Done()
	buf := make([]byte, rtpBufferBytes)
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		n, _, err := remote.Read(buf)
		if err != nil {
			if p.ctx.Err() != nil || err == io.EOF {
				return
			}
			return
		}
		if _, err := local.Write(buf[:n]); err != nil && p.ctx.Err() == nil {
			return
		}
	}
}

func (p *peer) localTrackFor(kind ProducerKind) *webrtc.TrackLocalStaticRTP {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if kind == ProducerKindAudio {
		return p.localAudioTrack
	}
	return p.localVideoTrack
}

func (p *peer) producerDescriptors() []ProducerDescriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProducerDescriptor, 0, len(p.producers))
	for _, prod := range p.producers {
		out = append(out, ProducerDescriptor{ProducerID: prod.id, UserID: p.userID, Kind: prod.kind})
	}
	return out
}

func (p *peer) isClosed() bool {
	s := peerState(p.state.Load())
	return s == peerStateClosing || s == peerStateClosed
}

func isValidPeerTransition(from, to peerState) bool {
	switch from {
	case peerStateConnecting:
		return to == peerStateActive || to == peerStateClosing
	case peerStateActive:
		return to == peerStateClosing
	case peerStateClosing:
		return to == peerStateClosed
	}
	return false
}

func (p *peer) transitionTo(to peerState) bool {
	for {
		cur := peerState(p.state.Load())
		if !isValidPeerTransition(cur, to) {
			return false
		}
		if p.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

func (p *peer) close() {
	if !p.transitionTo(peerStateClosing) {
		return
	}
	p.cancel()
	_ = p.conn.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(peerCloseTimeout):
		p.engine.log.Warn("peer goroutines did not finish in time", "user", p.userID)
	}

	p.transitionTo(peerStateClosed)
}
