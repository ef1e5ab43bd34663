package sfumedia

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"lattice/internal/config"
)

const (
	maxTransportsPerPeer = 2 // one send, one recv
	maxProducersPerPeer  = 2 // audio + video
)

// RenegotiationFunc is invoked whenever the engine needs the dispatcher to
// push a fresh SDP offer down to a client — mirrors the signaling callback
// the teacher's SFU drives its ws hub with.
type RenegotiationFunc func(channelID, userID string, offerSDP string)

// ICECandidateFunc is invoked for server-trickled ICE candidates.
type ICECandidateFunc func(channelID, userID string, candidate webrtc.ICECandidateInit)

// WorkerDiedFunc is invoked when a room's underlying media stack fails in a
// way that requires the gateway to invalidate every participant in it.
type WorkerDiedFunc func(channelID string)

type Engine struct {
	cfg     config.SFUConfig
	enabled bool
	api     *webrtc.API
	log     *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room // channelID -> room

	onRenegotiate    RenegotiationFunc
	onICECandidate   ICECandidateFunc
	onWorkerDied     WorkerDiedFunc
	audioOnly        bool
}

type room struct {
	channelID string
	peers     map[string]*peer // userID -> peer
}

func New(cfg config.SFUConfig, audioOnly bool, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	enabled := cfg.PublicIP != "" || cfg.MinPort != 0

	settingEngine := webrtc.SettingEngine{}
	if cfg.MinPort > 0 && cfg.MaxPort > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, fmt.Errorf("setting port range: %w", err)
		}
	}
	if cfg.PublicIP != "" {
		settingEngine.SetNAT1To1IPs([]string{cfg.PublicIP}, webrtc.ICECandidateTypeHost)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("registering opus codec: %w", err)
	}
	if !audioOnly {
		if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeVP9,
				ClockRate:   90000,
				SDPFmtpLine: "profile-id=0",
			},
			PayloadType: 98,
		}, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("registering VP9 codec: %w", err)
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
	)

	return &Engine{
		cfg:       cfg,
		enabled:   enabled,
		api:       api,
		log:       logger,
		rooms:     make(map[string]*room),
		audioOnly: audioOnly,
	}, nil
}

func (e *Engine) Enabled() bool { return e.enabled }

func (e *Engine) AudioOnly() bool { return e.audioOnly }

func (e *Engine) OnRenegotiationNeeded(fn RenegotiationFunc) { e.onRenegotiate = fn }
func (e *Engine) OnICECandidateTrickle(fn ICECandidateFunc)  { e.onICECandidate = fn }
func (e *Engine) OnWorkerDied(fn WorkerDiedFunc)             { e.onWorkerDied = fn }

func (e *Engine) roomFor(channelID string) *room {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rooms[channelID]
	if !ok {
		r = &room{channelID: channelID, peers: make(map[string]*peer)}
		e.rooms[channelID] = r
	}
	return r
}

func (e *Engine) peerFor(channelID, userID string) (*peer, error) {
	r := e.roomFor(channelID)

	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := r.peers[userID]
	if !ok {
		var err error
		p, err = newPeer(userID, channelID, e)
		if err != nil {
			return nil, fatal(userID, "peerFor", "SFU_NOT_READY", err)
		}
		r.peers[userID] = p
	}
	return p, nil
}

func (e *Engine) getPeer(channelID, userID string) *peer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rooms[channelID]
	if !ok {
		return nil
	}
	return r.peers[userID]
}

// RemovePeer tears down a user's peer connection and every transport it
// holds, returning the producer descriptors to announce removed — the room
// is left empty-but-present so a reconnect doesn't need to recreate it.
func (e *Engine) RemovePeer(channelID, userID string) []ProducerDescriptor {
	e.mu.Lock()
	r, ok := e.rooms[channelID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	p, ok := r.peers[userID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	delete(r.peers, userID)
	e.mu.Unlock()

	descriptors := p.producerDescriptors()
	p.close()
	return descriptors
}

func (e *Engine) emitWorkerDied(channelID string) {
	if e.onWorkerDied != nil {
		e.onWorkerDied(channelID)
	}
}
