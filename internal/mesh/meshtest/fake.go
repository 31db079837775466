// Package meshtest provides in-memory peers and signalers for exercising the
// mesh without a network.
package meshtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/liveclass/classroom/internal/mesh"
	"github.com/liveclass/classroom/internal/protocol"
)

var ErrNoRemoteDescription = errors.New("remote description not set")

// Sender records the tracks swapped onto it.
type Sender struct {
	mu     sync.Mutex
	tracks []webrtc.TrackLocal
}

func (s *Sender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
	return nil
}

// Current is the last track set on the sender.
func (s *Sender) Current() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[len(s.tracks)-1]
}

// Peer is a mesh.Peer that records what the orchestrator does to it.
type Peer struct {
	RemoteID string

	mu          sync.Mutex
	seq         int
	autoConnect bool
	connected   bool
	closed      bool
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	senders     []*Sender
	onCandidate func(*webrtc.ICECandidate)
	onState     func(webrtc.PeerConnectionState)
}

var _ mesh.Peer = (*Peer)(nil)

func (p *Peer) AddTrack(track webrtc.TrackLocal) (mesh.TrackSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &Sender{tracks: []webrtc.TrackLocal{track}}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *Peer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%s-%d", p.RemoteID, p.seq)}, nil
}

func (p *Peer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}
	p.seq++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%s-%d", p.RemoteID, p.seq)}, nil
}

func (p *Peer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &desc
	p.maybeConnectLocked()
	return nil
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &desc
	p.maybeConnectLocked()
	return nil
}

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return ErrNoRemoteDescription
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *Peer) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = f
}

func (p *Peer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

func (p *Peer) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if f := p.onState; f != nil {
		go f(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

// maybeConnectLocked reports connected once both descriptions are set, the
// way a real connection eventually would.
func (p *Peer) maybeConnectLocked() {
	if !p.autoConnect || p.connected || p.closed || p.local == nil || p.remote == nil {
		return
	}
	p.connected = true
	if f := p.onState; f != nil {
		go f(webrtc.PeerConnectionStateConnected)
	}
}

// SetState fires the state handler from the caller's goroutine.
func (p *Peer) SetState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	f := p.onState
	p.mu.Unlock()
	if f != nil {
		f(s)
	}
}

// EmitCandidate fires the candidate handler with a host candidate.
func (p *Peer) EmitCandidate(port uint16) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	if f != nil {
		f(&webrtc.ICECandidate{
			Foundation: "1",
			Priority:   1,
			Address:    "127.0.0.1",
			Protocol:   webrtc.ICEProtocolUDP,
			Port:       port,
			Typ:        webrtc.ICECandidateTypeHost,
			Component:  1,
		})
	}
}

func (p *Peer) Candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *Peer) Senders() []*Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Sender(nil), p.senders...)
}

func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) Remote() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// Factory hands out Peers and remembers them per remote connection id.
type Factory struct {
	AutoConnect bool
	Err         error

	mu    sync.Mutex
	peers map[string][]*Peer
}

func NewFactory(autoConnect bool) *Factory {
	return &Factory{AutoConnect: autoConnect, peers: make(map[string][]*Peer)}
}

// New matches mesh.PeerFactory.
func (f *Factory) New(remoteID string) (mesh.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p := &Peer{RemoteID: remoteID, autoConnect: f.AutoConnect}
	f.peers[remoteID] = append(f.peers[remoteID], p)
	return p, nil
}

// Peers lists every peer created for remoteID, oldest first.
func (f *Factory) Peers(remoteID string) []*Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Peer(nil), f.peers[remoteID]...)
}

// Last is the newest peer for remoteID, or nil.
func (f *Factory) Last(remoteID string) *Peer {
	ps := f.Peers(remoteID)
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

// Signaler records sent messages.
type Signaler struct {
	mu   sync.Mutex
	sent []*protocol.Message
}

func (s *Signaler) Send(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns the messages of type t, or all of them when t is empty.
func (s *Signaler) Sent(t string) []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*protocol.Message
	for _, m := range s.sent {
		if t == "" || m.Type == t {
			out = append(out, m)
		}
	}
	return out
}
