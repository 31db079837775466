// Package mesh keeps one peer connection per remote participant in a room
// and drives offer/answer/candidate exchange over the signaling channel.
//
// The connection that joined later always sends the offer. A link that has
// not connected within the negotiation timeout, or that fails, is rebuilt by
// its initiator with a higher generation; candidates and answers tagged with
// an older generation are dropped.
package mesh

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/protocol"
)

// Signaler sends one message to the signaling server.
type Signaler interface {
	Send(msg *protocol.Message) error
}

// TrackSource supplies the local tracks attached to every new link. Either
// may be nil.
type TrackSource interface {
	OutgoingTracks() (audio, video webrtc.TrackLocal)
}

type Options struct {
	RoomID     string
	SelfUserID string

	Factory  PeerFactory
	Signaler Signaler
	Tracks   TrackSource

	NegotiationTimeout time.Duration
	MaxRenegotiations  int

	// Callbacks run on pion or timer goroutines without the mesh lock held.
	OnStateChange func(remoteID string, state webrtc.PeerConnectionState)
	OnRemoteTrack func(remoteID string, track *webrtc.TrackRemote)
	OnPeerRemoved func(remoteID string)

	Logger *slog.Logger
}

type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	roster  map[string]protocol.Participant
	links   map[string]*link
	pending candidateQueue
	closed  bool
}

func New(opts Options) *Orchestrator {
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = config.DefaultNegotiationTimeout
	}
	if opts.MaxRenegotiations < 0 {
		opts.MaxRenegotiations = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:    opts,
		logger:  opts.Logger.With("component", "mesh"),
		roster:  make(map[string]protocol.Participant),
		links:   make(map[string]*link),
		pending: make(candidateQueue),
	}
}

// Joined is called once with the members already in the room. This side
// offers to each of them.
func (o *Orchestrator) Joined(members []protocol.Participant) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	for _, p := range members {
		o.roster[p.SocketID] = p
	}
	var errs []error
	for _, p := range members {
		if err := o.offerLocked(p.SocketID, 1); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PeerJoined adds a newcomer to the roster. The newcomer sends the offer.
func (o *Orchestrator) PeerJoined(p protocol.Participant) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.roster[p.SocketID] = p
	}
}

// PeerLeft closes the link to remoteID and forgets everything about it.
func (o *Orchestrator) PeerLeft(remoteID string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	_, known := o.roster[remoteID]
	if l := o.links[remoteID]; l != nil {
		o.dropLinkLocked(l)
	}
	o.pending.discard(remoteID)
	delete(o.roster, remoteID)
	o.mu.Unlock()

	if known && o.opts.OnPeerRemoved != nil {
		o.opts.OnPeerRemoved(remoteID)
	}
}

// HandleOffer answers an offer. An offer always replaces any existing link
// to the sender, and one from a connection not yet rostered adds it.
func (o *Orchestrator) HandleOffer(from string, desc protocol.SessionDescription) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if _, ok := o.roster[from]; !ok {
		o.roster[from] = protocol.Participant{SocketID: from, UserID: desc.UserID}
	}
	if old := o.links[from]; old != nil {
		if old.role == RoleInitiator {
			o.logger.Debug("Offer collided with our own, yielding", "peer", from)
		}
		o.dropLinkLocked(old)
	}

	l, err := o.newLinkLocked(from, RoleResponder, desc.Generation)
	if err != nil {
		return err
	}
	if err := l.peer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}); err != nil {
		o.dropLinkLocked(l)
		return newError("set remote description", from, err)
	}
	l.remoteSet = true
	o.drainLocked(l)

	answer, err := l.peer.CreateAnswer(nil)
	if err != nil {
		o.dropLinkLocked(l)
		return newError("create answer", from, err)
	}
	if err := l.peer.SetLocalDescription(answer); err != nil {
		o.dropLinkLocked(l)
		return newError("set local description", from, err)
	}
	o.armLocked(l)

	return o.send(protocol.TypeAnswer, from, protocol.SessionDescription{
		Type:       webrtc.SDPTypeAnswer.String(),
		SDP:        answer.SDP,
		UserID:     o.opts.SelfUserID,
		Generation: desc.Generation,
	})
}

func (o *Orchestrator) HandleAnswer(from string, desc protocol.SessionDescription) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	l := o.links[from]
	switch {
	case l == nil:
		return newError("handle answer", from, ErrNoLink)
	case l.role != RoleInitiator:
		return newError("handle answer", from, ErrUnexpectedSignal)
	case !l.acceptsGeneration(desc.Generation):
		return newError("handle answer", from, ErrStaleSignal)
	case l.remoteSet:
		o.logger.Debug("Ignoring duplicate answer", "peer", from)
		return nil
	}

	if err := l.peer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: desc.SDP}); err != nil {
		return newError("set remote description", from, err)
	}
	l.remoteSet = true
	o.drainLocked(l)
	return nil
}

// HandleCandidate applies a remote candidate, or queues it until the
// matching remote description is applied.
func (o *Orchestrator) HandleCandidate(from string, in protocol.CandidatePayload) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if _, ok := o.roster[from]; !ok {
		return newError("handle candidate", from, ErrUnknownPeer)
	}

	l := o.links[from]
	if l != nil && l.remoteSet {
		if !l.acceptsGeneration(in.Generation) {
			return newError("handle candidate", from, ErrStaleSignal)
		}
		if err := l.peer.AddICECandidate(fromWire(in.Candidate)); err != nil {
			return newError("add ice candidate", from, err)
		}
		return nil
	}
	if l != nil && in.Generation != 0 && in.Generation < l.generation {
		return newError("handle candidate", from, ErrStaleSignal)
	}

	o.pending.push(from, pendingCandidate{generation: in.Generation, init: fromWire(in.Candidate)})
	return nil
}

// ReplaceVideoTrack swaps the outgoing video on every link.
func (o *Orchestrator) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for _, l := range o.links {
		if l.video == nil {
			continue
		}
		if err := l.video.ReplaceTrack(track); err != nil {
			errs = append(errs, newError("replace track", l.remoteID, err))
		}
	}
	return errors.Join(errs...)
}

// Links lists the current links ordered by remote connection id.
func (o *Orchestrator) Links() []LinkInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]LinkInfo, 0, len(o.links))
	for id, l := range o.links {
		p := o.roster[id]
		out = append(out, LinkInfo{
			RemoteID:   id,
			UserID:     p.UserID,
			UserName:   p.UserName,
			Role:       l.role,
			State:      l.state,
			Generation: l.generation,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

// Roster returns the known remote participants.
func (o *Orchestrator) Roster() []protocol.Participant {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]protocol.Participant, 0, len(o.roster))
	for _, p := range o.roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SocketID < out[j].SocketID })
	return out
}

// Pending reports how many candidates from remoteID wait for a remote
// description.
func (o *Orchestrator) Pending(remoteID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending.size(remoteID)
}

// Close tears down every link. Later signals return ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for _, l := range o.links {
		o.dropLinkLocked(l)
	}
	o.pending = make(candidateQueue)
	o.roster = make(map[string]protocol.Participant)
}

// offerLocked builds a fresh initiator link and sends its offer.
func (o *Orchestrator) offerLocked(remoteID string, generation int) error {
	if old := o.links[remoteID]; old != nil {
		o.dropLinkLocked(old)
	}

	l, err := o.newLinkLocked(remoteID, RoleInitiator, generation)
	if err != nil {
		return err
	}
	offer, err := l.peer.CreateOffer(nil)
	if err != nil {
		o.dropLinkLocked(l)
		return newError("create offer", remoteID, err)
	}
	if err := l.peer.SetLocalDescription(offer); err != nil {
		o.dropLinkLocked(l)
		return newError("set local description", remoteID, err)
	}
	o.armLocked(l)

	o.logger.Debug("Sending offer", "peer", remoteID, "generation", generation)
	return o.send(protocol.TypeOffer, remoteID, protocol.SessionDescription{
		Type:       webrtc.SDPTypeOffer.String(),
		SDP:        offer.SDP,
		UserID:     o.opts.SelfUserID,
		Generation: generation,
	})
}

func (o *Orchestrator) newLinkLocked(remoteID string, role Role, generation int) (*link, error) {
	pc, err := o.opts.Factory(remoteID)
	if err != nil {
		return nil, newError("create peer", remoteID, err)
	}
	l := &link{
		remoteID:   remoteID,
		role:       role,
		peer:       pc,
		generation: generation,
		state:      webrtc.PeerConnectionStateNew,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || l.closed.Load() {
			return
		}
		err := o.send(protocol.TypeICECandidate, remoteID, protocol.CandidatePayload{
			Candidate:  toWire(c.ToJSON()),
			UserID:     o.opts.SelfUserID,
			Generation: l.generation,
		})
		if err != nil {
			o.logger.Debug("Failed to send candidate", "peer", remoteID, "error", err)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		o.stateChanged(l, s)
	})
	if cb := o.opts.OnRemoteTrack; cb != nil {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			if !l.closed.Load() {
				cb(remoteID, track)
			}
		})
	}

	if o.opts.Tracks != nil {
		audio, video := o.opts.Tracks.OutgoingTracks()
		if audio != nil {
			if _, err := pc.AddTrack(audio); err != nil {
				_ = pc.Close()
				return nil, newError("add audio track", remoteID, err)
			}
		}
		if video != nil {
			sender, err := pc.AddTrack(video)
			if err != nil {
				_ = pc.Close()
				return nil, newError("add video track", remoteID, err)
			}
			l.video = sender
		}
	}

	o.links[remoteID] = l
	return l, nil
}

// drainLocked applies queued candidates for the link's generation in arrival
// order and throws the rest away.
func (o *Orchestrator) drainLocked(l *link) {
	for _, c := range o.pending.take(l.remoteID) {
		if !l.acceptsGeneration(c.generation) {
			continue
		}
		if err := l.peer.AddICECandidate(c.init); err != nil {
			o.logger.Debug("Failed to apply queued candidate", "peer", l.remoteID, "error", err)
		}
	}
}

func (o *Orchestrator) dropLinkLocked(l *link) {
	l.closed.Store(true)
	l.stopTimer()
	if err := l.peer.Close(); err != nil {
		o.logger.Debug("Failed to close peer", "peer", l.remoteID, "error", err)
	}
	if o.links[l.remoteID] == l {
		delete(o.links, l.remoteID)
	}
}

func (o *Orchestrator) armLocked(l *link) {
	l.stopTimer()
	l.timer = time.AfterFunc(o.opts.NegotiationTimeout, func() {
		o.negotiationExpired(l)
	})
}

func (o *Orchestrator) negotiationExpired(l *link) {
	o.mu.Lock()
	if o.closed || o.links[l.remoteID] != l || l.state == webrtc.PeerConnectionStateConnected {
		o.mu.Unlock()
		return
	}
	o.logger.Warn("Negotiation timed out", "peer", l.remoteID, "generation", l.generation, "role", l.role)
	gaveUp := o.recoverLocked(l)
	o.mu.Unlock()

	if gaveUp && o.opts.OnStateChange != nil {
		o.opts.OnStateChange(l.remoteID, webrtc.PeerConnectionStateFailed)
	}
}

func (o *Orchestrator) stateChanged(l *link, s webrtc.PeerConnectionState) {
	o.mu.Lock()
	if o.closed || o.links[l.remoteID] != l {
		o.mu.Unlock()
		return
	}
	l.state = s
	switch s {
	case webrtc.PeerConnectionStateConnected:
		l.stopTimer()
	case webrtc.PeerConnectionStateFailed:
		o.logger.Warn("Peer connection failed", "peer", l.remoteID, "generation", l.generation)
		o.recoverLocked(l)
	}
	o.mu.Unlock()

	if o.opts.OnStateChange != nil {
		o.opts.OnStateChange(l.remoteID, s)
	}
}

// recoverLocked re-offers on a stalled or failed link when this side is the
// initiator and retries remain. A responder drops the link and waits for the
// initiator's next offer. It reports true when the link was abandoned.
func (o *Orchestrator) recoverLocked(l *link) bool {
	if l.role == RoleResponder {
		o.dropLinkLocked(l)
		o.pending.discard(l.remoteID)
		return false
	}
	if l.generation > o.opts.MaxRenegotiations {
		o.logger.Warn("Giving up on peer", "peer", l.remoteID, "attempts", l.generation)
		o.dropLinkLocked(l)
		o.pending.discard(l.remoteID)
		return true
	}
	if err := o.offerLocked(l.remoteID, l.generation+1); err != nil {
		o.logger.Warn("Failed to renegotiate", "peer", l.remoteID, "error", err)
		return true
	}
	return false
}

func (o *Orchestrator) send(t, to string, payload any) error {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return err
	}
	msg.RoomID = o.opts.RoomID
	msg.To = to
	return o.opts.Signaler.Send(msg)
}
