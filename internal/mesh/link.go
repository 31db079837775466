package mesh

import (
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/liveclass/classroom/internal/protocol"
)

// Role says which side of a link sends the offer.
type Role int

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// LinkInfo describes one peer link for display.
type LinkInfo struct {
	RemoteID   string
	UserID     string
	UserName   string
	Role       Role
	State      webrtc.PeerConnectionState
	Generation int
}

// link is one RTCPeerConnection to one remote participant. Every field but
// closed is guarded by the orchestrator mutex. generation never changes
// after the link is created; a renegotiation builds a new link.
type link struct {
	remoteID   string
	role       Role
	peer       Peer
	video      TrackSender
	generation int
	remoteSet  bool
	state      webrtc.PeerConnectionState
	timer      *time.Timer

	closed atomic.Bool
}

func (l *link) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// acceptsGeneration reports whether a signal tagged gen belongs to this
// link. Zero means the sender does not tag generations.
func (l *link) acceptsGeneration(gen int) bool {
	return gen == 0 || gen == l.generation
}

func toWire(c webrtc.ICECandidateInit) protocol.ICECandidate {
	return protocol.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromWire(c protocol.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
