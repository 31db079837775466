package mesh

import "github.com/pion/webrtc/v4"

type pendingCandidate struct {
	generation int
	init       webrtc.ICECandidateInit
}

// candidateQueue holds candidates that arrived before the matching remote
// description, per remote connection id, in arrival order.
type candidateQueue map[string][]pendingCandidate

func (q candidateQueue) push(remoteID string, c pendingCandidate) {
	q[remoteID] = append(q[remoteID], c)
}

// take removes and returns the remote's queue.
func (q candidateQueue) take(remoteID string) []pendingCandidate {
	cs := q[remoteID]
	delete(q, remoteID)
	return cs
}

func (q candidateQueue) discard(remoteID string) {
	delete(q, remoteID)
}

func (q candidateQueue) size(remoteID string) int {
	return len(q[remoteID])
}
