package roomstate

import "github.com/liveclass/classroom/internal/protocol"

// HandQueue is the ordered raised-hand list, keyed by user id.
type HandQueue struct {
	hands []protocol.Hand
}

// Raise appends the hand unless the user already has one raised.
func (q *HandQueue) Raise(h protocol.Hand) bool {
	if q.index(h.UserID) >= 0 {
		return false
	}
	q.hands = append(q.hands, h)
	return true
}

// Lower removes the user's hand, keeping the order of the rest.
func (q *HandQueue) Lower(userID string) bool {
	i := q.index(userID)
	if i < 0 {
		return false
	}
	q.hands = append(q.hands[:i], q.hands[i+1:]...)
	return true
}

func (q *HandQueue) Raised(userID string) bool { return q.index(userID) >= 0 }

func (q *HandQueue) List() []protocol.Hand {
	return append([]protocol.Hand{}, q.hands...)
}

func (q *HandQueue) index(userID string) int {
	for i, h := range q.hands {
		if h.UserID == userID {
			return i
		}
	}
	return -1
}
