package classroom

import (
	"time"

	"github.com/liveclass/classroom/internal/protocol"
)

const (
	reactionTTL = 2 * time.Second
	chatHistory = 200
)

// roster keeps remote members in join order.
type roster struct {
	members []protocol.Participant
}

func (r *roster) reset(members []protocol.Participant) {
	r.members = append([]protocol.Participant(nil), members...)
}

func (r *roster) add(p protocol.Participant) {
	for i, m := range r.members {
		if m.SocketID == p.SocketID {
			r.members[i] = p
			return
		}
	}
	r.members = append(r.members, p)
}

func (r *roster) remove(socketID string) bool {
	for i, m := range r.members {
		if m.SocketID == socketID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *roster) list() []protocol.Participant {
	return append([]protocol.Participant(nil), r.members...)
}

// boardReplica mirrors the room's stroke log. Deltas are applied only when
// they continue the local sequence in the current epoch.
type boardReplica struct {
	epoch   uint64
	seq     uint64
	strokes []protocol.Stroke
	// syncRequested is set while a sync request is outstanding.
	syncRequested bool
}

// applyDelta reports false when the delta cannot be applied and a full sync
// is needed.
func (b *boardReplica) applyDelta(d protocol.WhiteboardDelta) bool {
	if d.Epoch != b.epoch {
		return false
	}
	for _, s := range d.Strokes {
		switch {
		case s.Seq <= b.seq:
			continue
		case s.Seq != b.seq+1:
			return false
		}
		b.strokes = append(b.strokes, s)
		b.seq = s.Seq
	}
	return true
}

// applySync replaces the log unless the sync is older than what is held.
func (b *boardReplica) applySync(s protocol.WhiteboardSync) bool {
	if s.Epoch < b.epoch || (s.Epoch == b.epoch && s.Seq < b.seq) {
		return false
	}
	b.epoch = s.Epoch
	b.seq = s.Seq
	b.strokes = append([]protocol.Stroke(nil), s.Strokes...)
	b.syncRequested = false
	return true
}

func (b *boardReplica) clear(epoch uint64) {
	if epoch < b.epoch {
		return
	}
	b.epoch = epoch
	b.seq = 0
	b.strokes = nil
}

func (b *boardReplica) view() protocol.WhiteboardSync {
	return protocol.WhiteboardSync{
		Epoch:   b.epoch,
		Seq:     b.seq,
		Strokes: append([]protocol.Stroke(nil), b.strokes...),
	}
}

type shownReaction struct {
	reaction protocol.Reaction
	expires  time.Time
}

// reactions holds emojis until they fade.
type reactions struct {
	items []shownReaction
}

func (r *reactions) add(now time.Time, rx protocol.Reaction) {
	r.prune(now)
	r.items = append(r.items, shownReaction{reaction: rx, expires: now.Add(reactionTTL)})
}

func (r *reactions) prune(now time.Time) {
	kept := r.items[:0]
	for _, it := range r.items {
		if now.Before(it.expires) {
			kept = append(kept, it)
		}
	}
	r.items = kept
}

func (r *reactions) list(now time.Time) []protocol.Reaction {
	var out []protocol.Reaction
	for _, it := range r.items {
		if now.Before(it.expires) {
			out = append(out, it.reaction)
		}
	}
	return out
}

// chatLog keeps the latest chatHistory lines.
type chatLog struct {
	lines []protocol.Chat
}

func (c *chatLog) add(line protocol.Chat) {
	c.lines = append(c.lines, line)
	if over := len(c.lines) - chatHistory; over > 0 {
		c.lines = append([]protocol.Chat(nil), c.lines[over:]...)
	}
}

func (c *chatLog) list() []protocol.Chat {
	return append([]protocol.Chat(nil), c.lines...)
}
