package roomstate

import "github.com/liveclass/classroom/internal/protocol"

// Whiteboard is the ordered stroke log since the last clear. Every appended
// stroke gets the next sequence number; Clear starts a new epoch and resets
// the sequence.
type Whiteboard struct {
	epoch   uint64
	seq     uint64
	strokes []protocol.Stroke

	sinceSync int
	dirty     bool
}

// Append assigns sequence numbers to strokes and returns the delta to
// broadcast.
func (w *Whiteboard) Append(strokes []protocol.Stroke) protocol.WhiteboardDelta {
	delta := protocol.WhiteboardDelta{
		Epoch:   w.epoch,
		FromSeq: w.seq + 1,
		Strokes: make([]protocol.Stroke, 0, len(strokes)),
	}
	for _, s := range strokes {
		w.seq++
		s.Seq = w.seq
		w.strokes = append(w.strokes, s)
		delta.Strokes = append(delta.Strokes, s)
	}
	w.sinceSync++
	w.dirty = true
	return delta
}

// Clear truncates the log and returns the new epoch.
func (w *Whiteboard) Clear() uint64 {
	w.epoch++
	w.seq = 0
	w.strokes = nil
	w.sinceSync = 0
	w.dirty = false
	return w.epoch
}

// Snapshot returns the full log without touching sync bookkeeping.
func (w *Whiteboard) Snapshot() protocol.WhiteboardSync {
	return protocol.WhiteboardSync{
		Epoch:   w.epoch,
		Seq:     w.seq,
		Strokes: append([]protocol.Stroke{}, w.strokes...),
	}
}

// Sync returns the full log and marks it as broadcast.
func (w *Whiteboard) Sync() protocol.WhiteboardSync {
	w.sinceSync = 0
	w.dirty = false
	return w.Snapshot()
}

// DeltasSinceSync counts deltas appended since the last Sync.
func (w *Whiteboard) DeltasSinceSync() int { return w.sinceSync }

// Dirty reports whether strokes were appended since the last Sync.
func (w *Whiteboard) Dirty() bool { return w.dirty }

func (w *Whiteboard) Len() int { return len(w.strokes) }
