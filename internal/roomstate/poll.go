package roomstate

import (
	"errors"
	"strings"

	"github.com/liveclass/classroom/internal/protocol"
)

var (
	ErrEmptyQuestion = errors.New("poll question is empty")
	ErrTooFewOptions = errors.New("poll needs at least two non-empty options")
	ErrPollActive    = errors.New("a poll is already active")
)

// ValidatePoll trims the question and options and drops blank options.
func ValidatePoll(question string, options []string) (string, []string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, ErrEmptyQuestion
	}
	kept := make([]string, 0, len(options))
	for _, opt := range options {
		if opt = strings.TrimSpace(opt); opt != "" {
			kept = append(kept, opt)
		}
	}
	if len(kept) < 2 {
		return "", nil, ErrTooFewOptions
	}
	return question, kept, nil
}

// Poll is a single-question poll with at most one vote per user.
type Poll struct {
	ID       string
	Question string
	Options  []string
	Votes    []int

	voters map[string]int
}

// NewPoll validates its input and returns a poll with zeroed counts.
func NewPoll(id, question string, options []string) (*Poll, error) {
	q, opts, err := ValidatePoll(question, options)
	if err != nil {
		return nil, err
	}
	return &Poll{
		ID:       id,
		Question: q,
		Options:  opts,
		Votes:    make([]int, len(opts)),
		voters:   make(map[string]int),
	}, nil
}

// Vote records userID's choice. It returns false if the user already voted
// or the option does not exist.
func (p *Poll) Vote(userID string, optionIdx int) bool {
	if optionIdx < 0 || optionIdx >= len(p.Options) {
		return false
	}
	if p.HasVoted(userID) {
		return false
	}
	p.voters[userID] = optionIdx
	p.Votes[optionIdx]++
	return true
}

// HasVoted reports whether userID has a vote counted.
func (p *Poll) HasVoted(userID string) bool {
	_, ok := p.voters[userID]
	return ok
}

func (p *Poll) Voters() int { return len(p.voters) }

// Snapshot copies the poll into its wire form.
func (p *Poll) Snapshot(active bool) protocol.PollSnapshot {
	return protocol.PollSnapshot{
		ID:       p.ID,
		Question: p.Question,
		Options:  append([]string(nil), p.Options...),
		Votes:    append([]int(nil), p.Votes...),
		Voters:   len(p.voters),
		Active:   active,
	}
}

// PollSlot holds the room's single active poll.
type PollSlot struct {
	active *Poll
}

func (s *PollSlot) Active() *Poll { return s.active }

// Launch installs p unless another poll is active.
func (s *PollSlot) Launch(p *Poll) error {
	if s.active != nil {
		return ErrPollActive
	}
	s.active = p
	return nil
}

// Vote is a no-op returning false when no poll is active.
func (s *PollSlot) Vote(userID string, optionIdx int) bool {
	if s.active == nil {
		return false
	}
	return s.active.Vote(userID, optionIdx)
}

// End clears the active poll and returns its final snapshot.
func (s *PollSlot) End() (protocol.PollSnapshot, bool) {
	if s.active == nil {
		return protocol.PollSnapshot{}, false
	}
	snap := s.active.Snapshot(false)
	s.active = nil
	return snap, true
}
