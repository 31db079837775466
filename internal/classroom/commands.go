package classroom

import (
	"context"
	"fmt"
	"strings"

	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/roomstate"
)

// command sends t once the session has joined.
func (s *Session) command(op, t string, payload any) error {
	s.mu.Lock()
	joined, ended := s.joined, s.err != nil
	s.mu.Unlock()

	switch {
	case ended:
		return NewError(op, s.Err())
	case !joined:
		return NewError(op, ErrNotJoined)
	}
	if err := s.send(t, payload); err != nil {
		return NewError(op, err)
	}
	return nil
}

// LaunchPoll checks the poll locally before sending it. Instructor only; the
// server ignores it from anyone else.
func (s *Session) LaunchPoll(question string, options []string) error {
	q, opts, err := roomstate.ValidatePoll(question, options)
	if err != nil {
		return NewError("launch poll", fmt.Errorf("%w: %w", ErrInvalidPoll, err))
	}
	return s.command("launch poll", protocol.TypeLaunchPoll, protocol.PollLaunch{Question: q, Options: opts})
}

// Vote sends one vote for the active poll.
func (s *Session) Vote(optionIdx int) error {
	s.mu.Lock()
	poll := s.poll
	voted := poll != nil && s.votedPoll == poll.ID
	s.mu.Unlock()

	switch {
	case poll == nil:
		return NewError("vote", ErrNoActivePoll)
	case voted:
		return NewError("vote", ErrAlreadyVoted)
	case optionIdx < 0 || optionIdx >= len(poll.Options):
		return NewError("vote", ErrNoSuchOption)
	}
	if err := s.command("vote", protocol.TypeVotePoll, protocol.PollVote{OptionIdx: optionIdx, UserID: s.opts.UserID}); err != nil {
		return err
	}

	s.mu.Lock()
	s.votedPoll = poll.ID
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) EndPoll() error {
	return s.command("end poll", protocol.TypeEndPoll, nil)
}

// Draw sends new strokes. They show up locally when the room echoes them
// back as a delta.
func (s *Session) Draw(strokes ...protocol.Stroke) error {
	if len(strokes) == 0 {
		return nil
	}
	return s.command("draw", protocol.TypeWhiteboardUpdate, protocol.WhiteboardUpdate{Strokes: strokes})
}

func (s *Session) ClearBoard() error {
	return s.command("clear board", protocol.TypeWhiteboardClear, nil)
}

func (s *Session) RaiseHand() error {
	return s.command("raise hand", protocol.TypeRaiseHand, nil)
}

// LowerHand lowers userID's hand, or the caller's own when userID is empty.
func (s *Session) LowerHand(userID string) error {
	var payload any
	if userID != "" {
		payload = protocol.MuteTarget{UserID: userID}
	}
	return s.command("lower hand", protocol.TypeLowerHand, payload)
}

func (s *Session) MuteUser(userID string) error {
	return s.command("mute user", protocol.TypeMuteUser, protocol.MuteTarget{UserID: userID})
}

func (s *Session) UnmuteUser(userID string) error {
	return s.command("unmute user", protocol.TypeUnmuteUser, protocol.MuteTarget{UserID: userID})
}

func (s *Session) MuteAll() error {
	return s.command("mute all", protocol.TypeMuteAll, nil)
}

func (s *Session) UnmuteAll() error {
	return s.command("unmute all", protocol.TypeUnmuteAll, nil)
}

func (s *Session) RequestUnmute() error {
	return s.command("request unmute", protocol.TypeRequestUnmute, nil)
}

// SendReaction shows an emoji to the room. The room does not echo it back,
// so it is added to the local view here.
func (s *Session) SendReaction(emoji string) error {
	if err := s.command("send reaction", protocol.TypeSendReaction, protocol.Reaction{Emoji: emoji}); err != nil {
		return err
	}

	s.mu.Lock()
	s.reactions.add(s.opts.Now(), protocol.Reaction{
		Emoji:    emoji,
		UserID:   s.self.UserID,
		UserName: s.self.UserName,
	})
	s.mu.Unlock()
	s.notify()
	return nil
}

// SendChat sends a chat line. The room stamps identity and time for the
// other members; the sender's own copy is stamped locally.
func (s *Session) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewError("send chat", ErrEmptyMessage)
	}
	if err := s.command("send chat", protocol.TypeChatMessage, protocol.Chat{RoomID: s.opts.RoomID, Text: text}); err != nil {
		return err
	}

	s.mu.Lock()
	s.chat.add(protocol.Chat{
		RoomID:    s.opts.RoomID,
		UserID:    s.self.UserID,
		UserName:  s.self.UserName,
		Text:      text,
		Timestamp: s.opts.Now().UnixMilli(),
	})
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) StartRecording() error {
	return s.command("start recording", protocol.TypeStartRecording, nil)
}

func (s *Session) StopRecording() error {
	return s.command("stop recording", protocol.TypeStopRecording, nil)
}

// Local media

func (s *Session) ToggleAudio() (bool, error) {
	on, err := s.media.ToggleAudio()
	if err != nil {
		return on, NewError("toggle audio", err)
	}
	return on, nil
}

func (s *Session) ToggleVideo() (bool, error) {
	on, err := s.media.ToggleVideo()
	if err != nil {
		return on, NewError("toggle video", err)
	}
	return on, nil
}

func (s *Session) StartScreenShare(ctx context.Context) error {
	if err := s.media.StartScreenShare(ctx); err != nil {
		return NewError("start screen share", err)
	}
	return nil
}

func (s *Session) StopScreenShare(ctx context.Context) error {
	if err := s.media.StopScreenShare(ctx); err != nil {
		return NewError("stop screen share", err)
	}
	return nil
}
