package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/liveclass/classroom/internal/protocol"
)

var ErrUnknownCommand = errors.New("unknown command")

// Controls is what the dashboard can ask of a classroom session.
type Controls interface {
	SendChat(text string) error
	LaunchPoll(question string, options []string) error
	Vote(optionIdx int) error
	EndPoll() error
	Draw(strokes ...protocol.Stroke) error
	ClearBoard() error
	RaiseHand() error
	LowerHand(userID string) error
	MuteUser(userID string) error
	UnmuteUser(userID string) error
	MuteAll() error
	UnmuteAll() error
	RequestUnmute() error
	SendReaction(emoji string) error
	StartRecording() error
	StopRecording() error
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	StartScreenShare(ctx context.Context) error
	StopScreenShare(ctx context.Context) error
}

// Action runs one parsed input line and returns a short status note.
type Action func(ctx context.Context, c Controls) (string, error)

const Help = "/poll Q | A | B  /vote N  /endpoll  /hand  /lower [user]  /mute USER  /unmute USER  " +
	"/muteall  /unmuteall  /askunmute  /react EMOJI  /mic  /cam  /share  /unshare  " +
	"/draw X1 Y1 X2 Y2  /clear  /record  /stoprecord  /quit"

// ParseInput turns a line typed in the dashboard into an action. Lines that
// do not start with a slash are chat.
func ParseInput(line string) (Action, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return func(_ context.Context, c Controls) (string, error) {
			return "", c.SendChat(line)
		}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "poll":
		parts := strings.Split(rest, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return func(_ context.Context, c Controls) (string, error) {
			return "poll launched", c.LaunchPoll(parts[0], parts[1:])
		}, nil
	case "vote":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("vote: option number expected")
		}
		return func(_ context.Context, c Controls) (string, error) {
			return fmt.Sprintf("voted for option %d", n), c.Vote(n - 1)
		}, nil
	case "endpoll":
		return simple("poll ended", Controls.EndPoll), nil
	case "hand":
		return simple("hand raised", Controls.RaiseHand), nil
	case "lower":
		return func(_ context.Context, c Controls) (string, error) {
			return "hand lowered", c.LowerHand(rest)
		}, nil
	case "mute", "unmute":
		if rest == "" {
			return nil, fmt.Errorf("%s: user id expected", name)
		}
		return func(_ context.Context, c Controls) (string, error) {
			if name == "mute" {
				return "muted " + rest, c.MuteUser(rest)
			}
			return "unmuted " + rest, c.UnmuteUser(rest)
		}, nil
	case "muteall":
		return simple("muted all students", Controls.MuteAll), nil
	case "unmuteall":
		return simple("unmuted everyone", Controls.UnmuteAll), nil
	case "askunmute":
		return simple("asked to be unmuted", Controls.RequestUnmute), nil
	case "react":
		if rest == "" {
			rest = "👍"
		}
		return func(_ context.Context, c Controls) (string, error) {
			return "", c.SendReaction(rest)
		}, nil
	case "mic":
		return toggle("microphone", Controls.ToggleAudio), nil
	case "cam":
		return toggle("camera", Controls.ToggleVideo), nil
	case "share":
		return func(ctx context.Context, c Controls) (string, error) {
			return "sharing screen", c.StartScreenShare(ctx)
		}, nil
	case "unshare":
		return func(ctx context.Context, c Controls) (string, error) {
			return "back to camera", c.StopScreenShare(ctx)
		}, nil
	case "draw":
		stroke, err := parseStroke(rest)
		if err != nil {
			return nil, err
		}
		return func(_ context.Context, c Controls) (string, error) {
			return "", c.Draw(stroke)
		}, nil
	case "clear":
		return simple("whiteboard cleared", Controls.ClearBoard), nil
	case "record":
		return simple("recording started", Controls.StartRecording), nil
	case "stoprecord":
		return simple("recording stopped", Controls.StopRecording), nil
	default:
		return nil, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
}

func simple(note string, f func(Controls) error) Action {
	return func(_ context.Context, c Controls) (string, error) {
		return note, f(c)
	}
}

func toggle(what string, f func(Controls) (bool, error)) Action {
	return func(_ context.Context, c Controls) (string, error) {
		on, err := f(c)
		if on {
			return what + " on", err
		}
		return what + " off", err
	}
}

func parseStroke(s string) (protocol.Stroke, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return protocol.Stroke{}, fmt.Errorf("draw: four coordinates expected")
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return protocol.Stroke{}, fmt.Errorf("draw: %w", err)
		}
		v[i] = n
	}
	return protocol.Stroke{
		From:  protocol.Point{X: v[0], Y: v[1]},
		To:    protocol.Point{X: v[2], Y: v[3]},
		Color: "#ffffff",
		Width: 2,
	}, nil
}
