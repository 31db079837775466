package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/liveclass/classroom/internal/classroom"
)

const (
	chatLines   = 8
	commandWait = 10 * time.Second
)

// Room is a joined classroom session as the dashboard sees it.
type Room interface {
	Controls
	Snapshot() classroom.View
	Updates() <-chan struct{}
	Done() <-chan struct{}
}

type (
	viewChangedMsg struct{}
	roomClosedMsg  struct{}
	tickMsg        time.Time
	resultMsg      struct {
		note string
		err  error
	}
)

type dashboardModel struct {
	room    Room
	view    classroom.View
	spinner spinner.Model
	input   textinput.Model
	status  string
	failed  bool
	closed  bool
}

// RunDashboard shows the live room until the user quits or the session ends.
func RunDashboard(room Room) error {
	_, err := tea.NewProgram(newDashboard(room)).Run()
	return err
}

func newDashboard(room Room) *dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "chat, or /help"
	in.CharLimit = 4096
	in.Focus()

	return &dashboardModel{
		room:    room,
		view:    room.Snapshot(),
		spinner: s,
		input:   in,
	}
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.waitForChange(),
		tickEvery(),
	)
}

func (m *dashboardModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.room.Updates():
			return viewChangedMsg{}
		case <-m.room.Done():
			return roomClosedMsg{}
		}
	}
}

// tickEvery refreshes the view so reactions fade on time.
func tickEvery() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			if cmd := m.submit(line); cmd != nil {
				cmds = append(cmds, cmd)
			}
			if strings.TrimSpace(line) == "/quit" {
				return m, tea.Quit
			}
		}

	case viewChangedMsg:
		m.view = m.room.Snapshot()
		cmds = append(cmds, m.waitForChange())

	case roomClosedMsg:
		m.closed = true
		m.view = m.room.Snapshot()
		return m, tea.Quit

	case tickMsg:
		m.view = m.room.Snapshot()
		cmds = append(cmds, tickEvery())

	case resultMsg:
		m.failed = msg.err != nil
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = msg.note
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit parses a line and runs it off the UI goroutine.
func (m *dashboardModel) submit(line string) tea.Cmd {
	switch strings.TrimSpace(line) {
	case "/quit":
		return nil
	case "/help":
		m.failed = false
		m.status = Help
		return nil
	}

	action, err := ParseInput(line)
	if err != nil {
		m.failed = true
		m.status = err.Error()
		return nil
	}
	if action == nil {
		return nil
	}

	room := m.room
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandWait)
		defer cancel()
		note, err := action(ctx, room)
		return resultMsg{note: note, err: err}
	}
}

func (m *dashboardModel) View() string {
	v := m.view
	var b strings.Builder

	role := IconStudent + " student"
	if v.Self.IsInstructor {
		role = IconTeacher + " instructor"
	}
	header := fmt.Sprintf("%s %s  %s", IconRoom, v.RoomID, role)
	b.WriteString(HeaderStyle.Render(header))
	if v.Recording {
		b.WriteString(" " + BadgeStyle.Render(IconRecording+" REC"))
	}
	b.WriteString("\n\n")

	if m.closed {
		b.WriteString(MutedStyle.Render("Session ended") + "\n")
		return b.String()
	}

	b.WriteString(ParticipantsView(v) + "\n")
	b.WriteString(mediaLine(v) + "\n\n")

	if p := pollView(v); p != "" {
		b.WriteString(p + "\n\n")
	}

	fmt.Fprintf(&b, "%s whiteboard: %d strokes (epoch %d)\n", IconWhiteboard, len(v.Whiteboard.Strokes), v.Whiteboard.Epoch)

	if len(v.Reactions) > 0 {
		var rx []string
		for _, r := range v.Reactions {
			rx = append(rx, fmt.Sprintf("%s %s", r.Emoji, r.UserName))
		}
		b.WriteString(strings.Join(rx, "  ") + "\n")
	}

	if v.Self.IsInstructor && len(v.UnmuteRequests) > 0 {
		for _, r := range v.UnmuteRequests {
			b.WriteString(WarningStyle.Render(fmt.Sprintf("%s %s asks to be unmuted (/unmute %s)", IconHand, r.UserName, r.UserID)) + "\n")
		}
	}

	b.WriteString("\n" + BoldStyle.Render(IconChat+" Chat") + "\n")
	chat := v.Chat
	if len(chat) > chatLines {
		chat = chat[len(chat)-chatLines:]
	}
	if len(chat) == 0 {
		b.WriteString(MutedStyle.Render("  no messages yet") + "\n")
	}
	for _, c := range chat {
		ts := time.UnixMilli(c.Timestamp).Format("15:04")
		fmt.Fprintf(&b, "  %s %s %s\n", MutedStyle.Render(ts), BoldStyle.Render(c.UserName+":"), c.Text)
	}

	b.WriteString("\n")
	if m.status != "" {
		style := MutedStyle
		if m.failed {
			style = ErrorStyle
		}
		b.WriteString(style.Render(m.status) + "\n")
	}
	b.WriteString(m.spinner.View() + " " + m.input.View() + "\n")
	b.WriteString(MutedStyle.Render("enter to send · /help for commands · esc to leave"))
	return b.String()
}

func mediaLine(v classroom.View) string {
	mic := IconMic + " mic on"
	switch {
	case v.Media.MutedByInstructor:
		mic = IconMicOff + " muted by instructor"
	case !v.Media.Audio:
		mic = IconMicOff + " mic off"
	}
	cam := IconCamera + " camera on"
	if !v.Media.Video {
		cam = IconCameraOff + " camera off"
	}
	parts := []string{mic, cam}
	if v.Media.SharingScreen {
		parts = append(parts, IconScreen+" sharing screen")
	}
	return strings.Join(parts, "   ")
}
