package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/pion/webrtc/v4"

	"github.com/liveclass/classroom/internal/classroom"
	"github.com/liveclass/classroom/internal/protocol"
)

// participantRows lists the local user first, then everyone else in join
// order.
func participantRows(v classroom.View) [][]string {
	linkState := make(map[string]webrtc.PeerConnectionState, len(v.Links))
	for _, l := range v.Links {
		linkState[l.RemoteID] = l.State
	}
	handPos := make(map[string]int, len(v.Hands))
	for i, h := range v.Hands {
		handPos[h.UserID] = i + 1
	}

	row := func(p protocol.Participant, link string) []string {
		role := IconStudent + " student"
		if p.IsInstructor {
			role = IconTeacher + " instructor"
		}
		mic := IconMic
		if slices.Contains(v.Muted, p.UserID) {
			mic = IconMicOff
		}
		hand := ""
		if n, ok := handPos[p.UserID]; ok {
			hand = fmt.Sprintf("%s %d", IconHand, n)
		}
		name := p.UserName
		if name == "" {
			name = p.UserID
		}
		return []string{truncate(name, 24), role, link, mic, hand}
	}

	rows := [][]string{row(v.Self, "you")}
	for _, p := range v.Members {
		link := "waiting"
		if s, ok := linkState[p.SocketID]; ok {
			link = s.String()
		}
		rows = append(rows, row(p, link))
	}
	return rows
}

// ParticipantsView renders the room roster with lipgloss/table.
func ParticipantsView(v classroom.View) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "Role", "Link", "Mic", "Hand").
		Rows(participantRows(v)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomStat is one row of the server's /rooms listing.
type RoomStat struct {
	Key         string    `json:"key"`
	Members     int       `json:"members"`
	Instructors int       `json:"instructors"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RoomsTable renders active rooms with go-pretty.
func RoomsTable(rooms []RoomStat, now time.Time) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.AppendHeader(prettytable.Row{"Room", "Members", "Instructors", "Open for"})
	var members int
	for _, r := range rooms {
		members += r.Members
		t.AppendRow(prettytable.Row{r.Key, r.Members, r.Instructors, formatDuration(now.Sub(r.CreatedAt))})
	}
	t.AppendFooter(prettytable.Row{fmt.Sprintf("%d rooms", len(rooms)), members, "", ""})
	return t.Render()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// pollView renders the active poll or the last result.
func pollView(v classroom.View) string {
	poll := v.Poll
	title := IconPoll + " Poll"
	if poll == nil {
		poll = v.LastPoll
		title = IconPoll + " Last poll"
	}
	if poll == nil {
		return ""
	}

	total := 0
	for _, n := range poll.Votes {
		total += n
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", BoldStyle.Render(title), poll.Question)
	for i, opt := range poll.Options {
		count := 0
		if i < len(poll.Votes) {
			count = poll.Votes[i]
		}
		bar := ""
		if total > 0 {
			bar = strings.Repeat("█", count*20/total)
		}
		fmt.Fprintf(&b, "  %d. %-20s %s %d\n", i+1, truncate(opt, 20), SuccessStyle.Render(bar), count)
	}
	if v.Poll != nil && v.Voted {
		b.WriteString(MutedStyle.Render("  you voted"))
	}
	return PollBoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
