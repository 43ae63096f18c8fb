package monitor

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/avtomon/wsChat/pkg/protocol"
)

// --- Header ---

type headerModel struct {
	target  string
	stats   protocol.Stats
	err     error
	updated time.Time
}

func newHeader(target string) headerModel {
	return headerModel{target: target}
}

func (h *headerModel) update(snap SnapshotMsg) {
	h.err = snap.Err
	h.updated = snap.At
	if snap.Err == nil {
		h.stats = snap.Stats
	}
}

func (h headerModel) View(width int) string {
	left := titleStyle.Render("wsChat monitor")
	right := descStyle.Render(h.target)
	if h.err != nil {
		right += "  " + errorStyle.Render("● unreachable")
	} else if !h.updated.IsZero() {
		right += "  " + lipgloss.NewStyle().Foreground(colorSuccess).Render("● live")
	}

	info := fmt.Sprintf("  Connections: %d   Cached dialogs: %d   Storage: %s   Uptime: %s",
		h.stats.Connections, h.stats.CachedDialogs, orDash(h.stats.Storage), orDash(h.stats.Uptime))
	info += "\n  Allowed tags: " + orDash(strings.Join(h.stats.AllowedTags, " "))
	if h.err != nil {
		info += "\n" + errorStyle.Render("  "+h.err.Error())
	}

	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right)-6, 1)
	firstRow := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(gap).Render(""),
		right,
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorPrimary).
		Width(width-2).
		Padding(0, 1).
		Render(firstRow + "\n" + descStyle.Render(info))
}

// --- Connections ---

type connectionsModel struct {
	items  []protocol.Connection
	cursor int
}

func (c *connectionsModel) update(conns []protocol.Connection) {
	items := slices.Clone(conns)
	slices.SortFunc(items, func(a, b protocol.Connection) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	c.items = items
	if c.cursor >= len(c.items) {
		c.cursor = max(0, len(c.items)-1)
	}
}

func (c connectionsModel) Update(msg tea.Msg) (connectionsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "j", "down":
			if c.cursor < len(c.items)-1 {
				c.cursor++
			}
		case "k", "up":
			if c.cursor > 0 {
				c.cursor--
			}
		case "G":
			c.cursor = max(0, len(c.items)-1)
		case "g":
			c.cursor = 0
		}
	}
	return c, nil
}

func (c connectionsModel) View() string {
	if len(c.items) == 0 {
		return dimStyle.Render("  No connected users")
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorSubtle).Bold(true)
	rows := fmt.Sprintf("  %-12s %s\n", headerStyle.Render("USER"), headerStyle.Render("CONNECTION"))

	start := 0
	if limit := c.height() - 1; c.cursor >= limit {
		start = c.cursor - limit + 1
	}
	end := min(len(c.items), start+c.height()-1)
	for i := start; i < end; i++ {
		conn := c.items[i]
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == c.cursor {
			cursor = selectedStyle.Render("> ")
			style = style.Bold(true)
		}
		rows += cursor + fmt.Sprintf("%-12s %s",
			style.Render(fmt.Sprintf("%d", conn.UserID)),
			dimStyle.Render(conn.ConnID),
		) + "\n"
	}
	return strings.TrimSuffix(rows, "\n")
}

// Selected returns the connection under the cursor.
func (c connectionsModel) Selected() (protocol.Connection, bool) {
	if len(c.items) == 0 {
		return protocol.Connection{}, false
	}
	return c.items[c.cursor], true
}

func (c connectionsModel) height() int {
	return min(len(c.items)+1, 12) // header + rows
}

// --- Recent events ---

type eventsModel struct {
	viewport viewport.Model
	events   []protocol.RecentEvent
}

func newEvents() eventsModel {
	return eventsModel{viewport: viewport.New(80, 10)}
}

func (e *eventsModel) SetSize(width, height int) {
	e.viewport.Width = width
	e.viewport.Height = height
	e.render()
}

// update replaces the panel content with events, newest first.
func (e *eventsModel) update(events []protocol.RecentEvent) {
	e.events = events
	e.render()
}

// render cuts every line to the panel width so long error details do not wrap.
func (e *eventsModel) render() {
	if len(e.events) == 0 {
		e.viewport.SetContent(dimStyle.Render("  No activity yet"))
		return
	}
	width := uint(max(e.viewport.Width, 1))
	lines := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		lines = append(lines, truncate.StringWithTail(formatEvent(ev), width, "…"))
	}
	e.viewport.SetContent(strings.Join(lines, "\n"))
}

func formatEvent(ev protocol.RecentEvent) string {
	line := fmt.Sprintf("  %s %s", ev.At.Local().Format("15:04:05"), eventStyle(ev.Kind).Render(fmt.Sprintf("%-10s", ev.Kind)))
	if ev.DialogID != 0 {
		line += fmt.Sprintf("  dialog=%d", ev.DialogID)
	}
	if ev.UserID != 0 {
		line += fmt.Sprintf("  user=%d", ev.UserID)
	}
	if ev.Detail != "" {
		line += "  " + dimStyle.Render(ev.Detail)
	}
	return line
}

func (e eventsModel) Update(msg tea.Msg) (eventsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "g":
			e.viewport.GotoTop()
			return e, nil
		case "G":
			e.viewport.GotoBottom()
			return e, nil
		}
	}
	var cmd tea.Cmd
	e.viewport, cmd = e.viewport.Update(msg)
	return e, cmd
}

func (e eventsModel) View() string {
	return e.viewport.View()
}

// --- Help ---

type helpModel struct {
	visible bool
}

func (h *helpModel) toggle() {
	h.visible = !h.visible
}

func (h helpModel) bar() string {
	return helpStyle.Render("  q quit  Tab switch  j/k navigate  r refresh  ? help")
}

func (h helpModel) View() string {
	binds := []struct {
		key  string
		desc string
	}{
		{"q / Ctrl+C", "Quit"},
		{"Tab", "Switch between Connections and Recent activity"},
		{"j / Down", "Move down / scroll down"},
		{"k / Up", "Move up / scroll up"},
		{"g / G", "Jump to top / bottom"},
		{"r", "Refresh now"},
		{"?", "Toggle this help"},
	}

	keyStyle := lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Width(14)
	textStyle := lipgloss.NewStyle().Foreground(colorText)

	s := titleStyle.Render("Keyboard Shortcuts") + "\n\n"
	for _, b := range binds {
		s += "  " + keyStyle.Render(b.key) + textStyle.Render(b.desc) + "\n"
	}
	s += "\n" + helpStyle.Render("  Press ? to close")
	return lipgloss.NewStyle().Padding(1, 2).Render(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
