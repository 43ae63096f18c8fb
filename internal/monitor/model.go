// Package monitor implements the terminal dashboard behind "wschat monitor".
// It polls the admin API and renders live connections and routing activity.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avtomon/wsChat/pkg/protocol"
)

// Source is what the dashboard polls. *Client implements it.
type Source interface {
	Stats(ctx context.Context) (protocol.Stats, error)
	Connections(ctx context.Context) ([]protocol.Connection, error)
}

// Panel identifies which dashboard panel is focused.
type Panel int

const (
	PanelConnections Panel = iota
	PanelEvents
)

// SnapshotMsg carries the result of one poll.
type SnapshotMsg struct {
	Stats       protocol.Stats
	Connections []protocol.Connection
	Err         error
	At          time.Time
}

type tickMsg time.Time

var (
	keyQuit    = key.NewBinding(key.WithKeys("ctrl+c", "q"))
	keySwitch  = key.NewBinding(key.WithKeys("tab"))
	keyHelp    = key.NewBinding(key.WithKeys("?"))
	keyRefresh = key.NewBinding(key.WithKeys("r"))
)

// Model is the root dashboard model.
type Model struct {
	source   Source
	target   string
	interval time.Duration

	header      headerModel
	connections connectionsModel
	events      eventsModel
	help        helpModel

	activePanel Panel
	width       int
	height      int
	quitting    bool
}

// NewModel creates a dashboard polling source every interval. target is
// only shown in the header.
func NewModel(source Source, target string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{
		source:   source,
		target:   target,
		interval: interval,
		header:   newHeader(target),
		events:   newEvents(),
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.poll
}

// poll fetches stats and connections in one round.
func (m Model) poll() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := SnapshotMsg{At: time.Now()}
	snap.Stats, snap.Err = m.source.Stats(ctx)
	if snap.Err != nil {
		return snap
	}
	snap.Connections, snap.Err = m.source.Connections(ctx)
	return snap
}

func (m Model) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.events.SetSize(msg.Width-4, m.eventsHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keySwitch):
			if m.activePanel == PanelConnections {
				m.activePanel = PanelEvents
			} else {
				m.activePanel = PanelConnections
			}
			return m, nil
		case key.Matches(msg, keyHelp):
			m.help.toggle()
			return m, nil
		case key.Matches(msg, keyRefresh):
			return m, m.poll
		}

	case tickMsg:
		return m, m.poll

	case SnapshotMsg:
		m.header.update(msg)
		if msg.Err == nil {
			m.connections.update(msg.Connections)
			m.events.update(msg.Stats.Recent)
			m.events.SetSize(m.width-4, m.eventsHeight())
		}
		return m, m.schedule()
	}

	var cmd tea.Cmd
	switch m.activePanel {
	case PanelConnections:
		m.connections, cmd = m.connections.Update(msg)
	case PanelEvents:
		m.events, cmd = m.events.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.help.visible {
		return m.help.View()
	}

	connStyle := panelStyle.Width(m.width - 2)
	evStyle := panelStyle.Width(m.width - 2)
	if m.activePanel == PanelConnections {
		connStyle = activePanelStyle.Width(m.width - 2)
	} else {
		evStyle = activePanelStyle.Width(m.width - 2)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(m.width),
		connStyle.Render(titleStyle.Render(" Connections")+"\n"+m.connections.View()),
		evStyle.Render(titleStyle.Render(" Recent activity")+"\n"+m.events.View()),
		m.help.bar(),
	)
}

// Quitting reports whether the user quit.
func (m Model) Quitting() bool { return m.quitting }

// ActivePanel returns the focused panel.
func (m Model) ActivePanel() Panel { return m.activePanel }

func (m Model) eventsHeight() int {
	used := 6 + m.connections.height() + 4
	return max(m.height-used, 5)
}
