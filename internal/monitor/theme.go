package monitor

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#0EA5E9") // sky
	colorAccent  = lipgloss.Color("#F59E0B") // amber
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#E5E7EB")
	colorSubtle  = lipgloss.Color("#9CA3AF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	descStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary)
)

// eventStyle colors a recent event by kind.
func eventStyle(kind string) lipgloss.Style {
	switch kind {
	case "delivered":
		return lipgloss.NewStyle().Foreground(colorSuccess)
	case "unread":
		return lipgloss.NewStyle().Foreground(colorWarning)
	case "":
		return lipgloss.NewStyle().Foreground(colorText)
	default:
		return lipgloss.NewStyle().Foreground(colorError)
	}
}
