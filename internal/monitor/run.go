package monitor

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Run opens the dashboard against the admin API at baseURL and blocks until
// the user quits.
func Run(baseURL, token string, interval time.Duration) error {
	m := NewModel(NewClient(baseURL, token), baseURL, interval)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
