package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// ProgressState tracks an active download.
type ProgressState struct {
	progress    progress.Model
	percent     float64
	description string
	isActive    bool
}

// NewProgressState creates a new progress tracking state.
func NewProgressState() ProgressState {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	return ProgressState{
		progress: p,
	}
}

// Start begins tracking a new download.
func (p *ProgressState) Start(description string) {
	p.isActive = true
	p.percent = 0
	p.description = description
}

// Update updates the progress fraction (0.0 to 1.0).
func (p *ProgressState) Update(percent float64) {
	p.percent = percent
}

// Stop clears the progress display.
func (p *ProgressState) Stop() {
	p.isActive = false
}

// IsActive returns whether a download is in progress.
func (p *ProgressState) IsActive() bool {
	return p.isActive
}

// View renders the progress bar.
func (p ProgressState) View() string {
	if !p.isActive {
		return ""
	}
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return descStyle.Render(p.description) + "\n" + p.progress.ViewAs(p.percent)
}
