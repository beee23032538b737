package tui

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tracklab/gatelink/internal/bond"
	"github.com/tracklab/gatelink/internal/device"
	"github.com/tracklab/gatelink/internal/transport"
)

// Run starts the TUI application.
func Run() error {
	tr, err := transport.NewBluetooth()
	if err != nil {
		return fmt.Errorf("bluetooth init: %w", err)
	}

	store, err := bond.OpenDefault()
	if err != nil {
		return fmt.Errorf("bond store: %w", err)
	}

	ctrl, err := device.New(tr, store, device.Options{})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	events, unsub := ctrl.Events()
	defer unsub()

	m := NewModel(ctrl, events, saveDownload)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}

	return nil
}

// saveDownload writes a finished download into the current directory,
// refusing to clobber an existing file.
func saveDownload(name string, data []byte) (string, error) {
	path := filepath.Base(name)
	if _, err := os.Stat(path); err == nil {
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s.%d", path, i)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				path = candidate
				break
			}
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
