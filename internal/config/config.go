package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Verbose enables debug output when true
var Verbose bool

// Debugf prints debug messages when Verbose is true
func Debugf(format string, args ...any) {
	if Verbose {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

// DataDir returns the tool's state directory (~/.gatelink), creating it
// if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".gatelink")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	return dir, nil
}
