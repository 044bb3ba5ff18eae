//go:build darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// New returns the launchd agent manager for the current user
func New() (Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}
	return NewLaunchAgent(afero.NewOsFs(), filepath.Join(home, "Library", "LaunchAgents")), nil
}
