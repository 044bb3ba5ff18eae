//go:build !windows && !darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// New returns the XDG autostart manager for the current user
func New() (Manager, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	return NewXDG(afero.NewOsFs(), filepath.Join(dir, "autostart")), nil
}
