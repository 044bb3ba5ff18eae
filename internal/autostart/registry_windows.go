//go:build windows

package autostart

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const runKey = `Software\Microsoft\Windows\CurrentVersion\Run`

// registryManager stores entries as values of the per-user Run key. The key
// has no working directory, so Entry.Dir must be carried in Args.
type registryManager struct{}

// New returns the Run key manager for the current user
func New() (Manager, error) {
	return registryManager{}, nil
}

func (registryManager) Location(name string) string {
	return `HKCU\` + runKey + `\` + name
}

func (registryManager) Install(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	k, _, err := registry.CreateKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("failed to open registry key: %w", err)
	}
	defer k.Close()

	if err := k.SetStringValue(e.Name, windows.ComposeCommandLine(e.Args)); err != nil {
		return fmt.Errorf("failed to set registry value: %w", err)
	}
	return nil
}

func (registryManager) Remove(name string) error {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return ErrNotInstalled
	}
	if err != nil {
		return fmt.Errorf("failed to open registry key: %w", err)
	}
	defer k.Close()

	if err := k.DeleteValue(name); err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return ErrNotInstalled
		}
		return fmt.Errorf("failed to delete registry value: %w", err)
	}
	return nil
}

func (registryManager) Installed(name string) (bool, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open registry key: %w", err)
	}
	defer k.Close()

	_, _, err = k.GetStringValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
