// Package autostart registers a command to run when the user logs in.
//
// Each platform has its own mechanism: an XDG autostart desktop entry on
// Linux and other Unix desktops, a launchd agent on macOS and the per-user
// Run registry key on Windows. New returns the one for the running system.
package autostart

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotInstalled is returned by Remove when no entry exists
var ErrNotInstalled = errors.New("autostart entry not installed")

// Entry is a command started at login
type Entry struct {
	// Name identifies the entry; it must be a plain file-name-safe word
	Name string
	// Description is shown by desktop session managers
	Description string
	// Args is the command line; Args[0] should be an absolute path
	Args []string
	// Dir is the working directory, when the mechanism supports one
	Dir string
}

func (e Entry) validate() error {
	if e.Name == "" || strings.ContainsAny(e.Name, `/\ `) {
		return fmt.Errorf("invalid autostart name %q", e.Name)
	}
	if len(e.Args) == 0 || e.Args[0] == "" {
		return fmt.Errorf("autostart command is empty")
	}
	return nil
}

// Manager installs and removes login entries
type Manager interface {
	Install(e Entry) error
	Remove(name string) error
	Installed(name string) (bool, error)
	// Location describes where entry name lives, for display
	Location(name string) string
}

// fileManager keeps one file per entry in a directory
type fileManager struct {
	fs     afero.Fs
	dir    string
	ext    string
	render func(Entry) []byte
}

func (m *fileManager) path(name string) string {
	return filepath.Join(m.dir, name+m.ext)
}

func (m *fileManager) Location(name string) string {
	return m.path(name)
}

func (m *fileManager) Install(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", m.dir, err)
	}
	if err := afero.WriteFile(m.fs, m.path(e.Name), m.render(e), 0o644); err != nil {
		return fmt.Errorf("failed to write autostart entry: %w", err)
	}
	return nil
}

func (m *fileManager) Remove(name string) error {
	err := m.fs.Remove(m.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotInstalled
	}
	return err
}

func (m *fileManager) Installed(name string) (bool, error) {
	return afero.Exists(m.fs, m.path(name))
}

// NewXDG returns a manager writing desktop entries into dir, usually
// $XDG_CONFIG_HOME/autostart
func NewXDG(fsys afero.Fs, dir string) Manager {
	return &fileManager{fs: fsys, dir: dir, ext: ".desktop", render: desktopEntry}
}

// NewLaunchAgent returns a manager writing launchd agents into dir, usually
// ~/Library/LaunchAgents
func NewLaunchAgent(fsys afero.Fs, dir string) Manager {
	return &fileManager{fs: fsys, dir: dir, ext: ".plist", render: launchAgent}
}

func desktopEntry(e Entry) []byte {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", e.Name)
	if e.Description != "" {
		fmt.Fprintf(&b, "Comment=%s\n", e.Description)
	}
	quoted := make([]string, len(e.Args))
	for i, a := range e.Args {
		quoted[i] = desktopQuote(a)
	}
	fmt.Fprintf(&b, "Exec=%s\n", strings.Join(quoted, " "))
	if e.Dir != "" {
		fmt.Fprintf(&b, "Path=%s\n", e.Dir)
	}
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return []byte(b.String())
}

// desktopQuote quotes an Exec argument per the desktop entry rules
func desktopQuote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n\"'\\><~|&;$*?#()`%") {
		return arg
	}
	r := strings.NewReplacer(`\`, `\\\\`, `"`, `\\"`, "`", "\\\\`", `$`, `\\$`, `%`, `%%`)
	return `"` + r.Replace(arg) + `"`
}

func launchAgent(e Entry) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	b.WriteString(`<plist version="1.0">` + "\n<dict>\n")
	fmt.Fprintf(&b, "\t<key>Label</key>\n\t<string>%s</string>\n", xmlEscape(e.Name))
	b.WriteString("\t<key>ProgramArguments</key>\n\t<array>\n")
	for _, a := range e.Args {
		fmt.Fprintf(&b, "\t\t<string>%s</string>\n", xmlEscape(a))
	}
	b.WriteString("\t</array>\n")
	if e.Dir != "" {
		fmt.Fprintf(&b, "\t<key>WorkingDirectory</key>\n\t<string>%s</string>\n", xmlEscape(e.Dir))
	}
	b.WriteString("\t<key>RunAtLoad</key>\n\t<true/>\n")
	b.WriteString("</dict>\n</plist>\n")
	return []byte(b.String())
}

var xmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
