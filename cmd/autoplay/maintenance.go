package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/urfave/cli"

	"github.com/jz315/autoplay/internal/autostart"
	"github.com/jz315/autoplay/internal/config"
	"github.com/jz315/autoplay/internal/logger"
	"github.com/jz315/autoplay/internal/updater"
	"github.com/jz315/autoplay/pkg/client"
)

const autostartName = "autoplay"

// Overridden in tests
var (
	newAutostart = autostart.New
	executable   = currentExecutable
)

func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

// install registers "autoplay daemon" to start at login, running in the
// current directory so it finds the same .env and state file
func install(c *cli.Context) error {
	exe, err := executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	m, err := newAutostart()
	if err != nil {
		return err
	}

	entry := autostart.Entry{
		Name:        autostartName,
		Description: "Automatic playback scheduler",
		Args:        []string{exe, "--workdir", dir, "daemon"},
		Dir:         dir,
	}
	if err := m.Install(entry); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "autostart installed: %s\n", m.Location(autostartName))
	return nil
}

func uninstall(c *cli.Context) error {
	m, err := newAutostart()
	if err != nil {
		return err
	}
	err = m.Remove(autostartName)
	if errors.Is(err, autostart.ErrNotInstalled) {
		fmt.Fprintln(c.App.Writer, "autostart not installed")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "autostart removed: %s\n", m.Location(autostartName))
	return nil
}

func newUpdater(cfg *config.Config, log logger.Logger) (*updater.Updater, error) {
	dir := cfg.InstallDir
	if dir == "" {
		exe, err := executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		dir = filepath.Dir(exe)
	}
	return updater.New(updater.Config{
		ReleaseURL:  cfg.UpdateReleaseURL,
		InstallDir:  dir,
		VersionFile: cfg.VersionFile,
		Fallback:    version,
		Logger:      log,
	})
}

func update(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Progress goes to the log file; the terminal gets the summary
	cfg.Logging.Console.Enabled = false
	ml, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer ml.Close()

	u, err := newUpdater(cfg, ml)
	if err != nil {
		return err
	}
	if n, err := u.Cleanup(); err != nil {
		ml.Warn("Failed to remove displaced files", "error", err)
	} else if n > 0 {
		ml.Info("Removed files displaced by the last update", "count", n)
	}

	ctx := context.Background()
	w := c.App.Writer

	if c.Bool("check") {
		chk, err := u.Check(ctx)
		if err != nil {
			return err
		}
		if chk.Available {
			fmt.Fprintf(w, "update available: %s -> %s\n", chk.Installed, chk.Latest.Tag)
		} else {
			fmt.Fprintf(w, "up to date (%s)\n", chk.Installed)
		}
		return nil
	}

	res, err := u.Update(ctx)
	if err != nil {
		return err
	}
	if !res.Applied {
		fmt.Fprintf(w, "up to date (%s)\n", res.From)
		return nil
	}
	fmt.Fprintf(w, "updated %s -> %s (%d files)\n", res.From, res.To, len(res.Files))

	if !c.Bool("restart") {
		fmt.Fprintln(w, "restart the daemon to run the new version")
		return nil
	}
	return restartDaemon(c)
}

// restartDaemon stops the running daemon and starts the freshly installed
// binary in its place
func restartDaemon(c *cli.Context) error {
	rc := client.NewClient(c.GlobalString("addr"), c.GlobalString("secret"), nil)
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := rc.Shutdown(ctx); err != nil {
		fmt.Fprintf(c.App.Writer, "daemon not reachable (%v); start it with \"autoplay daemon\"\n", err)
		return nil
	}

	// The old daemon lets playback finish; wait until it stops answering
	deadline := time.Now().Add(2 * shutdownTimeout)
	for time.Now().Before(deadline) {
		pctx, pcancel := context.WithTimeout(context.Background(), time.Second)
		_, err := rc.Status(pctx)
		pcancel()
		if err != nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	exe, err := executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, "daemon")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "daemon restarted (pid %d)\n", cmd.Process.Pid)
	return cmd.Process.Release()
}
