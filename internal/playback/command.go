package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/logger"
)

// MediaPlaceholder is replaced by the media path in a player command
const MediaPlaceholder = "{media}"

var errBusy = errors.New("player already running")

// CommandPlayer plays media by running an external player process and
// treating its exit as the end of playback. Only one process runs at a time.
type CommandPlayer struct {
	argv   []string
	logger logger.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	started time.Time
	media   string
}

var (
	_ Port     = (*CommandPlayer)(nil)
	_ Notifier = (*CommandPlayer)(nil)
)

// NewCommandPlayer parses a whitespace-separated command line such as
// "ffplay -nodisp -autoexit {media}"
func NewCommandPlayer(command string, log logger.Logger) (*CommandPlayer, error) {
	return NewCommandPlayerArgs(strings.Fields(command), log)
}

// NewCommandPlayerArgs creates a player from an argument vector. When no
// argument holds the media placeholder the media path is appended.
func NewCommandPlayerArgs(argv []string, log logger.Logger) (*CommandPlayer, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("player command is empty")
	}
	if log == nil {
		log = logger.Default()
	}

	hasPlaceholder := false
	for _, a := range argv {
		if strings.Contains(a, MediaPlaceholder) {
			hasPlaceholder = true
			break
		}
	}
	args := append([]string(nil), argv...)
	if !hasPlaceholder {
		args = append(args, MediaPlaceholder)
	}

	closed := make(chan struct{})
	close(closed)

	return &CommandPlayer{
		argv:   args,
		logger: log.WithComponent(logger.ComponentPlayback).WithSource(logger.LogSourcePlayback),
		done:   closed,
	}, nil
}

// Start launches the player for mediaRef. The process is not tied to ctx:
// playback, once started, runs to completion or until Stop.
func (p *CommandPlayer) Start(ctx context.Context, mediaRef string) error {
	if err := ctx.Err(); err != nil {
		return &apperrors.PlaybackError{MediaRef: mediaRef, Err: err}
	}

	info, err := os.Stat(mediaRef)
	if err != nil {
		return &apperrors.PlaybackError{MediaRef: mediaRef, Err: fmt.Errorf("media not readable: %w", err)}
	}
	if info.IsDir() {
		return &apperrors.PlaybackError{MediaRef: mediaRef, Err: fmt.Errorf("media is a directory")}
	}

	bin, err := exec.LookPath(p.argv[0])
	if err != nil {
		return &apperrors.PlaybackError{MediaRef: mediaRef, Err: fmt.Errorf("player not found: %w", err)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return &apperrors.PlaybackError{MediaRef: mediaRef, Err: errBusy}
	}

	args := make([]string, 0, len(p.argv)-1)
	for _, a := range p.argv[1:] {
		args = append(args, strings.ReplaceAll(a, MediaPlaceholder, mediaRef))
	}

	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return &apperrors.PlaybackError{MediaRef: mediaRef, Err: fmt.Errorf("failed to start player: %w", err)}
	}

	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	p.started = time.Now()
	p.media = mediaRef

	p.logger.Info("Player started", "media", mediaRef, "pid", cmd.Process.Pid)

	go p.wait(cmd, done)
	return nil
}

func (p *CommandPlayer) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	p.mu.Lock()
	elapsed := time.Since(p.started)
	media := p.media
	p.cmd = nil
	p.media = ""
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("Player exited with error", "media", media, "elapsed", elapsed.String(), "error", err)
	} else {
		p.logger.Info("Player finished", "media", media, "elapsed", elapsed.String())
	}
	close(done)
}

// Busy implements Port
func (p *CommandPlayer) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Done implements Notifier
func (p *CommandPlayer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Stop kills the running player. It does not wait for the exit to be reaped;
// use Done for that.
func (p *CommandPlayer) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop player: %w", err)
	}
	return nil
}
