package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/jz315/autoplay/internal/errors"
	"github.com/jz315/autoplay/internal/logger"
)

// TestHelperProcess is not a real test. It stands in for the player: it
// sleeps for the duration written in the media file and exits.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	media := os.Args[len(os.Args)-1]
	data, err := os.ReadFile(media)
	if err != nil {
		os.Exit(2)
	}
	d, err := time.ParseDuration(strings.TrimSpace(string(data)))
	if err != nil {
		os.Exit(3)
	}
	time.Sleep(d)
	os.Exit(0)
}

func helperPlayer(t *testing.T) *CommandPlayer {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	p, err := NewCommandPlayerArgs([]string{os.Args[0], "-test.run=TestHelperProcess", "--", MediaPlaceholder}, &logger.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewCommandPlayerArgs() error = %v", err)
	}
	return p
}

func mediaFile(t *testing.T, d time.Duration) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte(d.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandPlayer_PlaysToCompletion(t *testing.T) {
	p := helperPlayer(t)

	if p.Busy() {
		t.Fatal("new player should be idle")
	}
	select {
	case <-p.Done():
	default:
		t.Fatal("Done() should be closed while idle")
	}

	if err := p.Start(context.Background(), mediaFile(t, 200*time.Millisecond)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !p.Busy() {
		t.Error("expected Busy() during playback")
	}

	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("playback did not finish")
	}
	if p.Busy() {
		t.Error("expected idle after completion")
	}
}

func TestCommandPlayer_SingleSlot(t *testing.T) {
	p := helperPlayer(t)
	media := mediaFile(t, 5*time.Second)

	if err := p.Start(context.Background(), media); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		_ = p.Stop()
		<-p.Done()
	}()

	err := p.Start(context.Background(), media)
	var pe *apperrors.PlaybackError
	if !errors.As(err, &pe) || !errors.Is(err, errBusy) {
		t.Errorf("expected busy PlaybackError, got %v", err)
	}
}

func TestCommandPlayer_Stop(t *testing.T) {
	p := helperPlayer(t)

	if err := p.Stop(); err != nil {
		t.Errorf("Stop() while idle error = %v", err)
	}

	if err := p.Start(context.Background(), mediaFile(t, time.Minute)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("stopped playback did not finish")
	}
}

func TestCommandPlayer_StartFailures(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		argv  []string
		media string
	}{
		{"missing media", []string{os.Args[0]}, filepath.Join(dir, "nope.mp3")},
		{"media is a directory", []string{os.Args[0]}, dir},
		{"missing player", []string{"definitely-not-a-player-binary"}, mediaFile(t, time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewCommandPlayerArgs(tt.argv, &logger.NoOpLogger{})
			if err != nil {
				t.Fatal(err)
			}
			err = p.Start(context.Background(), tt.media)
			var pe *apperrors.PlaybackError
			if !errors.As(err, &pe) {
				t.Fatalf("expected PlaybackError, got %v", err)
			}
			if pe.MediaRef != tt.media {
				t.Errorf("MediaRef = %q, want %q", pe.MediaRef, tt.media)
			}
			if p.Busy() {
				t.Error("failed start must leave the player idle")
			}
		})
	}
}

func TestNewCommandPlayer_Placeholder(t *testing.T) {
	p, err := NewCommandPlayer("ffplay -nodisp -autoexit", &logger.NoOpLogger{})
	if err != nil {
		t.Fatal(err)
	}
	if last := p.argv[len(p.argv)-1]; last != MediaPlaceholder {
		t.Errorf("expected media appended, argv = %v", p.argv)
	}

	if _, err := NewCommandPlayer("   ", &logger.NoOpLogger{}); err == nil {
		t.Error("expected error for empty command")
	}
}
