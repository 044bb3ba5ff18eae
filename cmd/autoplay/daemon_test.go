package main

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/jz315/autoplay/internal/scheduler"
	"github.com/jz315/autoplay/internal/store"
	"github.com/jz315/autoplay/pkg/client"
)

// freeAddr returns a loopback address nothing is listening on
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// daemonEnv configures a quiet daemon that never reaches the network
func daemonEnv(t *testing.T, addr string) {
	t.Helper()
	t.Setenv("RPC_ADDR", addr)
	t.Setenv("RPC_SECRET", testSecret)
	t.Setenv("HOLIDAY_FEED_URL", "")
	t.Setenv("PLAYER_COMMAND", "true")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("LOG_CONSOLE_ENABLED", "false")
	t.Setenv("LOG_FILE_ENABLED", "false")
}

// runDaemon starts "autoplay daemon" and returns a client for it once it answers
func runDaemon(t *testing.T, addr string) (*client.Client, <-chan error) {
	t.Helper()
	app := newApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- app.Run([]string{"autoplay", "daemon"})
	}()

	rc := client.NewClient(addr, testSecret, nil)
	t.Cleanup(func() { _ = rc.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := rc.Status(ctx)
		cancel()
		if err == nil {
			return rc, done
		}
		select {
		case err := <-done:
			t.Fatalf("daemon exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon never answered: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// stopDaemon asks the daemon to shut down over RPC and waits for it to return
func stopDaemon(t *testing.T, rc *client.Client, done <-chan error) {
	t.Helper()
	if err := rc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("daemon returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestDaemon_FileBackend(t *testing.T) {
	addr := freeAddr(t)
	stateFile := filepath.Join(t.TempDir(), "state.json")
	daemonEnv(t, addr)
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("STATE_FILE", stateFile)

	rc, done := runDaemon(t, addr)
	if _, err := rc.Add(context.Background(), "2099-06-01", "07:30", "wake.mp3"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	st, err := rc.Status(context.Background())
	if err != nil || !st.Running || st.QueueDepth != 1 {
		t.Fatalf("unexpected status %+v, %v", st, err)
	}

	stopDaemon(t, rc, done)

	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatalf("state file not written: %v", err)
	}
	if !strings.Contains(string(data), "wake.mp3") {
		t.Errorf("event missing from state file: %s", data)
	}

	// A second daemon picks the event up from the file
	rc, done = runDaemon(t, addr)
	events, err := rc.List(context.Background())
	if err != nil || len(events) != 1 || events[0].Media != "wake.mp3" {
		t.Errorf("restarted daemon lists %+v, %v", events, err)
	}
	stopDaemon(t, rc, done)
}

func TestDaemon_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := freeAddr(t)
	daemonEnv(t, addr)
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	rc, done := runDaemon(t, addr)
	if !mr.Exists(scheduler.DefaultLockKey) {
		t.Error("running daemon should hold the instance lock")
	}
	if _, err := rc.Add(context.Background(), "2099-06-01", "07:30", "wake.mp3"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stopDaemon(t, rc, done)

	if mr.Exists(scheduler.DefaultLockKey) {
		t.Error("instance lock not released on shutdown")
	}
	state, err := mr.Get(store.DefaultRedisKey)
	if err != nil || !strings.Contains(state, "wake.mp3") {
		t.Errorf("state not saved to redis: %q, %v", state, err)
	}
}

func TestDaemon_SecondInstanceRefused(t *testing.T) {
	mr := miniredis.RunT(t)
	if err := mr.Set(scheduler.DefaultLockKey, "someone-else"); err != nil {
		t.Fatal(err)
	}
	daemonEnv(t, freeAddr(t))
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	app := newApp()
	app.Writer = io.Discard
	err := app.Run([]string{"autoplay", "daemon"})
	if err == nil || !strings.Contains(err.Error(), "another autoplay instance") {
		t.Errorf("expected the lock to refuse a second daemon, got %v", err)
	}
}
