package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/jz315/autoplay/internal/config"
	"github.com/jz315/autoplay/internal/holiday"
	"github.com/jz315/autoplay/internal/logger"
	"github.com/jz315/autoplay/internal/metrics"
	"github.com/jz315/autoplay/internal/playback"
	"github.com/jz315/autoplay/internal/queue"
	"github.com/jz315/autoplay/internal/rpc"
	"github.com/jz315/autoplay/internal/scheduler"
	"github.com/jz315/autoplay/internal/store"
)

const shutdownTimeout = 10 * time.Second

// connectWithRetry attempts to connect to Redis with exponential backoff
func connectWithRetry(redisURL string, maxRetries int, log logger.Logger) (*store.RedisStore, error) {
	var rs *store.RedisStore
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		rs, err = store.NewRedisStore(redisURL)
		if err == nil {
			return rs, nil
		}

		// 2^attempt seconds, capped at 30 seconds
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.Warn("Failed to connect to Redis, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

func daemon(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ml, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := ml.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(ml)

	log := ml.WithComponent(logger.ComponentCLI).WithSource(logger.LogSourceInternal)
	log.Info("Daemon starting",
		"store", cfg.StoreBackend,
		"rpc_addr", cfg.RPCAddr,
		"timezone", cfg.Location.String(),
		"worker", cfg.Worker.String())

	if cfg.RPCSecret == "" {
		log.Warn("RPC_SECRET is empty, every RPC request will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		rs, err := connectWithRetry(cfg.RedisURL, 5, log)
		if err != nil {
			return err
		}
		defer rs.Close()

		lock, err := scheduler.AcquireLock(ctx, rs.Client(), scheduler.DefaultLockKey, cfg.LockTTL)
		if err != nil {
			return err
		}
		if lock == nil {
			return fmt.Errorf("another autoplay instance holds %s", scheduler.DefaultLockKey)
		}
		defer func() {
			rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer rcancel()
			if err := lock.Release(rctx); err != nil {
				log.Warn("Failed to release instance lock", "error", err)
			}
		}()
		go lock.KeepAlive(ctx, func(err error) {
			log.Error("Instance lock lost, shutting down", "error", err)
			cancel()
		})
		st = rs
	default:
		st = store.NewFileStore(cfg.StateFile)
	}

	player, err := playback.NewCommandPlayer(cfg.PlayerCommand, ml)
	if err != nil {
		return err
	}

	mc := metrics.Default()
	engine, err := scheduler.New(scheduler.Options{
		Queue:    queue.New(st, cfg.Location, ml),
		Holidays: holiday.NewFeedProvider(cfg.HolidayFeedURL, cfg.HolidayFetchTimeout, ml),
		Player:   player,
		Worker:   cfg.Worker,
		Metrics:  mc,
		Logger:   ml,
	})
	if err != nil {
		return err
	}

	if err := engine.Bootstrap(ctx); err != nil {
		return err
	}
	if engine.Debug() {
		ml.SetLevel(logger.LevelDebug)
		log.Debug("Debug logging enabled by persisted state")
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}

	refresher, err := scheduler.NewHolidayRefresher(engine, cfg.HolidayRefreshCron, cfg.Location, cfg.HolidayFetchTimeout, ml)
	if err != nil {
		return err
	}
	refresher.Start()

	server := rpc.NewServer(rpc.Config{Addr: cfg.RPCAddr, Secret: cfg.RPCSecret}, engine, mc, cancel, ml)
	if err := server.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)
	case <-ctx.Done():
		log.Info("Shutdown requested, initiating graceful shutdown")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("RPC server shutdown incomplete", "error", err)
	}
	if err := refresher.Stop(shutdownCtx); err != nil {
		log.Warn("Holiday refresh still running at shutdown", "error", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		// Playback outlived the grace period; cut it short and let the
		// worker retire the event
		log.Warn("Stopping playback in progress", "error", err)
		if err := player.Stop(); err != nil {
			log.Error("Failed to stop player", "error", err)
		}
		retireCtx, retireCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer retireCancel()
		if err := engine.Shutdown(retireCtx); err != nil {
			log.Error("Worker did not exit", "error", err)
		}
	}

	log.Info("Daemon shut down successfully")
	return nil
}
