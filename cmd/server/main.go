package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"marketchat/observability"
	"marketchat/persistence"
	"marketchat/server"
	"marketchat/store"
)

// Exit codes give the service manager a meaningful status.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main stays a thin wrapper; run owns the lifecycle so every defer
	// fires before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	level, err := config.SlogLevel()
	if err != nil {
		return exitConfig, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// 2. State: load whatever a previous run persisted.
	directory := store.NewDirectory()
	conversations := store.NewConversationStore()
	files := persistence.NewFileStore(config.DataDir, logger)
	if err := files.Load(directory, conversations); err != nil {
		return exitRuntime, fmt.Errorf("loading state from %s: %w", config.DataDir, err)
	}
	logger.Info("state loaded",
		"data_dir", config.DataDir,
		"participants", len(directory.All()),
		"conversations", len(conversations.All()),
	)

	// 3. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Telemetry
	var monitor *observability.Monitor
	if config.EnableStats {
		monitor = observability.NewMonitor(logger)
		go monitor.Listen(ctx, config.StatsInterval)
	}

	// 5. Server
	srv := server.New(logger, directory, conversations, files, monitor)
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(config.Addr()); err != nil {
			errChan <- fmt.Errorf("listener error: %w", err)
		}
		close(errChan)
	}()

	// 6. Block until a signal arrives, a peer sends Exit, or the
	// listener crashes.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-errChan:
		if ok {
			srv.Close()
			return exitRuntime, err
		}
		// Listener returned cleanly: a peer requested Exit and state is
		// already flushed.
	}

	srv.Close()
	logger.Info("program stopped cleanly")
	return exitOK, nil
}
