package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/booking-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	// Logs go to stderr so they do not interleave with the conversation.
	logger := logging.NewWithWriter(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{Logger: logger, DisableSpeech: true})
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	language := cfg.DefaultLanguage
	if len(os.Args) > 1 {
		language = os.Args[1]
	}

	runErr := run(ctx, app.Orchestrator, os.Stdin, os.Stdout, language, cfg.AssistantName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
