package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/averho/wildset/cmd"
	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/telemetry"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	levelVar := new(slog.LevelVar)
	if level, err := logging.ParseLevel(settings.Main.LogLevel); err == nil {
		levelVar.Set(level)
	}
	logging.Init(levelVar)

	if err := telemetry.Init(settings, version); err != nil {
		logging.Warn("telemetry initialization failed", "error", err)
	}
	defer telemetry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings, levelVar, version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
