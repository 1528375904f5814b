package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/cradoe/leverpad/internal/app"
	"github.com/cradoe/leverpad/internal/config"
	seeders "github.com/cradoe/leverpad/internal/seeder"
	"github.com/cradoe/leverpad/internal/version"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := run(logger)
	if err != nil {
		trace := string(debug.Stack())
		logger.Error(err.Error(), "trace", trace)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	showVersion := flag.Bool("version", false, "display version and exit")
	seed := flag.Bool("seed", false, "seed development profiles and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s\n", version.Get())
		return nil
	}

	cfg := config.Load(logger)

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if *seed {
		return seeders.New(application.DB, logger).Run()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.StartWorkers(ctx)

	return application.ServeHTTP(ctx)
}
