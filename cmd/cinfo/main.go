package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/plgd-dev/cinfo/internal/app"
	"github.com/plgd-dev/cinfo/internal/config"
	"github.com/plgd-dev/cinfo/internal/history"
	"github.com/plgd-dev/cinfo/internal/logger"
)

// terminateGrace bounds the wait for the self-delivered SIGTERM.
const terminateGrace = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cinfo: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := app.NewClient(cfg, log)
	if err != nil {
		return err
	}

	store, err := history.NewStore(cfg.HistoryType, cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	opts := []app.Option{
		app.WithConsole(os.Stdin, os.Stdout),
		app.WithImportPath(here()),
	}
	if cfg.Terminate == config.TerminateSignal {
		opts = append(opts, app.WithTerminator(func() error {
			// restore the default disposition so SIGTERM ends the process
			stop()
			_ = store.Close()
			_ = logger.Close()
			return app.TerminateSelf(syscall.SIGTERM, terminateGrace)
		}))
	}

	err = app.New(cfg, log, client, store, opts...).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// here is the directory the executable runs from.
func here() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	return filepath.Dir(exe)
}
