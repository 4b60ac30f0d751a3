package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emailmanager/internal/app"
	"emailmanager/internal/config"
	"emailmanager/internal/listener"
	"emailmanager/internal/logging"
)

func main() {
	cfg, err := config.Load()
	must(err)
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	a, err := app.Open(cfg, log)
	must(err)
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	proc, notifier, err := a.Pipeline(ctx)
	must(err)

	svc := listener.NewService(proc, notifier, time.Duration(cfg.CheckIntervalSec)*time.Second, log)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
