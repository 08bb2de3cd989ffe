package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chemrecon/internal/catalog"
	"chemrecon/internal/config"
	"chemrecon/internal/listener"
	"chemrecon/internal/logging"
	"chemrecon/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logger := logging.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cat, err := catalog.NewSyncService(cfg, pipeline.ParseWorkbook, logger).Load(ctx)
	must(err)
	source, err := listener.NewSource(ctx, cfg)
	must(err)

	svc := listener.NewService(cfg, source, pipeline.NewRunProcessor(cfg, cat, logger), logger)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
