// Package main is the entrypoint for idgen.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/server"
	"github.com/AutoMQ/idgen/pkg/server/config"
	"github.com/AutoMQ/idgen/pkg/util/logutil"
	"github.com/AutoMQ/idgen/pkg/util/traceutil"
)

func main() {
	cfg, err := config.NewConfig(os.Args[1:], os.Stderr)
	if errors.Cause(err) == pflag.ErrHelp {
		os.Exit(0)
	}

	// create a logger first
	logger := cfg.Logger()
	if logger == nil {
		// something went wrong, create a new temporary logger
		var zapErr error
		logger, zapErr = zap.NewProduction()
		if zapErr != nil {
			fmt.Fprintf(os.Stderr, "error creating zap logger %v\n", zapErr)
			os.Exit(1)
		}
	}
	defer logutil.LogPanicAndExit(logger)
	logger.Info("running", zap.Strings("args", os.Args))
	if err != nil {
		logger.Error("failed to parse config", zap.Error(err))
		exit(1, func() { _ = logger.Sync() })
	}

	syncLogger := func() { _ = cfg.Logger().Sync() }

	// check config
	err = cfg.Adjust()
	if err != nil {
		logger.Error("failed to adjust config", zap.Error(err))
		exit(1, syncLogger)
	}
	err = cfg.Validate()
	if err != nil {
		logger.Error("failed to validate config", zap.Error(err))
		exit(1, syncLogger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = traceutil.WithNewTraceID(ctx)
	logger = logger.With(traceutil.TraceLogField(ctx))

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGINT,
		syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sc:
			logger.Info("got signal to exit", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	// create and start server
	svr, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", zap.Error(err))
		exit(1, syncLogger)
	}
	err = svr.Start()
	if err != nil {
		logger.Error("failed to start server", zap.Error(err))
		exit(1, syncLogger)
	}

	code := 0
	if err := run(ctx, svr, cfg, logger); err != nil {
		logger.Error("failed to allocate ids", zap.Error(err))
		code = 1
	}

	svr.Close()
	exit(code, syncLogger)
}

func run(ctx context.Context, svr *server.Server, cfg *config.Config, logger *zap.Logger) error {
	allocator, err := svr.Allocator()
	if err != nil {
		return err
	}
	err = generate(ctx, allocator, cfg.Count, cfg.Concurrency, os.Stdout, logger)
	stats := svr.Stats()
	logger.Info("done", zap.Uint64("allocated", stats.Allocated), zap.Uint64("reservations", stats.Reservations))
	return err
}

func exit(code int, deferred func()) {
	deferred()
	os.Exit(code)
}
