package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/omnistrate-community/resource-scheduler/internal/logger"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

/**
 * Resource scheduler
 *
 * Starts or stops the RDS, ECS, Auto Scaling and EC2 resources of an account
 * on demand, and reports whether the RDS fleet has settled. It runs either as
 * an HTTP service (serve) or as a one-shot command (run, check).
 */
func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chExit := make(chan os.Signal, 1)
	signal.Notify(chExit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-chExit
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	if err := newRootCommand(log).ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}
