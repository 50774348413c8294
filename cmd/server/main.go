// Package main is the entry point for the catalyst ad exchange server
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	pbsconfig "github.com/nexusrtb/catalyst/internal/config"
	"github.com/nexusrtb/catalyst/pkg/logger"
)

func main() {
	logger.Init(logger.DefaultConfig())
	log := logger.Log

	cfg := ParseConfig()

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), pbsconfig.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
}
