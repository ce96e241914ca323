package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go-cog-pipeline/internal/cli"
	"go-cog-pipeline/internal/config"
	"go-cog-pipeline/pkg/logger"
	"go-cog-pipeline/pkg/metric"

	"github.com/rs/zerolog/log"
)

func main() {
	// Config file path is optional, API_* environment variables apply either way
	cfg, err := config.Load(os.Getenv("API_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := logger.Init(cfg.LogLevel, cfg.Name); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}
	metric.Init(cfg.StatsdAddr, cfg.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Serve(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
