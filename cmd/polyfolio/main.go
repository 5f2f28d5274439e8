package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	syncuc "polyfolio/internal/application/usecase/sync"
	"polyfolio/internal/infrastructure/config"
	"polyfolio/internal/infrastructure/logger"
	"polyfolio/internal/infrastructure/svc"
	"polyfolio/internal/interfaces/console"
)

func main() {
	logger.Setup("")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer func() { _ = sc.Close() }()

	service := syncuc.NewService(sc.BuildSyncServiceDeps())
	go console.Watch(ctx, sc.Store(), console.NewSink(), time.Minute)

	log.Info().
		Str("config", *configPath).
		Str("user", cfg.Upstream.User).
		Strs("statuses", cfg.App.PositionStatuses).
		Msg("polyfolio started")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("sync service exited")
	}
}
