package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aryainguz/tldev-backend/internal/app"
	"github.com/Aryainguz/tldev-backend/internal/infra/config"
	applog "github.com/Aryainguz/tldev-backend/internal/infra/log"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать приложение")
	}
	defer application.Close()

	logger.Info().Dur("tick", cfg.Scheduler.Tick).Msg("scheduler: запуск")
	app.NewScheduler(application, cfg.Scheduler.Tick, cfg.Scheduler.GenerateEvery, cfg.Scheduler.EnrichEvery, logger).Run(ctx)
	logger.Info().Msg("scheduler: остановлен")
}
