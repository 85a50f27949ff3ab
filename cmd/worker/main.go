package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aryainguz/tldev-backend/internal/app"
	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/config"
	applog "github.com/Aryainguz/tldev-backend/internal/infra/log"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
	"github.com/Aryainguz/tldev-backend/internal/infra/queue"
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
		logger.Fatal().Err(err).Msg("worker: не удалось собрать приложение")
	}
	defer application.Close()

	if application.Consumer == nil {
		logger.Fatal().Msg("worker: не указан брокер (RABBITMQ_URL или REDIS_ADDR)")
	}

	logger.Info().Msg("worker: запуск обработки очереди обогащения")
	err = application.Consumer.Consume(ctx, func(ctx context.Context, msg queue.DraftMessage) error {
		item := application.Pipeline.EnrichTip(ctx, msg.TipID)
		if item.Status == domain.RunStatusFailed {
			return errors.New(item.Error)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: чтение очереди прервано")
	}
	logger.Info().Msg("worker: остановлен")
}
