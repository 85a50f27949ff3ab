package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aryainguz/tldev-backend/internal/adapters/httpapi"
	"github.com/Aryainguz/tldev-backend/internal/app"
	"github.com/Aryainguz/tldev-backend/internal/infra/config"
	httpinfra "github.com/Aryainguz/tldev-backend/internal/infra/http"
	applog "github.com/Aryainguz/tldev-backend/internal/infra/log"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось собрать приложение")
	}
	defer application.Close()

	if err := application.Migrate(logger); err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось применить миграции")
	}

	server := httpinfra.NewServer(logger)
	httpapi.New(httpapi.Deps{
		Pipeline:   application.Pipeline,
		Dispatch:   application.Dispatch,
		Feed:       application.Feed,
		Actions:    application.Actions,
		Users:      application.Users,
		Jobs:       application.Store,
		Ledger:     application.Store,
		CronSecret: cfg.CronSecret,
		Location:   application.Slot.Location,
	}, logger).Register(server.Router)

	if cfg.CronSecret == "" {
		logger.Warn().Msg("api: CRON_SECRET не задан, cron-эндпоинты отвечают 503")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: ошибка остановки сервера")
		}
	}()

	if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("api: сервер остановлен с ошибкой")
	}
	logger.Info().Msg("api: остановлен")
}
