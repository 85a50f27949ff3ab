package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})

	TipsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tips_generated_total",
		Help: "Советы, полученные от модели, по итогу проверки уникальности",
	}, []string{"outcome"})

	TipsEnrichedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tips_enriched_total",
		Help: "Итоги обогащения советов",
	}, []string{"outcome"})

	PushTicketsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_tickets_total",
		Help: "Тикеты отправки уведомлений по статусу",
	}, []string{"status"})

	StageRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_runs_total",
		Help: "Запуски стадий конвейера по статусу",
	}, []string{"stage", "status"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Длительность стадий конвейера",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"stage"})

	TipActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tip_actions_total",
		Help: "Действия пользователей над советами",
	}, []string{"kind", "outcome"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
		TipsGeneratedTotal,
		TipsEnrichedTotal,
		PushTicketsTotal,
		StageRunsTotal,
		StageDuration,
		TipActionsTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveStage записывает итог и длительность запуска стадии.
func ObserveStage(stage, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	StageRunsTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// AddPushTickets учитывает тикеты отправки.
func AddPushTickets(ok, failed int) {
	if ok > 0 {
		PushTicketsTotal.WithLabelValues("ok").Add(float64(ok))
	}
	if failed > 0 {
		PushTicketsTotal.WithLabelValues("error").Add(float64(failed))
	}
}

// IncTipsGenerated учитывает советы после проверки уникальности.
func IncTipsGenerated(kept, dropped int) {
	if kept > 0 {
		TipsGeneratedTotal.WithLabelValues("kept").Add(float64(kept))
	}
	if dropped > 0 {
		TipsGeneratedTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// IncTipEnriched учитывает итог обогащения одного совета.
func IncTipEnriched(outcome string) {
	TipsEnrichedTotal.WithLabelValues(outcome).Inc()
}

// IncTipAction учитывает действие пользователя.
func IncTipAction(kind, outcome string) {
	TipActionsTotal.WithLabelValues(kind, outcome).Inc()
}
