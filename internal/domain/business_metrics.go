package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     *string
	TipID      *string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventUserRegistered фиксирует регистрацию нового пользователя.
	BusinessMetricEventUserRegistered = "user_registered"
	// BusinessMetricEventTipsGenerated фиксирует успешную генерацию черновиков.
	BusinessMetricEventTipsGenerated = "tips_generated"
	// BusinessMetricEventTipPublished фиксирует публикацию совета после обогащения.
	BusinessMetricEventTipPublished = "tip_published"
	// BusinessMetricEventPushDelivered фиксирует завершение рассылки слота.
	BusinessMetricEventPushDelivered = "push_delivered"
	// BusinessMetricEventTipAction фиксирует действие пользователя над советом.
	BusinessMetricEventTipAction = "tip_action"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
