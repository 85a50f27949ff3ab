// Package actions применяет действия пользователя к советам.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

// Синтетический профиль пользователя, впервые пришедшего с действием.
const (
	lazyEmailDomain = "users.tldev"
	lazyProvider    = "client"
)

// ErrInvalidUserID возвращается, если идентификатор пользователя не UUID.
var ErrInvalidUserID = errors.New("actions: user id must be a uuid")

// Service применяет like/save/share.
type Service struct {
	actions domain.ActionRepo
	users   domain.UserRepo
	events  domain.BusinessMetricRepo
	log     zerolog.Logger
}

// NewService создаёт сервис действий. events может быть nil.
func NewService(actions domain.ActionRepo, users domain.UserRepo, events domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{actions: actions, users: users, events: events, log: logger.With().Str("component", "actions").Logger()}
}

// Apply применяет действие. like и save переключаются повторным вызовом, share только добавляется.
// Пользователь, которого ещё нет, создаётся при первом действии.
func (s *Service) Apply(ctx context.Context, userID, tipID, rawKind string) (domain.ActionResult, error) {
	kind, err := domain.ParseActionKind(rawKind)
	if err != nil {
		return domain.ActionResult{}, err
	}
	userID, err = s.ensureUser(ctx, userID)
	if err != nil {
		return domain.ActionResult{}, err
	}
	res, err := s.actions.ApplyAction(ctx, userID, tipID, kind)
	if err != nil {
		metrics.IncTipAction(string(kind), "error")
		return domain.ActionResult{}, fmt.Errorf("apply %s: %w", kind, err)
	}
	metrics.IncTipAction(string(kind), string(res.Outcome))

	if s.events != nil {
		metric := domain.BusinessMetric{
			Event:    domain.BusinessMetricEventTipAction,
			UserID:   &userID,
			TipID:    &tipID,
			Metadata: map[string]any{"kind": string(kind), "outcome": string(res.Outcome)},
		}
		if err := s.events.RecordBusinessMetric(ctx, metric); err != nil {
			s.log.Warn().Err(err).Msg("actions: record business metric failed")
		}
	}
	s.log.Debug().Str("user_id", userID).Str("tip_id", tipID).Str("kind", string(kind)).
		Str("outcome", string(res.Outcome)).Msg("actions: applied")
	return res, nil
}

// ensureUser создаёт пользователя при первом действии и возвращает канонический id.
func (s *Service) ensureUser(ctx context.Context, userID string) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", ErrInvalidUserID
	}
	userID = id.String()
	user, created, err := s.users.EnsureUser(ctx, domain.UserProfile{
		ID:         userID,
		Email:      fmt.Sprintf("user-%s@%s", userID, lazyEmailDomain),
		Provider:   lazyProvider,
		ProviderID: userID,
	})
	if err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}
	if !created {
		return user.ID, nil
	}
	s.log.Info().Str("user_id", user.ID).Msg("actions: user created on first action")
	if s.events != nil {
		if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:    domain.BusinessMetricEventUserRegistered,
			UserID:   &user.ID,
			Metadata: map[string]any{"provider": lazyProvider},
		}); err != nil {
			s.log.Warn().Err(err).Msg("actions: record business metric failed")
		}
	}
	return user.ID, nil
}
