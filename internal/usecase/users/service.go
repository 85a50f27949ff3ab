// Package users регистрирует устройства и обновляет профиль пользователя.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

const (
	deviceEmailDomain = "device.tldev"
	deviceProvider    = "device"
	maxInterests      = 20
)

// ErrInvalidDevice возвращается при пустом идентификаторе устройства.
var ErrInvalidDevice = errors.New("users: device id is required")

// Service управляет пользователями.
type Service struct {
	users  domain.UserRepo
	events domain.BusinessMetricRepo
	log    zerolog.Logger
}

// NewService создаёт сервис пользователей. events может быть nil.
func NewService(users domain.UserRepo, events domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{users: users, events: events, log: logger.With().Str("component", "users").Logger()}
}

// Device содержит данные регистрации устройства.
type Device struct {
	DeviceID  string `json:"device_id"`
	PushToken string `json:"push_token"`
	Platform  string `json:"platform"`
	Name      string `json:"name"`
}

// RegisterDevice создаёт пользователя устройства, если его ещё нет, и сохраняет токен.
func (s *Service) RegisterDevice(ctx context.Context, d Device) (domain.User, error) {
	deviceID := strings.TrimSpace(d.DeviceID)
	if deviceID == "" {
		return domain.User{}, ErrInvalidDevice
	}
	user, created, err := s.users.EnsureUser(ctx, domain.UserProfile{
		Email:      fmt.Sprintf("device-%s@%s", strings.ToLower(deviceID), deviceEmailDomain),
		Provider:   deviceProvider,
		ProviderID: deviceID,
		Name:       strings.TrimSpace(d.Name),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure user: %w", err)
	}
	if created {
		s.log.Info().Str("user_id", user.ID).Msg("users: device registered")
		if s.events != nil {
			if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
				Event:    domain.BusinessMetricEventUserRegistered,
				UserID:   &user.ID,
				Metadata: map[string]any{"provider": deviceProvider, "platform": d.Platform},
			}); err != nil {
				s.log.Warn().Err(err).Msg("users: record business metric failed")
			}
		}
	}
	if token := strings.TrimSpace(d.PushToken); token != "" {
		if err := s.users.UpdatePushToken(ctx, user.ID, token, d.Platform); err != nil {
			return domain.User{}, fmt.Errorf("update push token: %w", err)
		}
		user.PushToken = token
		user.Platform = d.Platform
	}
	return user, nil
}

// UpdatePushToken заменяет токен пользователя. Последняя запись выигрывает.
func (s *Service) UpdatePushToken(ctx context.Context, userID, token, platform string) error {
	return s.users.UpdatePushToken(ctx, userID, strings.TrimSpace(token), platform)
}

// UpdateInterests нормализует и сохраняет интересы.
func (s *Service) UpdateInterests(ctx context.Context, userID string, interests []string) ([]string, error) {
	seen := make(map[string]struct{}, len(interests))
	clean := make([]string, 0, len(interests))
	for _, in := range interests {
		in = strings.ToLower(strings.TrimSpace(in))
		if in == "" {
			continue
		}
		if _, ok := seen[in]; ok {
			continue
		}
		seen[in] = struct{}{}
		clean = append(clean, in)
		if len(clean) == maxInterests {
			break
		}
	}
	if err := s.users.UpdateInterests(ctx, userID, clean); err != nil {
		return nil, err
	}
	return clean, nil
}

// Get возвращает пользователя.
func (s *Service) Get(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUser(ctx, userID)
}
