// Package telegram отправляет операционные оповещения в чат Telegram.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter реализует domain.Alerter через Bot API.
type Alerter struct {
	bot    sender
	chatID int64
	env    string
	log    zerolog.Logger
}

var _ domain.Alerter = (*Alerter)(nil)

// NewAlerter создаёт оповещатель. Без токена или чата возвращает nil.
func NewAlerter(token string, chatID int64, env string, logger zerolog.Logger) (*Alerter, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	return newAlerter(bot, chatID, env, logger), nil
}

func newAlerter(bot sender, chatID int64, env string, logger zerolog.Logger) *Alerter {
	return &Alerter{bot: bot, chatID: chatID, env: env, log: logger.With().Str("component", "alerts").Logger()}
}

// Alert отправляет текст, разбивая длинные сообщения на части.
func (a *Alerter) Alert(ctx context.Context, text string) error {
	if a == nil {
		return nil
	}
	for _, part := range Split(fmt.Sprintf("⚠️ tldev [%s]\n%s", a.env, text), MessageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(a.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := a.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_message", "", start, err)
		if err != nil {
			a.log.Error().Err(err).Msg("alerts: send failed")
			return fmt.Errorf("telegram: send alert: %w", err)
		}
	}
	return nil
}
