package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

// RedisEnrichQueue держит очередь заданий в Redis lists, используется без брокера.
type RedisEnrichQueue struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

var _ domain.EnrichQueue = (*RedisEnrichQueue)(nil)

// NewRedisEnrichQueue создаёт очередь по указанному ключу.
func NewRedisEnrichQueue(client *redis.Client, key string, logger zerolog.Logger) *RedisEnrichQueue {
	return &RedisEnrichQueue{client: client, key: key, log: logger}
}

// PublishDrafts кладёт задания в очередь.
func (q *RedisEnrichQueue) PublishDrafts(ctx context.Context, tipIDs []string) error {
	if len(tipIDs) == 0 {
		return nil
	}
	payloads := make([]any, 0, len(tipIDs))
	for _, id := range tipIDs {
		body, err := encodeDraft(id)
		if err != nil {
			return err
		}
		payloads = append(payloads, body)
	}
	start := time.Now()
	err := q.client.LPush(ctx, q.key, payloads...).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push drafts: %w", err)
	}
	return nil
}

// Pop блокирующе читает задание из очереди.
func (q *RedisEnrichQueue) Pop(ctx context.Context) (DraftMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return DraftMessage{}, err
		}
		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return DraftMessage{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return DraftMessage{}, err
		}
		if len(res) != 2 {
			return DraftMessage{}, errors.New("redis queue: unexpected response")
		}
		msg, err := decodeDraft([]byte(res[1]))
		if err != nil {
			q.log.Error().Err(err).Msg("queue: drop malformed message")
			continue
		}
		return msg, nil
	}
}

// Consume читает задания, пока не отменён контекст. Ошибки обработчика только логируются:
// черновик подберёт пакетное обогащение по расписанию.
func (q *RedisEnrichQueue) Consume(ctx context.Context, handle Handler) error {
	for {
		msg, err := q.Pop(ctx)
		if err != nil {
			return err
		}
		if err := handle(ctx, msg); err != nil {
			q.log.Error().Err(err).Str("tip_id", msg.TipID).Msg("queue: handler failed")
		}
	}
}
