package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

// RabbitEnrichQueue публикует и читает задания на обогащение через AMQP.
type RabbitEnrichQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   zerolog.Logger

	mu sync.Mutex
}

var _ domain.EnrichQueue = (*RabbitEnrichQueue)(nil)

// NewRabbitEnrichQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitEnrichQueue(amqpURL, queue string, logger zerolog.Logger) (*RabbitEnrichQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	return &RabbitEnrichQueue{conn: conn, ch: ch, queue: queue, log: logger}, nil
}

// PublishDrafts публикует по сообщению на каждый черновик.
func (q *RabbitEnrichQueue) PublishDrafts(ctx context.Context, tipIDs []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range tipIDs {
		body, err := encodeDraft(id)
		if err != nil {
			return err
		}
		start := time.Now()
		err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    start,
			Body:         body,
		})
		metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
		if err != nil {
			return fmt.Errorf("publish %s: %w", id, err)
		}
	}
	return nil
}

// Consume читает очередь по одному сообщению. Битые сообщения отбрасываются,
// ошибка обработчика возвращает сообщение в очередь один раз.
func (q *RabbitEnrichQueue) Consume(ctx context.Context, handle Handler) error {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp: delivery channel closed")
			}
			q.handleDelivery(ctx, d, handle)
		}
	}
}

func (q *RabbitEnrichQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handle Handler) {
	msg, err := decodeDraft(d.Body)
	if err != nil {
		q.log.Error().Err(err).Msg("queue: drop malformed message")
		_ = d.Nack(false, false)
		return
	}
	if err := handle(ctx, msg); err != nil {
		requeue := !d.Redelivered
		q.log.Error().Err(err).Str("tip_id", msg.TipID).Bool("requeue", requeue).Msg("queue: handler failed")
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// Close закрывает канал и соединение.
func (q *RabbitEnrichQueue) Close() error {
	chErr := q.ch.Close()
	connErr := q.conn.Close()
	return errors.Join(chErr, connErr)
}
