package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const payloadField = "payload"

// StreamQueue implements publish and consume on Redis Streams
type StreamQueue struct {
	client *redis.Client
	cfg    config.QueueConfig
	log    *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewStreamQueue creates a StreamQueue on an existing Redis client
func NewStreamQueue(client *redis.Client, cfg config.QueueConfig, log *zap.Logger) *StreamQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamQueue{
		client:   client,
		cfg:      cfg,
		log:      log.Named("queue"),
		handlers: make(map[string]Handler),
	}
}

// Publish appends a message to the topic stream. Transient failures are
// retried with exponential backoff up to the configured attempt limit.
func (q *StreamQueue) Publish(ctx context.Context, topic string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < q.cfg.MaxPublishTry; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: topic,
			Values: map[string]any{payloadField: payload},
		}).Err()
		if err == nil {
			return nil
		}
		lastErr = err

		logger.L(ctx).Warn("failed to publish message, retrying",
			zap.String("topic", topic),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return fmt.Errorf("failed to publish to %s after %d attempts: %w", topic, q.cfg.MaxPublishTry, lastErr)
}

// Subscribe registers the handler for a topic. Must be called before
// Start.
func (q *StreamQueue) Subscribe(topic string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = handler
}

// Start spawns one consumer goroutine per subscribed topic and returns.
// Consumers run until the context is canceled or Close is called.
func (q *StreamQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	for topic, handler := range q.handlers {
		q.wg.Add(1)
		go q.consumeLoop(ctx, topic, handler)
	}
}

// Close stops all consumers and waits for in-flight handlers
func (q *StreamQueue) Close() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *StreamQueue) consumeLoop(ctx context.Context, topic string, handler Handler) {
	defer q.wg.Done()

	log := q.log.With(zap.String("topic", topic))

	q.ensureGroup(ctx, topic, log)

	claimStart := "0-0"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Reclaim deliveries whose consumer died mid-processing
		claimStart = q.claimStale(ctx, topic, handler, claimStart, log)

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.ConsumerGroup,
			Consumer: q.cfg.ConsumerName,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    q.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Error("failed to read from stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.process(ctx, topic, msg, handler, log)
			}
		}
	}
}

// ensureGroup creates the consumer group, retrying until it succeeds or
// the context ends. BUSYGROUP means another instance already created it.
func (q *StreamQueue) ensureGroup(ctx context.Context, topic string, log *zap.Logger) {
	backoff := time.Second
	for {
		err := q.client.XGroupCreateMkStream(ctx, topic, q.cfg.ConsumerGroup, "0").Err()
		if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
			return
		}
		if ctx.Err() != nil {
			return
		}

		log.Warn("failed to create consumer group, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (q *StreamQueue) claimStale(ctx context.Context, topic string, handler Handler, start string, log *zap.Logger) string {
	msgs, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    q.cfg.ConsumerGroup,
		Consumer: q.cfg.ConsumerName,
		MinIdle:  q.cfg.ClaimMinIdle,
		Start:    start,
		Count:    10,
	}).Result()
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, redis.Nil) {
			log.Warn("failed to claim stale deliveries", zap.Error(err))
		}
		return "0-0"
	}

	for _, msg := range msgs {
		q.process(ctx, topic, msg, handler, log)
	}
	return next
}

func (q *StreamQueue) process(ctx context.Context, topic string, msg redis.XMessage, handler Handler, log *zap.Logger) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		// Malformed entry, nothing can process it
		log.Error("dropping message without payload", zap.String("message_id", msg.ID))
		q.ack(ctx, topic, msg.ID, log)
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, q.cfg.HandlerTimeout)
	err := handler(handlerCtx, []byte(raw))
	cancel()

	if err != nil {
		// Leave unacknowledged; the delivery is reclaimed later
		log.Error("handler failed, message will be redelivered",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return
	}

	q.ack(ctx, topic, msg.ID, log)
}

func (q *StreamQueue) ack(ctx context.Context, topic, id string, log *zap.Logger) {
	if err := q.client.XAck(ctx, topic, q.cfg.ConsumerGroup, id).Err(); err != nil && ctx.Err() == nil {
		log.Error("failed to acknowledge message",
			zap.String("message_id", id),
			zap.Error(err))
	}
}
