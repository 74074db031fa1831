package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "collections:changed"

// NewRedisClient parses url and verifies the server answers a PING.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisPublisher publishes events as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev event.CollectionsChanged) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal collections changed: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}

// RedisSubscriber forwards a pub/sub channel into a Publisher, usually a Bus.
type RedisSubscriber struct {
	client  redis.UniversalClient
	channel string
	sink    Publisher
	logger  *slog.Logger
}

func NewRedisSubscriber(client redis.UniversalClient, channel string, sink Publisher, logger *slog.Logger) *RedisSubscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSubscriber{
		client:  client,
		channel: channel,
		sink:    sink,
		logger:  logger.With("component", "trigger_redis", "channel", channel),
	}
}

// Run blocks until ctx is done or the subscription fails. Malformed
// payloads are logged and skipped.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				s.logger.Warn("dropping malformed trigger payload", "error", err)
				continue
			}
			metrics.TriggerEventsReceived.WithLabelValues("redis").Inc()
			if err := s.sink.Publish(ctx, ev); err != nil {
				return fmt.Errorf("forward trigger: %w", err)
			}
		}
	}
}

// decodeEvent accepts a JSON CollectionsChanged or an empty payload, which
// means "something changed".
func decodeEvent(payload string) (event.CollectionsChanged, error) {
	var ev event.CollectionsChanged
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return event.CollectionsChanged{}, fmt.Errorf("decode collections changed: %w", err)
		}
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev, nil
}
