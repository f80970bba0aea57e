package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/example/fleet-rides/internal/logging"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes each message to the topic named by its channel.
// The broker connection is verified lazily, once, with RetryPolicy.
type KafkaDispatcher struct {
	brokers []string
	writer  messageWriter
	dial    func(ctx context.Context, broker string) error
	retry   RetryPolicy
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool
}

func NewKafkaDispatcher(brokers []string, retry RetryPolicy, logger *slog.Logger) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	return &KafkaDispatcher{
		brokers: brokers,
		writer:  w,
		dial:    dialBroker,
		retry:   retry,
		logger:  logging.Component(logger, "dispatch"),
	}
}

func dialBroker(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	return conn.Close()
}

// ensureConnected holds mu across the whole retry sequence, so concurrent
// sends wait for the first connect to finish or give up.
func (k *KafkaDispatcher) ensureConnected(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.connected {
		return nil
	}
	err := connectWithRetry(ctx, k.logger, "kafka", k.retry, func(ctx context.Context) error {
		var errs []error
		for _, b := range k.brokers {
			err := k.dial(ctx, b)
			if err == nil {
				return nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", b, err))
		}
		if len(errs) == 0 {
			return errors.New("no kafka brokers configured")
		}
		return errors.Join(errs...)
	})
	if err != nil {
		return err
	}
	k.connected = true
	return nil
}

func (k *KafkaDispatcher) Send(ctx context.Context, channel string, payload any) error {
	b, err := encode(channel, payload)
	if err == nil {
		err = k.ensureConnected(ctx)
	}
	if err == nil {
		err = k.writer.WriteMessages(ctx, kafka.Message{Topic: channel, Value: b})
	}
	observe(channel, err)
	if err != nil {
		k.logger.Error("kafka send failed", "channel", channel, "error", err)
		return err
	}
	k.logger.Debug("kafka sent", "channel", channel, "body", string(b))
	return nil
}

func (k *KafkaDispatcher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
