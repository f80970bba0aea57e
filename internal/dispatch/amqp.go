package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/fleet-rides/internal/logging"
)

// amqpChannel is the part of *amqp.Channel the dispatcher publishes through.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQPDispatcher publishes to a durable topic exchange using the channel name
// as routing key. A broken connection is re-established on the next Send.
type AMQPDispatcher struct {
	url      string
	exchange string
	retry    RetryPolicy
	dial     func(ctx context.Context) (amqpChannel, io.Closer, error)
	logger   *slog.Logger

	mu   sync.Mutex
	conn io.Closer
	ch   amqpChannel
}

func NewAMQPDispatcher(url, exchange string, retry RetryPolicy, logger *slog.Logger) *AMQPDispatcher {
	a := &AMQPDispatcher{url: url, exchange: exchange, retry: retry, logger: logging.Component(logger, "dispatch")}
	a.dial = a.dialBroker
	return a
}

func (a *AMQPDispatcher) dialBroker(context.Context) (amqpChannel, io.Closer, error) {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", a.exchange, err)
	}
	return ch, conn, nil
}

func (a *AMQPDispatcher) channel(ctx context.Context) (amqpChannel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch != nil && !a.ch.IsClosed() {
		return a.ch, nil
	}
	a.closeLocked()
	err := connectWithRetry(ctx, a.logger, "amqp", a.retry, func(ctx context.Context) error {
		ch, conn, err := a.dial(ctx)
		if err != nil {
			return err
		}
		a.conn, a.ch = conn, ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.ch, nil
}

func (a *AMQPDispatcher) Send(ctx context.Context, channel string, payload any) error {
	b, err := encode(channel, payload)
	var ch amqpChannel
	if err == nil {
		ch, err = a.channel(ctx)
	}
	if err == nil {
		err = ch.PublishWithContext(ctx, a.exchange, channel, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         b,
		})
		if errors.Is(err, amqp.ErrClosed) {
			a.mu.Lock()
			a.closeLocked()
			a.mu.Unlock()
		}
	}
	observe(channel, err)
	if err != nil {
		a.logger.Error("amqp publish failed", "channel", channel, "error", err)
		return err
	}
	a.logger.Debug("amqp published", "channel", channel, "exchange", a.exchange)
	return nil
}

func (a *AMQPDispatcher) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeLocked()
	return nil
}

// closeLocked must be called with mu held.
func (a *AMQPDispatcher) closeLocked() {
	if a.ch != nil {
		_ = a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}
