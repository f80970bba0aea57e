package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fleet-rides/internal/logging"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	published []published
	failNext  error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) IsClosed() bool { return f.closed }

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type amqpHarness struct {
	d        *AMQPDispatcher
	channels []*fakeChannel
	conns    []*fakeConn
	failDial int
}

func newTestAMQP() *amqpHarness {
	h := &amqpHarness{}
	h.d = &AMQPDispatcher{
		exchange: "fleet",
		retry:    RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
		logger:   logging.Discard(),
	}
	h.d.dial = func(context.Context) (amqpChannel, io.Closer, error) {
		if h.failDial > 0 {
			h.failDial--
			return nil, nil, errors.New("connection refused")
		}
		ch, conn := &fakeChannel{}, &fakeConn{}
		h.channels = append(h.channels, ch)
		h.conns = append(h.conns, conn)
		return ch, conn, nil
	}
	return h
}

func TestAMQPDispatcher_PublishesWithChannelAsRoutingKey(t *testing.T) {
	h := newTestAMQP()
	ctx := context.Background()

	require.NoError(t, h.d.Send(ctx, "unlock-vehicle", map[string]string{"qrCode": "abc", "riderId": "r1", "jobId": "r1"}))
	require.NoError(t, h.d.Send(ctx, "end-ride", map[string]string{"riderId": "r1"}))

	require.Len(t, h.channels, 1, "one connection serves both sends")
	pub := h.channels[0].published
	require.Len(t, pub, 2)
	assert.Equal(t, "fleet", pub[0].exchange)
	assert.Equal(t, "unlock-vehicle", pub[0].key)
	assert.Equal(t, "application/json", pub[0].msg.ContentType)
	assert.Equal(t, amqp.Persistent, pub[0].msg.DeliveryMode)
	var body map[string]string
	require.NoError(t, json.Unmarshal(pub[0].msg.Body, &body))
	assert.Equal(t, "abc", body["qrCode"])
}

func TestAMQPDispatcher_ReconnectsAfterErrClosed(t *testing.T) {
	h := newTestAMQP()
	ctx := context.Background()
	require.NoError(t, h.d.Send(ctx, "end-ride", struct{}{}))

	h.channels[0].failNext = amqp.ErrClosed
	assert.ErrorIs(t, h.d.Send(ctx, "end-ride", struct{}{}), amqp.ErrClosed)
	assert.True(t, h.channels[0].closed)
	assert.True(t, h.conns[0].closed)

	require.NoError(t, h.d.Send(ctx, "end-ride", struct{}{}))
	require.Len(t, h.channels, 2)
	assert.Len(t, h.channels[1].published, 1)
}

func TestAMQPDispatcher_RedialsClosedChannel(t *testing.T) {
	h := newTestAMQP()
	ctx := context.Background()
	require.NoError(t, h.d.Send(ctx, "end-ride", struct{}{}))

	h.channels[0].closed = true
	require.NoError(t, h.d.Send(ctx, "end-ride", struct{}{}))
	assert.Len(t, h.channels, 2)
}

func TestAMQPDispatcher_ConnectRetries(t *testing.T) {
	h := newTestAMQP()
	h.failDial = 2
	require.NoError(t, h.d.Send(context.Background(), "end-ride", struct{}{}))
	assert.Len(t, h.channels, 1)

	h = newTestAMQP()
	h.failDial = 5
	err := h.d.Send(context.Background(), "end-ride", struct{}{})
	assert.ErrorContains(t, err, "3 attempts")
	require.NoError(t, h.d.Close())
}

func TestAMQPDispatcher_OtherPublishErrorKeepsConnection(t *testing.T) {
	h := newTestAMQP()
	ctx := context.Background()
	require.NoError(t, h.d.Send(ctx, "end-ride", struct{}{}))

	h.channels[0].failNext = errors.New("message too large")
	assert.Error(t, h.d.Send(ctx, "end-ride", struct{}{}))
	require.NoError(t, h.d.Send(ctx, "end-ride", struct{}{}))
	assert.Len(t, h.channels, 1)
}
