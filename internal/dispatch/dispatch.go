// Package dispatch hands typed JSON messages to the external fleet actuator.
// The channel name selects the consumer; payloads are opaque to the transport.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/observability"
)

// Actuator channels for owner-initiated vehicle status transitions.
const (
	ChannelCordonVehicle           = "cordon-vehicle"
	ChannelCordonGarageVehicle     = "cordon-garage-vehicle"
	ChannelUncordonVehicle         = "uncordon-vehicle"
	ChannelGarageVehicle           = "garage-vehicle"
	ChannelUngarageUncordonVehicle = "ungarage-uncordon-vehicle"
	ChannelUngarageVehicle         = "ungarage-vehicle"
)

var ErrEmptyChannel = errors.New("dispatch channel is required")

// Dispatcher delivers one message per call. A returned error means the
// transport did not accept the message; the caller decides what to do.
type Dispatcher interface {
	Send(ctx context.Context, channel string, payload any) error
	Close() error
}

func encode(channel string, payload any) ([]byte, error) {
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", channel, err)
	}
	return b, nil
}

func observe(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.DispatchTotal.WithLabelValues(channel, result).Inc()
}

// LogDispatcher only logs messages. It is the transport for local runs
// without a broker.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logging.Component(logger, "dispatch")}
}

func (d *LogDispatcher) Send(_ context.Context, channel string, payload any) error {
	b, err := encode(channel, payload)
	observe(channel, err)
	if err != nil {
		return err
	}
	d.logger.Info("dispatch", "channel", channel, "body", string(b))
	return nil
}

func (d *LogDispatcher) Close() error { return nil }
