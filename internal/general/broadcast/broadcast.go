package broadcast

import (
	"context"
	"fmt"

	"ridepool/internal/general/contracts"
	"ridepool/internal/general/logger"
	"ridepool/internal/general/rabbitmq"
	"ridepool/internal/general/websocket"
	"ridepool/internal/ports"
)

// Broadcaster publishes tagged events to the message broker and mirrors them
// to connected WebSocket clients. The broker publish is the durable path; the
// WebSocket push is best-effort and failures there are only logged.
type Broadcaster struct {
	logger *logger.Logger
	pub    *rabbitmq.MQPublisher
	hub    *websocket.Hub
}

// New constructs a Broadcaster over the given publisher and hub.
func New(logger *logger.Logger, pub *rabbitmq.MQPublisher, hub *websocket.Hub) *Broadcaster {
	return &Broadcaster{logger: logger, pub: pub, hub: hub}
}

var _ ports.Broadcaster = (*Broadcaster)(nil)

// PoolEvent publishes an event on the pool topic and pushes it to every
// member rider with an open connection.
func (b *Broadcaster) PoolEvent(ctx context.Context, poolID string, riderIDs []string, event contracts.Event) error {
	if err := b.pub.PublishEvent(contracts.ExchangePoolTopic, contracts.RoutePoolPrefix+poolID, event); err != nil {
		return fmt.Errorf("publish %s event: %w", event.EventTag(), err)
	}

	for _, riderID := range riderIDs {
		if err := b.hub.SendToRider(riderID, event); err != nil {
			b.logger.Error(ctx, "ws_push_failed", "Failed to push pool event to rider", err, map[string]any{
				"rider_id": riderID,
				"event":    event.EventTag(),
			})
		}
	}

	b.logger.Debug(ctx, "pool_event_broadcast", "Pool event broadcast", map[string]any{
		"pool_id": poolID,
		"event":   event.EventTag(),
		"riders":  len(riderIDs),
	})

	return nil
}

// DriverEvent publishes an event on the driver topic and pushes it to the
// driver's connection when open.
func (b *Broadcaster) DriverEvent(ctx context.Context, driverID string, event contracts.Event) error {
	if err := b.pub.PublishEvent(contracts.ExchangeDriverTopic, contracts.RouteDriverPrefix+driverID, event); err != nil {
		return fmt.Errorf("publish %s event: %w", event.EventTag(), err)
	}

	// offline drivers still get the broker copy
	if !b.hub.IsDriverConnected(driverID) {
		b.logger.Debug(ctx, "ws_push_skipped", "Driver not connected for event push", map[string]any{
			"driver_id": driverID,
			"event":     event.EventTag(),
		})
		return nil
	}

	if err := b.hub.SendToDriver(driverID, event); err != nil {
		b.logger.Error(ctx, "ws_push_failed", "Failed to push driver event", err, map[string]any{
			"driver_id": driverID,
			"event":     event.EventTag(),
		})
	}

	return nil
}
