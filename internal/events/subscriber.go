package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/google/uuid"
)

// OrderPlacer routes an order to stations.
type OrderPlacer interface {
	Place(ctx context.Context, order *kitchen.Order) ([]kitchen.RoutingEntry, error)
}

// OrderSubscriber feeds orders placed by server terminals and voice
// intake into the dispatcher.
type OrderSubscriber struct {
	subscriber events.Subscriber
	placer     OrderPlacer
	codec      event.Codec
	logger     logging.Logger
}

func NewOrderSubscriber(subscriber events.Subscriber, placer OrderPlacer, codec event.Codec, logger logging.Logger) *OrderSubscriber {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if codec == nil {
		codec = event.JSON
	}
	return &OrderSubscriber{
		subscriber: subscriber,
		placer:     placer,
		codec:      codec,
		logger:     logger.With("component", "OrderSubscriber"),
	}
}

func (s *OrderSubscriber) Start(ctx context.Context) error {
	s.logger.Infof("Starting OrderSubscriber for topic: %s", event.OrdersPlacedTopic)

	if err := s.subscriber.Subscribe(ctx, event.OrdersPlacedTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.OrdersPlacedTopic, err)
	}
	return nil
}

// handleEvent drops malformed or unroutable orders after logging them.
// Only transient failures are returned, so brokers that redeliver can.
func (s *OrderSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.OrderPlacedEvent
	if err := s.codec.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("Failed to unmarshal order event: %v", err)
		return nil
	}
	if evt.EventType != "" && evt.EventType != event.EventOrderPlaced {
		s.logger.Infof("Unknown event type: %s", evt.EventType)
		return nil
	}

	order, err := toOrder(&evt)
	if err != nil {
		s.logger.Error("invalid order event", "order_id", evt.OrderID, "error", err)
		return nil
	}

	entries, err := s.placer.Place(ctx, order)
	if err != nil {
		if errors.Is(err, kitchen.ErrTransientIO) {
			s.logger.Error("cannot place order, will retry", "order_id", order.ID, "error", err)
			return err
		}
		s.logger.Error("order rejected", "order_id", order.ID, "kind", kitchen.KindName(err), "error", err)
		return nil
	}

	s.logger.Info("order placed from bus", "order_id", order.ID, "table_id", order.TableID, "entries", len(entries))
	return nil
}

func toOrder(evt *event.OrderPlacedEvent) (*kitchen.Order, error) {
	orderID, err := parseOptionalID(evt.OrderID)
	if err != nil {
		return nil, kitchen.Errorf("decode order", evt.OrderID, kitchen.ErrValidation, "invalid order_id")
	}
	tableID, err := uuid.Parse(evt.TableID)
	if err != nil {
		return nil, kitchen.Errorf("decode order", evt.OrderID, kitchen.ErrValidation, "invalid table_id")
	}

	order := &kitchen.Order{
		ID:         orderID,
		TableID:    tableID,
		TableLabel: evt.TableLabel,
		SeatLabel:  evt.SeatLabel,
		Transcript: evt.Transcript,
		Rush:       evt.Rush,
		CreatedAt:  evt.OccurredAt,
	}
	if evt.SeatID != "" {
		seatID, err := uuid.Parse(evt.SeatID)
		if err != nil {
			return nil, kitchen.Errorf("decode order", evt.OrderID, kitchen.ErrValidation, "invalid seat_id")
		}
		order.SeatID = &seatID
	}
	for _, it := range evt.Items {
		order.Items = append(order.Items, kitchen.LineItem{
			Name:      strings.TrimSpace(it.Name),
			Category:  it.Category,
			Modifiers: it.Modifiers,
			Quantity:  it.Quantity,
		})
	}
	return order, nil
}

func parseOptionalID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
