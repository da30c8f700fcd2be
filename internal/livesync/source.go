package livesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/appetiteclub/kds/pkg/event"
	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
)

// Source opens transport subscriptions for a feed.
type Source interface {
	// Open subscribes for filter. ctx bounds the open call only; the
	// subscription lives until closed.
	Open(ctx context.Context, filter Filter, deliver func(Update)) (Subscription, error)
}

// Subscription is one open transport subscription.
type Subscription interface {
	Close() error
}

// BusSource subscribes to the message bus, one subscription per topic
// the filter needs.
type BusSource struct {
	subscriber events.Subscriber
	codec      event.Codec
	logger     logging.Logger
}

func NewBusSource(subscriber events.Subscriber, codec event.Codec, logger logging.Logger) *BusSource {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if codec == nil {
		codec = event.JSON
	}
	return &BusSource{
		subscriber: subscriber,
		codec:      codec,
		logger:     logger.With("component", "BusSource"),
	}
}

type busSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *busSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Open subscribes every topic of the filter. Subscriptions live until the
// returned Subscription is closed.
func (s *BusSource) Open(ctx context.Context, filter Filter, deliver func(Update)) (Subscription, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	for _, topic := range filter.Topics() {
		if err := ctx.Err(); err != nil {
			cancel()
			return nil, err
		}
		topic := topic
		err := s.subscriber.Subscribe(subCtx, topic, func(ctx context.Context, msg []byte) error {
			u, err := DecodeUpdate(s.codec, topic, msg)
			if err != nil {
				s.logger.Error("cannot decode update", "topic", topic, "error", err)
				return nil
			}
			deliver(u)
			return nil
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("cannot subscribe to %s: %w", topic, err)
		}
	}
	return &busSubscription{cancel: cancel}, nil
}
