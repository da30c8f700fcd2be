package pkg

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBus maps topics onto routing keys of one topic exchange. Each
// subscription gets its own exclusive, auto-deleted queue and channel.
type AMQPBus struct {
	conn     *amqp.Connection
	exchange string
	logger   logging.Logger

	pubMu sync.Mutex
	pub   *amqp.Channel
}

func NewAMQPBus(url, exchange string, logger logging.Logger) (*AMQPBus, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot declare exchange %s: %w", exchange, err)
	}

	b := &AMQPBus{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("component", "AMQPBus"),
		pub:      ch,
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if e := <-closed; e != nil {
			b.logger.Error("amqp connection closed", "code", e.Code, "reason", e.Reason)
		}
	}()

	return b, nil
}

func (b *AMQPBus) Publish(ctx context.Context, topic string, msg []byte) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	err := b.pub.PublishWithContext(ctx, b.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        msg,
	})
	if err != nil {
		return fmt.Errorf("cannot publish to %s: %w", topic, err)
	}
	return nil
}

func (b *AMQPBus) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("cannot open AMQP channel: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("cannot declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey(topic), b.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("cannot bind queue to %s: %w", topic, err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("cannot consume %s: %w", topic, err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.logger.Info("amqp deliveries closed", "topic", topic)
					return
				}
				if err := handler(ctx, d.Body); err != nil {
					b.logger.Error("handler failed", "routing_key", d.RoutingKey, "error", err)
				}
			}
		}
	}()
	return nil
}

func (b *AMQPBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}

// routingKey converts a NATS style pattern into an AMQP binding key.
func routingKey(pattern string) string {
	tokens := strings.Split(pattern, ".")
	for i, tok := range tokens {
		if tok == ">" {
			tokens[i] = "#"
		}
	}
	return strings.Join(tokens, ".")
}
