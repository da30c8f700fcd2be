package pkg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/nats-io/nats.go"
)

// NATSBus publishes and subscribes over a single NATS connection.
// The client library reconnects on its own; OnReconnect hooks run after
// every successful reconnection so callers can resynchronize.
type NATSBus struct {
	conn   *nats.Conn
	logger logging.Logger

	mu          sync.RWMutex
	onReconnect []func()
}

func NewNATSBus(url string, logger logging.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	b := &NATSBus{logger: logger.With("component", "NATSBus")}

	conn, err := nats.Connect(url,
		nats.Name("kds"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(250*time.Millisecond, time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Info("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			b.fireReconnect()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b.conn = conn
	return b, nil
}

// OnReconnect registers fn to run after the connection is re-established.
func (b *NATSBus) OnReconnect(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReconnect = append(b.onReconnect, fn)
}

func (b *NATSBus) fireReconnect() {
	b.mu.RLock()
	hooks := append([]func(){}, b.onReconnect...)
	b.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (b *NATSBus) Publish(ctx context.Context, topic string, msg []byte) error {
	if err := b.conn.Publish(topic, msg); err != nil {
		return fmt.Errorf("cannot publish to %s: %w", topic, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			b.logger.Error("handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cannot subscribe to %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && b.conn.IsConnected() {
			b.logger.Debug("unsubscribe failed", "subject", topic, "error", err)
		}
	}()
	return nil
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
