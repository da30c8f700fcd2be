package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStream is a durable JetStream subscriber. Orders published while the
// kitchen is down are kept by the stream and delivered on restart; a
// handler error naks the message so it is redelivered.
type NATSStream struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	cfg    NATSStreamConfig
	logger logging.Logger
}

// NATSStreamConfig configures a NATSStream instance.
type NATSStreamConfig struct {
	StreamName   string        // e.g. "KDS_ORDERS"
	Subjects     []string      // subjects captured by the stream
	ConsumerName string        // durable consumer name
	MaxAge       time.Duration // retention
	MaxMsgs      int64         // 0 keeps the server default
	MaxDeliver   int           // redelivery attempts, 0 is unlimited
	RetryDelay   time.Duration // delay before a nak'd message is redelivered
}

// NewNATSStream ensures the stream exists on the bus connection.
func NewNATSStream(ctx context.Context, bus *NATSBus, cfg NATSStreamConfig, logger logging.Logger) (*NATSStream, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	js, err := jetstream.New(bus.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamConfig := jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: cfg.Subjects,
		MaxAge:   cfg.MaxAge,
	}
	if cfg.MaxMsgs > 0 {
		streamConfig.MaxMsgs = cfg.MaxMsgs
	}

	stream, err := js.CreateOrUpdateStream(ctx, streamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.StreamName, err)
	}

	return &NATSStream{
		js:     js,
		stream: stream,
		cfg:    cfg,
		logger: logger.With("component", "NATSStream", "stream", cfg.StreamName),
	}, nil
}

// Publish stores msg in the stream and waits for the server ack.
func (s *NATSStream) Publish(ctx context.Context, topic string, msg []byte) error {
	if _, err := s.js.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

// Subscribe binds the durable consumer to topic and consumes until ctx is
// cancelled.
func (s *NATSStream) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       s.cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		FilterSubject: topic,
		MaxDeliver:    s.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create/update consumer %s: %w", s.cfg.ConsumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			s.logger.Error("handler failed, redelivering", "subject", msg.Subject(), "error", err)
			_ = msg.NakWithDelay(s.cfg.RetryDelay)
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}
