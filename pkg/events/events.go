package events

import "context"

// HandlerFunc processes one message delivered on a topic.
type HandlerFunc func(ctx context.Context, msg []byte) error

// Publisher sends a message on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg []byte) error
}

// Subscriber delivers messages for a topic pattern to handler until ctx
// is cancelled. Patterns use NATS wildcard syntax: "*" matches one
// token and ">" matches the remaining tokens.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error
}

// Bus is a Publisher and Subscriber over the same transport.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
