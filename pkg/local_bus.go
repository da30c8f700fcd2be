package pkg

import (
	"context"
	"strings"
	"sync"

	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
)

// LocalBus is an in-process bus with NATS subject semantics. Handlers
// run synchronously on the publishing goroutine.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[uint64]localSub
	nextID uint64
	logger logging.Logger
}

type localSub struct {
	pattern string
	ctx     context.Context
	handler events.HandlerFunc
}

func NewLocalBus(logger logging.Logger) *LocalBus {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &LocalBus{
		subs:   make(map[uint64]localSub),
		logger: logger.With("component", "LocalBus"),
	}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, msg []byte) error {
	b.mu.RLock()
	targets := make([]localSub, 0, len(b.subs))
	for _, s := range b.subs {
		if SubjectMatches(s.pattern, topic) && s.ctx.Err() == nil {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		data := append([]byte(nil), msg...)
		if err := s.handler(s.ctx, data); err != nil {
			b.logger.Error("handler failed", "subject", topic, "error", err)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = localSub{pattern: topic, ctx: ctx, handler: handler}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

// Subscriptions reports live subscriptions.
func (b *LocalBus) Subscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.ctx.Err() == nil {
			n++
		}
	}
	return n
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[uint64]localSub)
	return nil
}

// SubjectMatches reports whether subject matches a NATS style pattern.
func SubjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
