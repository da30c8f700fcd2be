package livesync

import (
	"context"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/logging"
)

// DefaultListenerBuffer is how many updates a slow listener may lag
// before updates to it are dropped.
const DefaultListenerBuffer = 64

type RegistryOptions struct {
	Debounce time.Duration
	Buffer   int
	Logger   logging.Logger
}

// Registry shares one transport subscription among every listener whose
// filter has the same signature. Feeds are reference counted: the first
// Acquire opens the subscription and the last Release closes it.
type Registry struct {
	source   Source
	debounce time.Duration
	buffer   int
	logger   logging.Logger

	mu     sync.Mutex
	feeds  map[string]*feed
	nextID uint64
	opened int
}

type feed struct {
	sig    string
	filter Filter

	ready chan struct{}
	err   error
	sub   Subscription
	refs  int

	debouncer *Debouncer

	mu        sync.Mutex
	listeners map[uint64]*Listener
	closed    bool
}

// Listener is one consumer attached to a feed.
type Listener struct {
	id       uint64
	feed     *feed
	registry *Registry
	ch       chan Update
	once     sync.Once
}

func NewRegistry(source Source, opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultListenerBuffer
	}
	return &Registry{
		source:   source,
		debounce: opts.Debounce,
		buffer:   opts.Buffer,
		logger:   opts.Logger.With("component", "Registry"),
		feeds:    make(map[string]*feed),
	}
}

// Acquire attaches a listener to the feed for filter, opening the feed
// if it is the first. If ctx ends before the feed is open the listener
// is released and nothing leaks.
func (r *Registry) Acquire(ctx context.Context, filter Filter) (*Listener, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	sig := filter.Signature()

	r.mu.Lock()
	fd, exists := r.feeds[sig]
	if !exists {
		fd = &feed{
			sig:       sig,
			filter:    filter,
			ready:     make(chan struct{}),
			listeners: make(map[uint64]*Listener),
			debouncer: NewDebouncer(r.debounce),
		}
		r.feeds[sig] = fd
	}
	fd.refs++
	r.nextID++
	l := &Listener{id: r.nextID, feed: fd, registry: r, ch: make(chan Update, r.buffer)}
	fd.mu.Lock()
	fd.listeners[l.id] = l
	fd.mu.Unlock()
	r.mu.Unlock()

	if !exists {
		r.open(ctx, fd)
	}

	select {
	case <-fd.ready:
	case <-ctx.Done():
		l.Release()
		return nil, ctx.Err()
	}
	if fd.err != nil {
		l.Release()
		return nil, fd.err
	}
	if err := ctx.Err(); err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func (r *Registry) open(ctx context.Context, fd *feed) {
	sub, err := r.source.Open(ctx, fd.filter, fd.deliver)

	r.mu.Lock()
	fd.sub, fd.err = sub, err
	if err != nil {
		if r.feeds[fd.sig] == fd {
			delete(r.feeds, fd.sig)
		}
	} else {
		r.opened++
	}
	close(fd.ready)
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("cannot open feed", "signature", fd.sig, "error", err)
		return
	}
	r.logger.Info("feed opened", "signature", fd.sig)
}

// Updates delivers the feed's updates the listener may see. The channel
// is closed on Release.
func (l *Listener) Updates() <-chan Update {
	return l.ch
}

// Signature of the feed the listener is attached to.
func (l *Listener) Signature() string {
	return l.feed.sig
}

// Release detaches the listener. Releasing the last listener of a feed
// closes its transport subscription. Safe to call more than once.
func (l *Listener) Release() {
	l.once.Do(func() {
		l.registry.release(l)
	})
}

func (r *Registry) release(l *Listener) {
	fd := l.feed

	fd.mu.Lock()
	delete(fd.listeners, l.id)
	close(l.ch)
	fd.mu.Unlock()

	r.mu.Lock()
	fd.refs--
	last := fd.refs == 0
	if last && r.feeds[fd.sig] == fd {
		delete(r.feeds, fd.sig)
	}
	r.mu.Unlock()

	if !last {
		return
	}
	// The opener holds a reference until open returns, so the feed is
	// ready here.
	fd.mu.Lock()
	fd.closed = true
	fd.mu.Unlock()
	fd.debouncer.Stop()
	if fd.sub != nil {
		if err := fd.sub.Close(); err != nil {
			r.logger.Error("cannot close feed", "signature", fd.sig, "error", err)
		}
		r.logger.Info("feed closed", "signature", fd.sig)
	}
}

// deliver runs on the transport goroutine: role filtering happens here,
// before anything reaches a listener.
func (fd *feed) deliver(u Update) {
	restricted, ok := fd.filter.Restrict(u)
	if !ok {
		return
	}
	fd.debouncer.Schedule(restricted.Key(), func() {
		fd.fanout(restricted)
	})
}

func (fd *feed) fanout(u Update) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.closed {
		return
	}
	for _, l := range fd.listeners {
		select {
		case l.ch <- u:
		default:
			l.registry.logger.Info("listener buffer full, dropping update", "signature", fd.sig, "key", u.Key())
		}
	}
}

// ActiveSubscriptions reports open transport subscriptions.
func (r *Registry) ActiveSubscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, fd := range r.feeds {
		if fd.sub != nil {
			n++
		}
	}
	return n
}

// Opened reports how many transport subscriptions were ever opened.
func (r *Registry) Opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

// Listeners reports the listeners attached to the feed for filter.
func (r *Registry) Listeners(filter Filter) int {
	r.mu.Lock()
	fd, ok := r.feeds[filter.Signature()]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return len(fd.listeners)
}
