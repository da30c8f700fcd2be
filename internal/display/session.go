package display

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/livesync"
	"github.com/appetiteclub/kds/internal/tables"
	"github.com/appetiteclub/kds/pkg/logging"
)

// Backoff computes reconnect delays: Initial, multiplied by Multiplier
// per failed attempt up to Max, spread by ±Jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// Delay returns the wait before retry number attempt (0 based). r is a
// uniform sample in [0, 1).
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt && d < float64(b.Max); i++ {
		d *= b.Multiplier
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	d *= 1 + b.Jitter*(2*r-1)
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(math.Round(d))
}

// Stream is one live connection to the kitchen feed.
type Stream interface {
	// Next blocks for the next update. It fails once the connection is
	// lost.
	Next() (livesync.Update, error)
	Close() error
}

// Dialer opens live streams. The stream ends when ctx is cancelled.
type Dialer interface {
	Dial(ctx context.Context, filter livesync.Filter) (Stream, error)
}

// Snapshot is the authoritative state a display resynchronizes from.
type Snapshot struct {
	Entries []kitchen.RoutingEntry
	Tables  []tables.TableGroup
}

// Loader performs the full resynchronization read.
type Loader interface {
	Snapshot(ctx context.Context, filter livesync.Filter) (Snapshot, error)
}

type SessionDeps struct {
	Dialer  Dialer
	Loader  Loader
	View    *View
	Filter  livesync.Filter
	Backoff Backoff
	Sleep   func(ctx context.Context, d time.Duration) error
	Rand    func() float64
	Logger  logging.Logger
}

// Session keeps a view synchronized with the kitchen. It reconnects with
// backoff when the transport drops and reloads the whole view after
// every connection, never trusting updates that were in flight.
type Session struct {
	dialer  Dialer
	loader  Loader
	view    *View
	filter  livesync.Filter
	backoff Backoff
	sleep   func(ctx context.Context, d time.Duration) error
	rand    func() float64
	logger  logging.Logger

	mu       sync.Mutex
	connects int
	failures int
}

func NewSession(deps SessionDeps) *Session {
	if deps.Logger == nil {
		deps.Logger = logging.NewNoopLogger()
	}
	if deps.Backoff.Initial <= 0 {
		deps.Backoff = DefaultBackoff()
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	return &Session{
		dialer:  deps.Dialer,
		loader:  deps.Loader,
		view:    deps.View,
		filter:  deps.Filter,
		backoff: deps.Backoff,
		sleep:   deps.Sleep,
		rand:    deps.Rand,
		logger:  deps.Logger.With("component", "Session", "filter", deps.Filter.Signature()),
	}
}

// Run keeps the session alive until ctx is cancelled. It returns early
// only for a filter the kitchen rejects.
func (s *Session) Run(ctx context.Context) error {
	if err := s.filter.Validate(); err != nil {
		return err
	}

	attempt := 0
	for {
		err := s.connect(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, kitchen.ErrValidation) {
			return err
		}

		s.mu.Lock()
		s.failures++
		s.mu.Unlock()

		delay := s.backoff.Delay(attempt, s.rand())
		attempt++
		s.logger.Info("feed lost, reconnecting", "attempt", attempt, "delay", delay.String(), "error", err)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// connect runs one connection: dial, resync, then apply updates until
// the stream fails.
func (s *Session) connect(ctx context.Context, connected func()) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.dialer.Dial(connCtx, s.filter)
	if err != nil {
		return err
	}
	defer stream.Close()

	snap, err := s.loader.Snapshot(connCtx, s.filter)
	if err != nil {
		return err
	}
	s.view.Replace(snap.Entries, snap.Tables)

	s.mu.Lock()
	s.connects++
	s.mu.Unlock()
	connected()
	s.logger.Info("feed connected", "entries", len(snap.Entries), "tables", len(snap.Tables))

	for {
		u, err := stream.Next()
		if err != nil {
			return err
		}
		s.view.Apply(u)
	}
}

// Connects reports how many connections reached the resync step.
func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Failures reports how many connections were lost or never made.
func (s *Session) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
