package display

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/livesync"
	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return t0.Add(5 * time.Minute) }

func newEntry(table uuid.UUID) kitchen.RoutingEntry {
	return kitchen.RoutingEntry{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		StationID: uuid.New(),
		TableID:   table,
		Items:     []kitchen.LineItem{{Name: "Ribeye", Category: "grill", Quantity: 1}},
		RoutedAt:  t0,
		UpdatedAt: t0,
		Version:   1,
	}
}

func started(e kitchen.RoutingEntry) kitchen.RoutingEntry {
	at := t0.Add(time.Minute)
	e.StartedAt = &at
	e.Version++
	return e
}

// serverApply is what the kitchen would answer for t on e.
func serverApply(e kitchen.RoutingEntry, t kitchen.Transition) kitchen.RoutingEntry {
	out := e.Clone()
	if err := out.Apply(t, t0.Add(6*time.Minute)); err != nil {
		panic(err)
	}
	return out
}

// MockMutator is a test double for Mutator
type MockMutator struct {
	mu               sync.Mutex
	calls            []string
	TransitionFunc   func(ctx context.Context, id kitchen.EntryID, t kitchen.Transition) (*kitchen.RoutingEntry, error)
	BumpTableFunc    func(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error)
	EntryFunc        func(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error)
	TableEntriesFunc func(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error)
}

func (m *MockMutator) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockMutator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockMutator) Transition(ctx context.Context, id kitchen.EntryID, t kitchen.Transition) (*kitchen.RoutingEntry, error) {
	m.record(string(t))
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, id, t)
	}
	return nil, errors.New("not implemented")
}

func (m *MockMutator) BumpTable(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error) {
	m.record("bump-table")
	if m.BumpTableFunc != nil {
		return m.BumpTableFunc(ctx, tableID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockMutator) Entry(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	m.record("entry")
	if m.EntryFunc != nil {
		return m.EntryFunc(ctx, id)
	}
	return nil, kitchen.ErrNotFound
}

func (m *MockMutator) TableEntries(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error) {
	m.record("table-entries")
	if m.TableEntriesFunc != nil {
		return m.TableEntriesFunc(ctx, tableID)
	}
	return nil, nil
}

// fakeStream replays updates and then fails like a dropped connection.
type fakeStream struct {
	updates []livesync.Update
	block   <-chan struct{}
	closed  bool
}

func (s *fakeStream) Next() (livesync.Update, error) {
	if len(s.updates) > 0 {
		u := s.updates[0]
		s.updates = s.updates[1:]
		return u, nil
	}
	if s.block != nil {
		<-s.block
	}
	return livesync.Update{}, kitchen.NewError("read stream", "", kitchen.ErrTransientIO, io.ErrUnexpectedEOF)
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// MockDialer is a test double for Dialer
type MockDialer struct {
	mu       sync.Mutex
	dials    int
	DialFunc func(ctx context.Context, n int) (Stream, error)
}

func (m *MockDialer) Dial(ctx context.Context, filter livesync.Filter) (Stream, error) {
	m.mu.Lock()
	m.dials++
	n := m.dials
	m.mu.Unlock()
	return m.DialFunc(ctx, n)
}

// MockLoader is a test double for Loader
type MockLoader struct {
	mu           sync.Mutex
	loads        int
	SnapshotFunc func(ctx context.Context, n int) (Snapshot, error)
}

func (m *MockLoader) Snapshot(ctx context.Context, filter livesync.Filter) (Snapshot, error) {
	m.mu.Lock()
	m.loads++
	n := m.loads
	m.mu.Unlock()
	return m.SnapshotFunc(ctx, n)
}

func (m *MockLoader) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}
