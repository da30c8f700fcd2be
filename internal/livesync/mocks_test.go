package livesync

import (
	"context"
	"sync"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func newEntry(station, table uuid.UUID) kitchen.RoutingEntry {
	return kitchen.RoutingEntry{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		StationID: station,
		TableID:   table,
		Items:     []kitchen.LineItem{{Name: "Burger", Category: "grill", Quantity: 1}},
		RoutedAt:  t0,
		UpdatedAt: t0,
		Version:   1,
	}
}

func entriesUpdate(entries ...kitchen.RoutingEntry) Update {
	change := kitchen.EntryChange{Type: "kitchen.entry.status_changed", OccurredAt: t0, Entries: entries}
	if len(entries) > 0 {
		change.StationID = entries[0].StationID
		change.TableID = entries[0].TableID
	}
	return Update{Kind: KindEntries, Entries: &change}
}

// MockSource is a test double for Source
type MockSource struct {
	mu       sync.Mutex
	opens    int
	closes   int
	delivers []func(Update)
	OpenFunc func(ctx context.Context, filter Filter) error
}

type mockSubscription struct {
	source *MockSource
	once   sync.Once
}

func (s *mockSubscription) Close() error {
	s.once.Do(func() {
		s.source.mu.Lock()
		s.source.closes++
		s.source.mu.Unlock()
	})
	return nil
}

func (m *MockSource) Open(ctx context.Context, filter Filter, deliver func(Update)) (Subscription, error) {
	if m.OpenFunc != nil {
		if err := m.OpenFunc(ctx, filter); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	m.delivers = append(m.delivers, deliver)
	return &mockSubscription{source: m}, nil
}

// Push delivers u to every feed opened so far.
func (m *MockSource) Push(u Update) {
	m.mu.Lock()
	delivers := append([]func(Update){}, m.delivers...)
	m.mu.Unlock()
	for _, d := range delivers {
		d(u)
	}
}

func (m *MockSource) Counts() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

// MockReader is a test double for kitchen.EntryReader
type MockReader struct {
	mu         sync.Mutex
	calls      int
	entries    []kitchen.RoutingEntry
	ActiveFunc func(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error)
}

func (m *MockReader) Active(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ActiveFunc != nil {
		return m.ActiveFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []kitchen.RoutingEntry
	for i := range m.entries {
		if filter.Matches(&m.entries[i]) {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *MockReader) Get(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for i := range m.entries {
		if m.entries[i].ID == id {
			e := m.entries[i]
			return &e, nil
		}
	}
	return nil, kitchen.ErrNotFound
}

func (m *MockReader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockStationLookup knows a fixed set of stations.
type MockStationLookup struct {
	known   map[kitchen.StationID]bool
	GetFunc func(ctx context.Context, id kitchen.StationID) (*kitchen.Station, error)
}

func NewMockStationLookup(ids ...kitchen.StationID) *MockStationLookup {
	m := &MockStationLookup{known: make(map[kitchen.StationID]bool)}
	for _, id := range ids {
		m.known[id] = true
	}
	return m
}

func (m *MockStationLookup) Get(ctx context.Context, id kitchen.StationID) (*kitchen.Station, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	if !m.known[id] {
		return nil, kitchen.Errorf("get station", id.String(), kitchen.ErrNotFound, "unknown station")
	}
	return &kitchen.Station{ID: id}, nil
}
